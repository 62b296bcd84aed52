package logger

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

type cronLogger struct {
	log *slog.Logger
}

// CronLogger adapts a slog logger to cron.Logger. Cron's chatty info output
// (schedule, wake, run) is demoted to debug.
func CronLogger(log *slog.Logger) cron.Logger {
	return &cronLogger{log: log}
}

func (c *cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("cron: "+msg, keysAndValues...)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
