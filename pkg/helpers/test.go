package helpers

import (
	"context"

	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

// TestCtx returns a context carrying a discarding debug-level logger.
func TestCtx() context.Context {
	return logger.ToContext(context.Background(), logger.New("debug", logger.NewTestHandler))
}
