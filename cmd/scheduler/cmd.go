package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GregMSThompson/finance-sync/internal/bootstrap"
	"github.com/GregMSThompson/finance-sync/internal/config"
	"github.com/GregMSThompson/finance-sync/internal/router"
)

func exitOnError(message string, err error, log *slog.Logger) {
	if err != nil {
		log.Error(message, "error", err)
		os.Exit(1)
	}
}

// The scheduler process polls for due connections and runs their syncs.
// Its only HTTP route is the liveness probe.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	exitOnError("config invalid", err, slog.Default())
	bs, err := bootstrap.Run(ctx, cfg)
	exitOnError("bootstrap failed", err, bs.Log)
	defer bs.Close()

	app := bootstrap.Wire(cfg, bs)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.NewHealthRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Dispatcher.Run(gctx)
	})
	stopScheduler, err := app.Scheduler.Start(gctx)
	exitOnError("scheduler start failed", err, bs.Log)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stopScheduler()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	exitOnError("scheduler stopped", err, bs.Log)
	bs.Log.Info("scheduler stopped")
}
