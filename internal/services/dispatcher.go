package services

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

const (
	reasonQueueFull = "Sync queue is full, try again later"
	reasonShutdown  = "Sync cancelled during shutdown"
)

type syncRunner interface {
	PrepareSync(ctx context.Context, uid, connectionID string) (*models.Connection, bool, error)
	RunSync(ctx context.Context, conn *models.Connection) error
	Abandon(ctx context.Context, conn *models.Connection, reason string)
}

// syncDispatcher runs prepared syncs on a fixed pool of workers so callers
// (HTTP handlers, scheduler ticks) never block on an upstream provider.
type syncDispatcher struct {
	runner  syncRunner
	queue   chan *models.Connection
	workers int
	log     *slog.Logger
}

func NewSyncDispatcher(log *slog.Logger, runner syncRunner, workers, queueSize int) *syncDispatcher {
	return &syncDispatcher{
		runner:  runner,
		queue:   make(chan *models.Connection, max(queueSize, 1)),
		workers: max(workers, 1),
		log:     log.With("component", "sync_dispatcher"),
	}
}

// Request prepares the connection and queues the run. It returns false when
// the connection is not eligible or the queue is full.
func (d *syncDispatcher) Request(ctx context.Context, uid, connectionID string) (bool, error) {
	conn, ok, err := d.runner.PrepareSync(ctx, uid, connectionID)
	if err != nil || !ok {
		return false, err
	}

	select {
	case d.queue <- conn:
		return true, nil
	default:
		logger.FromContext(ctx).Warn("sync queue full", "connection_id", connectionID)
		d.runner.Abandon(context.WithoutCancel(ctx), conn, reasonQueueFull)
		return false, nil
	}
}

// Run blocks until ctx is done. In-flight runs finish; queued ones are
// released as skipped.
func (d *syncDispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(gctx, i)
			return nil
		})
	}
	err := g.Wait()
	d.drain(context.WithoutCancel(ctx))
	return err
}

func (d *syncDispatcher) work(ctx context.Context, id int) {
	log := d.log.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case conn := <-d.queue:
			// Shutdown does not interrupt a run; RunSync bounds it with its own timeout.
			runCtx := logger.ToContext(context.WithoutCancel(ctx), log)
			if err := d.runner.RunSync(runCtx, conn); err != nil {
				log.Debug("sync run returned error", "connection_id", conn.ConnectionID, "error", err)
			}
		}
	}
}

func (d *syncDispatcher) drain(ctx context.Context) {
	ctx = logger.ToContext(ctx, d.log)
	for {
		select {
		case conn := <-d.queue:
			d.runner.Abandon(ctx, conn, reasonShutdown)
		default:
			return
		}
	}
}
