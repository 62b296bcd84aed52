package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/internal/providers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

const (
	rateLimitBackoff = 24 * time.Hour

	stagePreparing = "Preparing"
	stageDone      = "Done"
	stageFailed    = "Failed"
	stageRateLimit = "Rate limit active"
	stageNotRun    = "Not started"
)

var errSyncInterrupted = fmt.Errorf("sync interrupted before completion: %w", context.DeadlineExceeded)

type orchestratorConnStore interface {
	Update(ctx context.Context, uid, connectionID string, fn func(*models.Connection) error) (*models.Connection, error)
}

type adapterRegistry interface {
	Require(id string) (providers.Adapter, error)
}

type configDecrypter interface {
	DecryptConfig(ctx context.Context, blob string) (map[string]string, error)
}

type failureClassifier interface {
	Classify(providerID string, err error) errs.FailureKind
	IsRateLimitText(providerID, text string) bool
}

type syncNotifier interface {
	NotifySyncFailure(ctx context.Context, conn *models.Connection, message string)
}

// syncOrchestrator owns every syncStatus transition of a connection. Each
// transition is one transactional read-modify-write of the connection.
type syncOrchestrator struct {
	conns    orchestratorConnStore
	adapters adapterRegistry
	cipher   configDecrypter
	failures failureClassifier
	notifier syncNotifier
	timeout  time.Duration
	clockNow func() time.Time
}

func NewSyncOrchestrator(conns orchestratorConnStore, adapters adapterRegistry, cipher configDecrypter, failures failureClassifier, notifier syncNotifier, timeout time.Duration) *syncOrchestrator {
	return &syncOrchestrator{
		conns:    conns,
		adapters: adapters,
		cipher:   cipher,
		failures: failures,
		notifier: notifier,
		timeout:  timeout,
		clockNow: time.Now,
	}
}

// PrepareSync claims the connection for a run. It returns the stored
// connection and whether the caller now owns a Running sync.
func (o *syncOrchestrator) PrepareSync(ctx context.Context, uid, connectionID string) (*models.Connection, bool, error) {
	var eligible bool
	var retryAt time.Time

	conn, err := o.conns.Update(ctx, uid, connectionID, func(c *models.Connection) error {
		eligible = false
		now := o.clockNow()

		if c.Status == models.ConnectionDisabled || c.SyncStatus == models.SyncRunning {
			return errs.ErrNoChange
		}
		if until, ok := o.backoffUntil(c, now); ok {
			retryAt = until
			hint := retryHint(until)
			if c.SyncStatus == models.SyncSkipped && c.LastSyncError == hint {
				return errs.ErrNoChange
			}
			c.SyncStatus = models.SyncSkipped
			c.SyncStage = stageRateLimit
			c.SyncProgress = 0
			c.LastSyncError = hint
			return nil
		}

		c.SyncStatus = models.SyncRunning
		c.LastSyncStartedAt = &now
		c.LastSyncError = ""
		c.SyncStage = stagePreparing
		c.SyncProgress = 5
		eligible = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if !retryAt.IsZero() {
		logger.FromContext(ctx).Info("sync skipped, rate limit backoff active", "connection_id", connectionID, "retry_at", retryAt)
	}
	return conn, eligible, nil
}

// RunSync executes a prepared connection and always finalizes it, including
// after a panic or a timeout inside the adapter.
func (o *syncOrchestrator) RunSync(ctx context.Context, conn *models.Connection) (err error) {
	log, ctx := logger.With(ctx, "uid", conn.UID, "connection_id", conn.ConnectionID, "provider", conn.ProviderID)
	started := o.clockNow()
	var result dto.SyncResult

	defer func() {
		if r := recover(); r != nil {
			log.Error("sync panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("sync panicked: %v", r)
		}
		o.finalize(context.WithoutCancel(ctx), conn, err, false)
		if err == nil {
			log.Info("sync finished",
				"accounts_updated", result.AccountsUpdated,
				"transactions_imported", result.TransactionsImported,
				"transactions_updated", result.TransactionsUpdated,
				"duration", o.clockNow().Sub(started))
		}
	}()

	adapter, err := o.adapters.Require(conn.ProviderID)
	if err != nil {
		return err
	}
	cfg, err := o.cipher.DecryptConfig(ctx, conn.EncryptedConfig)
	if err != nil {
		return err
	}

	runCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	result, err = adapter.Sync(runCtx, conn, cfg)
	return err
}

// Abandon releases a prepared connection that will not run.
func (o *syncOrchestrator) Abandon(ctx context.Context, conn *models.Connection, reason string) {
	_, err := o.conns.Update(ctx, conn.UID, conn.ConnectionID, func(c *models.Connection) error {
		if c.SyncStatus != models.SyncRunning {
			return errs.ErrNoChange
		}
		c.SyncStatus = models.SyncSkipped
		c.SyncStage = stageNotRun
		c.SyncProgress = 0
		c.LastSyncError = reason
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to release prepared sync", "connection_id", conn.ConnectionID, "error", err)
	}
}

// RecoverStale fails a connection stuck in Running, e.g. after the process
// running it died. Connections that moved on in the meantime are left alone.
func (o *syncOrchestrator) RecoverStale(ctx context.Context, conn *models.Connection) {
	logger.FromContext(ctx).Warn("recovering stale sync", "connection_id", conn.ConnectionID, "started_at", conn.LastSyncStartedAt)
	o.finalize(ctx, conn, errSyncInterrupted, true)
}

func (o *syncOrchestrator) finalize(ctx context.Context, conn *models.Connection, runErr error, onlyIfRunning bool) {
	log := logger.FromContext(ctx)
	now := o.clockNow()

	var kind errs.FailureKind
	if runErr != nil {
		kind = o.failures.Classify(conn.ProviderID, runErr)
	}

	var previous models.ConnectionStatus
	var written bool
	updated, err := o.conns.Update(ctx, conn.UID, conn.ConnectionID, func(c *models.Connection) error {
		written = false
		if onlyIfRunning && c.SyncStatus != models.SyncRunning {
			return errs.ErrNoChange
		}
		previous = c.Status
		applyOutcome(c, now, runErr, kind)
		written = true
		return nil
	})
	if err != nil {
		log.Error("failed to persist sync outcome", "error", err, "sync_error", runErr)
		return
	}
	if !written {
		return
	}
	*conn = *updated

	if runErr == nil {
		return
	}
	log.Warn("sync failed", "error", runErr, "failure_kind", kind)
	if previous != models.ConnectionError && updated.Status == models.ConnectionError {
		o.notifier.NotifySyncFailure(ctx, updated, runErr.Error())
	}
}

// applyOutcome writes the terminal state of a run onto c.
func applyOutcome(c *models.Connection, now time.Time, runErr error, kind errs.FailureKind) {
	c.LastSyncCompletedAt = &now
	c.SyncProgress = 100

	if runErr == nil {
		if c.Status != models.ConnectionDisabled {
			c.Status = models.ConnectionActive
		}
		c.ErrorMessage = ""
		c.LastFailureKind = ""
		c.LastSyncedAt = &now
		c.SyncStatus = models.SyncSuccess
		c.SyncStage = stageDone
		c.LastSyncError = ""
		return
	}

	if c.Status != models.ConnectionDisabled {
		c.Status = models.ConnectionError
	}
	c.SyncStatus = models.SyncFailed
	c.SyncStage = stageFailed
	c.LastSyncError = runErr.Error()
	c.LastFailureKind = string(kind)
	c.ErrorMessage = runErr.Error()
	if kind == errs.FailureRateLimit {
		c.ErrorMessage = retryHint(now.Add(rateLimitBackoff))
	}
}

// backoffUntil reports the retry time when the last failure was a rate limit
// and its 24h window has not passed.
func (o *syncOrchestrator) backoffUntil(c *models.Connection, now time.Time) (time.Time, bool) {
	rateLimited := c.LastFailureKind == string(errs.FailureRateLimit) ||
		(c.ErrorMessage != "" && o.failures.IsRateLimitText(c.ProviderID, c.ErrorMessage))
	if !rateLimited {
		return time.Time{}, false
	}

	var base time.Time
	switch {
	case c.LastSyncCompletedAt != nil:
		base = *c.LastSyncCompletedAt
	case c.LastSyncedAt != nil:
		base = *c.LastSyncedAt
	case !c.UpdatedAt.IsZero():
		base = c.UpdatedAt
	default:
		return time.Time{}, false
	}

	retryAt := base.Add(rateLimitBackoff)
	if now.Before(retryAt) {
		return retryAt, true
	}
	return time.Time{}, false
}

func retryHint(at time.Time) string {
	return "Rate limit active. Retry after " + at.UTC().Format(time.RFC3339)
}
