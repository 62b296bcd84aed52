package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

type schedulerSettings interface {
	Current(ctx context.Context) (dto.Settings, error)
}

type schedulerConnStore interface {
	ListSchedulable(ctx context.Context) ([]*models.Connection, error)
	ListRunning(ctx context.Context) ([]*models.Connection, error)
}

type syncRequester interface {
	Request(ctx context.Context, uid, connectionID string) (bool, error)
}

type staleRecoverer interface {
	RecoverStale(ctx context.Context, conn *models.Connection)
}

// TickResult summarises one scheduler pass.
type TickResult struct {
	Candidates int
	Due        int
	Dispatched int
	Recovered  int
	Failed     int
}

// syncScheduler checks on a poll interval which connections are due and hands
// them to the dispatcher. How often it checks is unrelated to how often a
// connection syncs.
type syncScheduler struct {
	settings     schedulerSettings
	conns        schedulerConnStore
	requester    syncRequester
	recoverer    staleRecoverer
	pollInterval time.Duration
	staleAfter   time.Duration
	log          *slog.Logger
	clockNow     func() time.Time
}

func NewSyncScheduler(log *slog.Logger, settings schedulerSettings, conns schedulerConnStore, requester syncRequester, recoverer staleRecoverer, pollInterval, syncTimeout time.Duration) *syncScheduler {
	return &syncScheduler{
		settings:     settings,
		conns:        conns,
		requester:    requester,
		recoverer:    recoverer,
		pollInterval: pollInterval,
		staleAfter:   2 * syncTimeout,
		log:          log.With("component", "sync_scheduler"),
		clockNow:     time.Now,
	}
}

// Start registers the tick with a cron runner and returns a stop function
// that waits for a running tick to finish.
func (s *syncScheduler) Start(ctx context.Context) (func(), error) {
	cl := logger.CronLogger(s.log)
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.pollInterval), func() {
		tickCtx := logger.ToContext(ctx, s.log)
		if _, err := s.Tick(tickCtx); err != nil {
			s.log.Error("scheduler tick failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sync poll: %w", err)
	}

	c.Start()
	s.log.Info("sync scheduler started", "poll_interval", s.pollInterval)
	return func() { <-c.Stop().Done() }, nil
}

// Tick runs one pass. A failure on one connection does not stop the others.
func (s *syncScheduler) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	log := logger.FromContext(ctx)

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return res, err
	}
	if !settings.SyncEnabled {
		log.Debug("sync disabled, skipping tick")
		return res, nil
	}

	now := s.clockNow()
	res.Recovered = s.recoverStale(ctx, now)

	conns, err := s.conns.ListSchedulable(ctx)
	if err != nil {
		return res, err
	}
	for _, c := range conns {
		if !isCandidate(c) {
			continue
		}
		res.Candidates++
		if !IsDue(c, settings, now) {
			continue
		}
		res.Due++

		ok, err := s.requester.Request(ctx, c.UID, c.ConnectionID)
		switch {
		case err != nil:
			res.Failed++
			log.Error("failed to dispatch sync", "uid", c.UID, "connection_id", c.ConnectionID, "error", err)
		case ok:
			res.Dispatched++
		}
	}

	log.Info("scheduler tick complete",
		"candidates", res.Candidates, "due", res.Due, "dispatched", res.Dispatched,
		"recovered", res.Recovered, "failed", res.Failed)
	return res, nil
}

func (s *syncScheduler) recoverStale(ctx context.Context, now time.Time) int {
	if s.staleAfter <= 0 {
		return 0
	}
	running, err := s.conns.ListRunning(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("stale sync check failed", "error", err)
		return 0
	}
	n := 0
	for _, c := range running {
		if c.LastSyncStartedAt != nil && now.Sub(*c.LastSyncStartedAt) < s.staleAfter {
			continue
		}
		s.recoverer.RecoverStale(ctx, c)
		n++
	}
	return n
}

// isCandidate: auto-sync connections that are Active, or in Error from a
// failure the next tick may clear. Fatal errors wait for the user.
func isCandidate(c *models.Connection) bool {
	if !c.AutoSync {
		return false
	}
	switch c.Status {
	case models.ConnectionActive:
		return true
	case models.ConnectionError:
		kind := errs.FailureKind(c.LastFailureKind)
		return kind == errs.FailureRateLimit || kind == errs.FailureTransient
	}
	return false
}

// IsDue reports whether conn should sync at now. Never-synced connections are
// always due.
func IsDue(conn *models.Connection, settings dto.Settings, now time.Time) bool {
	if conn.SyncStatus == models.SyncRunning {
		return false
	}
	interval := settings.SyncInterval
	if conn.Type == models.ConnectionTypeCrypto {
		interval = settings.CryptoSyncInterval
	}
	if interval <= 0 {
		return true
	}
	last := conn.LastCompletion()
	if last == nil {
		return true
	}
	return now.Sub(*last) >= interval
}
