package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

type schedFakeSettings struct {
	settings dto.Settings
	err      error
}

func (f *schedFakeSettings) Current(context.Context) (dto.Settings, error) {
	return f.settings, f.err
}

type schedFakeConns struct {
	schedulable []*models.Connection
	running     []*models.Connection
	listErr     error
}

func (f *schedFakeConns) ListSchedulable(context.Context) ([]*models.Connection, error) {
	return f.schedulable, f.listErr
}

func (f *schedFakeConns) ListRunning(context.Context) ([]*models.Connection, error) {
	return f.running, nil
}

type schedFakeRequester struct {
	requested []string
	failFor   string
}

func (f *schedFakeRequester) Request(_ context.Context, _, id string) (bool, error) {
	f.requested = append(f.requested, id)
	if id == f.failFor {
		return false, errors.New("firestore unavailable")
	}
	return true, nil
}

type schedFakeRecoverer struct {
	recovered []string
}

func (f *schedFakeRecoverer) RecoverStale(_ context.Context, conn *models.Connection) {
	f.recovered = append(f.recovered, conn.ConnectionID)
}

var schedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func schedSettings() dto.Settings {
	return dto.Settings{SyncEnabled: true, SyncInterval: time.Hour, CryptoSyncInterval: 15 * time.Minute}
}

func TestIsDue(t *testing.T) {
	ago := func(d time.Duration) *time.Time { return helpers.Ptr(schedNow.Add(-d)) }

	tests := []struct {
		name     string
		conn     models.Connection
		settings func(*dto.Settings)
		expected bool
	}{
		{name: "never synced", conn: models.Connection{}, expected: true},
		{name: "running", conn: models.Connection{SyncStatus: models.SyncRunning}, expected: false},
		{name: "completed recently", conn: models.Connection{LastSyncCompletedAt: ago(30 * time.Minute)}, expected: false},
		{name: "completed an interval ago", conn: models.Connection{LastSyncCompletedAt: ago(time.Hour)}, expected: true},
		{name: "falls back to last synced", conn: models.Connection{LastSyncedAt: ago(2 * time.Hour)}, expected: true},
		{name: "completion wins over synced", conn: models.Connection{LastSyncCompletedAt: ago(10 * time.Minute), LastSyncedAt: ago(5 * time.Hour)}, expected: false},
		{name: "crypto interval", conn: models.Connection{Type: models.ConnectionTypeCrypto, LastSyncCompletedAt: ago(20 * time.Minute)}, expected: true},
		{name: "zero interval", conn: models.Connection{LastSyncCompletedAt: ago(time.Second)}, settings: func(s *dto.Settings) { s.SyncInterval = 0 }, expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := schedSettings()
			if tt.settings != nil {
				tt.settings(&s)
			}
			if got := IsDue(&tt.conn, s, schedNow); got != tt.expected {
				t.Fatalf("IsDue = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsCandidate(t *testing.T) {
	tests := []struct {
		name     string
		conn     models.Connection
		expected bool
	}{
		{name: "active", conn: models.Connection{AutoSync: true, Status: models.ConnectionActive}, expected: true},
		{name: "auto sync off", conn: models.Connection{Status: models.ConnectionActive}, expected: false},
		{name: "pending", conn: models.Connection{AutoSync: true, Status: models.ConnectionPending}, expected: false},
		{name: "disabled", conn: models.Connection{AutoSync: true, Status: models.ConnectionDisabled}, expected: false},
		{name: "rate limited", conn: models.Connection{AutoSync: true, Status: models.ConnectionError, LastFailureKind: string(errs.FailureRateLimit)}, expected: true},
		{name: "transient", conn: models.Connection{AutoSync: true, Status: models.ConnectionError, LastFailureKind: string(errs.FailureTransient)}, expected: true},
		{name: "fatal", conn: models.Connection{AutoSync: true, Status: models.ConnectionError, LastFailureKind: string(errs.FailureFatal)}, expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCandidate(&tt.conn); got != tt.expected {
				t.Fatalf("isCandidate = %v, want %v", got, tt.expected)
			}
		})
	}
}

func newTestScheduler(settings *schedFakeSettings, conns *schedFakeConns, req *schedFakeRequester, rec *schedFakeRecoverer) *syncScheduler {
	s := NewSyncScheduler(logger.New("debug", logger.NewTestHandler), settings, conns, req, rec, time.Minute, 10*time.Minute)
	s.clockNow = func() time.Time { return schedNow }
	return s
}

func TestTickDisabledIsNoop(t *testing.T) {
	settings := &schedFakeSettings{settings: dto.Settings{SyncEnabled: false}}
	conns := &schedFakeConns{schedulable: []*models.Connection{{ConnectionID: "c1", AutoSync: true, Status: models.ConnectionActive}}}
	req := &schedFakeRequester{}
	s := newTestScheduler(settings, conns, req, &schedFakeRecoverer{})

	res, err := s.Tick(helpers.TestCtx())
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if len(req.requested) != 0 || res.Dispatched != 0 {
		t.Fatalf("expected no dispatch when sync is disabled")
	}
}

func TestTickDispatchesDueConnections(t *testing.T) {
	recent := schedNow.Add(-10 * time.Minute)
	conns := &schedFakeConns{schedulable: []*models.Connection{
		{ConnectionID: "due", UID: "u1", AutoSync: true, Status: models.ConnectionActive},
		{ConnectionID: "fresh", UID: "u1", AutoSync: true, Status: models.ConnectionActive, LastSyncCompletedAt: &recent},
		{ConnectionID: "broken", UID: "u2", AutoSync: true, Status: models.ConnectionActive},
		{ConnectionID: "fatal", UID: "u2", AutoSync: true, Status: models.ConnectionError, LastFailureKind: string(errs.FailureFatal)},
		{ConnectionID: "after", UID: "u3", AutoSync: true, Status: models.ConnectionActive},
	}}
	req := &schedFakeRequester{failFor: "broken"}
	s := newTestScheduler(&schedFakeSettings{settings: schedSettings()}, conns, req, &schedFakeRecoverer{})

	res, err := s.Tick(helpers.TestCtx())
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	want := []string{"due", "broken", "after"}
	if len(req.requested) != len(want) {
		t.Fatalf("requested %v, want %v", req.requested, want)
	}
	for i, id := range want {
		if req.requested[i] != id {
			t.Fatalf("requested %v, want %v", req.requested, want)
		}
	}
	if res.Candidates != 4 || res.Due != 3 || res.Dispatched != 2 || res.Failed != 1 {
		t.Fatalf("unexpected tick result: %+v", res)
	}
}

func TestTickRecoversStaleRuns(t *testing.T) {
	old := schedNow.Add(-time.Hour)
	recent := schedNow.Add(-5 * time.Minute)
	conns := &schedFakeConns{running: []*models.Connection{
		{ConnectionID: "stuck", LastSyncStartedAt: &old},
		{ConnectionID: "busy", LastSyncStartedAt: &recent},
	}}
	rec := &schedFakeRecoverer{}
	s := newTestScheduler(&schedFakeSettings{settings: schedSettings()}, conns, &schedFakeRequester{}, rec)

	res, err := s.Tick(helpers.TestCtx())
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if res.Recovered != 1 || len(rec.recovered) != 1 || rec.recovered[0] != "stuck" {
		t.Fatalf("expected only the stuck run recovered, got %v", rec.recovered)
	}
}

func TestTickSettingsError(t *testing.T) {
	s := newTestScheduler(&schedFakeSettings{err: errors.New("down")}, &schedFakeConns{}, &schedFakeRequester{}, &schedFakeRecoverer{})
	if _, err := s.Tick(helpers.TestCtx()); err == nil {
		t.Fatalf("expected error")
	}
}
