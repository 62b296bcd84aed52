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
)

type setFakeStore struct {
	doc     models.Settings
	gets    int
	updates int
	getErr  error
}

func (f *setFakeStore) Get(_ context.Context) (*models.Settings, error) {
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	cp := f.doc
	return &cp, nil
}

func (f *setFakeStore) Update(_ context.Context, fn func(*models.Settings) error) (*models.Settings, error) {
	cp := f.doc
	if err := fn(&cp); err != nil {
		if errors.Is(err, errs.ErrNoChange) {
			return &cp, nil
		}
		return nil, err
	}
	f.updates++
	f.doc = cp
	out := cp
	return &out, nil
}

var testDefaults = SettingsDefaults{
	SyncEnabled:    true,
	SyncInterval:   time.Hour,
	CryptoInterval: 15 * time.Minute,
	AIEnabled:      true,
	AIModel:        "gemini-2.0-flash",
}

func newTestSettings(store *setFakeStore, now *time.Time) *settingsService {
	svc := NewSettingsService(store, testDefaults)
	svc.clockNow = func() time.Time { return *now }
	return svc
}

func TestSettingsCurrentDefaults(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestSettings(&setFakeStore{}, &now)

	got, err := svc.Current(helpers.TestCtx())
	if err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	if !got.SyncEnabled || got.SyncInterval != time.Hour || got.CryptoSyncInterval != 15*time.Minute {
		t.Fatalf("unexpected sync defaults: %+v", got)
	}
	if !got.AIEnabled || got.AIModel != "gemini-2.0-flash" {
		t.Fatalf("unexpected ai defaults: %+v", got)
	}
}

func TestSettingsCurrentIsCached(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &setFakeStore{}
	svc := newTestSettings(store, &now)
	ctx := helpers.TestCtx()

	svc.Current(ctx)
	svc.Current(ctx)
	if store.gets != 1 {
		t.Fatalf("expected one read within ttl, got %d", store.gets)
	}
	now = now.Add(settingsCacheTTL)
	svc.Current(ctx)
	if store.gets != 2 {
		t.Fatalf("expected refresh after ttl, got %d reads", store.gets)
	}
}

func TestSettingsUpdateClamps(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &setFakeStore{}
	svc := newTestSettings(store, &now)

	got, err := svc.Update(helpers.TestCtx(), dto.SettingsUpdate{
		SyncIntervalMs:       helpers.Ptr(int64(time.Minute / time.Millisecond)),
		CryptoSyncIntervalMs: helpers.Ptr(int64(48 * time.Hour / time.Millisecond)),
		AIModel:              helpers.Ptr("gpt-4o"),
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got.SyncInterval != 5*time.Minute {
		t.Fatalf("sync interval not clamped up: %v", got.SyncInterval)
	}
	if got.CryptoSyncInterval != 24*time.Hour {
		t.Fatalf("crypto interval not clamped down: %v", got.CryptoSyncInterval)
	}
	if got.AIModel != "gemini-2.0-flash" {
		t.Fatalf("non gemini model should fall back to default, got %q", got.AIModel)
	}
	if store.doc.SyncInterval != (5 * time.Minute).Milliseconds() {
		t.Fatalf("clamped value not stored: %d", store.doc.SyncInterval)
	}
}

func TestSettingsUpdateRejectsNegative(t *testing.T) {
	now := time.Now()
	svc := newTestSettings(&setFakeStore{}, &now)

	_, err := svc.Update(helpers.TestCtx(), dto.SettingsUpdate{SyncIntervalMs: helpers.Ptr(int64(-1))})
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSettingsEnablingAIClearsCooldown(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	store := &setFakeStore{doc: models.Settings{AIEnabled: helpers.Ptr(false), AIDisabledUntil: &until}}
	svc := newTestSettings(store, &now)

	got, err := svc.Update(helpers.TestCtx(), dto.SettingsUpdate{AIEnabled: helpers.Ptr(true)})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got.AIDisabledUntil != nil {
		t.Fatalf("expected cooldown cleared, got %v", got.AIDisabledUntil)
	}
	if !svc.AIAvailable(helpers.TestCtx()) {
		t.Fatalf("expected AI available")
	}
}

func TestResolveCryptoInterval(t *testing.T) {
	tests := []struct {
		name     string
		stored   int64
		sync     time.Duration
		def      time.Duration
		expected time.Duration
	}{
		{name: "stored override", stored: 120000, sync: time.Hour, def: 15 * time.Minute, expected: 2 * time.Minute},
		{name: "default tighter", sync: time.Hour, def: 15 * time.Minute, expected: 15 * time.Minute},
		{name: "never above sync", sync: 10 * time.Minute, def: 15 * time.Minute, expected: 10 * time.Minute},
		{name: "no default", sync: time.Hour, def: 0, expected: time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveCryptoInterval(tt.stored, tt.sync, tt.def); got != tt.expected {
				t.Fatalf("resolveCryptoInterval = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRecordAIFailureNeverShortens(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &setFakeStore{}
	svc := newTestSettings(store, &now)
	ctx := helpers.TestCtx()

	long := now.Add(24 * time.Hour)
	if err := svc.RecordAIFailure(ctx, long, "daily quota"); err != nil {
		t.Fatalf("RecordAIFailure returned error: %v", err)
	}
	if err := svc.RecordAIFailure(ctx, now.Add(10*time.Minute), "per minute quota"); err != nil {
		t.Fatalf("RecordAIFailure returned error: %v", err)
	}

	if !store.doc.AIDisabledUntil.Equal(long) {
		t.Fatalf("cooldown shortened to %v, want %v", store.doc.AIDisabledUntil, long)
	}
	if store.doc.AILastError != "per minute quota" || store.doc.AILastErrorAt == nil {
		t.Fatalf("last error not recorded: %+v", store.doc)
	}

	longer := now.Add(48 * time.Hour)
	svc.RecordAIFailure(ctx, longer, "again")
	if !store.doc.AIDisabledUntil.Equal(longer) {
		t.Fatalf("cooldown not extended: %v", store.doc.AIDisabledUntil)
	}
}

func TestAIAvailable(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)

	tests := []struct {
		name     string
		doc      models.Settings
		getErr   error
		advance  time.Duration
		expected bool
	}{
		{name: "enabled by default", expected: true},
		{name: "disabled", doc: models.Settings{AIEnabled: helpers.Ptr(false)}, expected: false},
		{name: "cooling down", doc: models.Settings{AIDisabledUntil: &until}, expected: false},
		{name: "cooldown over", doc: models.Settings{AIDisabledUntil: &until}, advance: time.Minute, expected: true},
		{name: "store error", getErr: errors.New("down"), expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := now.Add(tt.advance)
			svc := newTestSettings(&setFakeStore{doc: tt.doc, getErr: tt.getErr}, &clock)
			if got := svc.AIAvailable(helpers.TestCtx()); got != tt.expected {
				t.Fatalf("AIAvailable = %v, want %v", got, tt.expected)
			}
		})
	}
}
