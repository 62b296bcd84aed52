package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

const (
	settingsCacheTTL  = 15 * time.Second
	minSyncInterval   = 5 * time.Minute
	maxSyncInterval   = 24 * time.Hour
	minCryptoInterval = time.Minute
	maxCryptoInterval = 24 * time.Hour
)

type settingsSSStore interface {
	Get(ctx context.Context) (*models.Settings, error)
	Update(ctx context.Context, fn func(*models.Settings) error) (*models.Settings, error)
}

// SettingsDefaults are the configured values used where the stored settings
// document is silent.
type SettingsDefaults struct {
	SyncEnabled    bool
	SyncInterval   time.Duration
	CryptoInterval time.Duration
	AIEnabled      bool
	AIModel        string
}

type settingsService struct {
	store    settingsSSStore
	defaults SettingsDefaults
	clockNow func() time.Time

	mu       sync.Mutex
	cached   *models.Settings
	cachedAt time.Time
}

func NewSettingsService(store settingsSSStore, defaults SettingsDefaults) *settingsService {
	return &settingsService{
		store:    store,
		defaults: defaults,
		clockNow: time.Now,
	}
}

func (s *settingsService) Current(ctx context.Context) (dto.Settings, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return dto.Settings{}, err
	}
	return s.resolve(doc), nil
}

func (s *settingsService) Update(ctx context.Context, upd dto.SettingsUpdate) (dto.Settings, error) {
	if upd.SyncIntervalMs != nil && *upd.SyncIntervalMs < 0 {
		return dto.Settings{}, errs.NewValidationError("syncIntervalMs must not be negative")
	}
	if upd.CryptoSyncIntervalMs != nil && *upd.CryptoSyncIntervalMs < 0 {
		return dto.Settings{}, errs.NewValidationError("cryptoSyncIntervalMs must not be negative")
	}

	doc, err := s.store.Update(ctx, func(cur *models.Settings) error {
		if upd.SyncEnabled != nil {
			cur.SyncEnabled = helpers.Ptr(*upd.SyncEnabled)
		}
		if upd.SyncIntervalMs != nil {
			cur.SyncInterval = clampMillis(*upd.SyncIntervalMs, minSyncInterval, maxSyncInterval)
		}
		if upd.CryptoSyncIntervalMs != nil {
			cur.CryptoSyncInterval = clampMillis(*upd.CryptoSyncIntervalMs, minCryptoInterval, maxCryptoInterval)
		}
		if upd.AIEnabled != nil {
			cur.AIEnabled = helpers.Ptr(*upd.AIEnabled)
			if *upd.AIEnabled {
				cur.AIDisabledUntil = nil
			}
		}
		if upd.AIModel != nil {
			cur.AIModel = s.normalizeModel(*upd.AIModel)
		}
		return nil
	})
	if err != nil {
		return dto.Settings{}, err
	}

	s.remember(doc)
	logger.FromContext(ctx).Info("settings updated")
	return s.resolve(doc), nil
}

// AIAvailable reports whether AI is enabled and not cooling down. A settings
// read failure counts as unavailable.
func (s *settingsService) AIAvailable(ctx context.Context) bool {
	cur, err := s.Current(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("settings unavailable, treating AI as disabled", "error", err)
		return false
	}
	if !cur.AIEnabled {
		return false
	}
	return cur.AIDisabledUntil == nil || !s.clockNow().Before(*cur.AIDisabledUntil)
}

// RecordAIFailure stores the error and pushes the cooldown out to until. An
// earlier until never shortens an existing cooldown.
func (s *settingsService) RecordAIFailure(ctx context.Context, until time.Time, errText string) error {
	now := s.clockNow()
	doc, err := s.store.Update(ctx, func(cur *models.Settings) error {
		cur.AIDisabledUntil = extendCooldown(cur.AIDisabledUntil, until)
		cur.AILastError = errText
		cur.AILastErrorAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	s.remember(doc)
	return nil
}

func (s *settingsService) load(ctx context.Context) (*models.Settings, error) {
	s.mu.Lock()
	if s.cached != nil && s.clockNow().Sub(s.cachedAt) < settingsCacheTTL {
		doc := s.cached
		s.mu.Unlock()
		return doc, nil
	}
	s.mu.Unlock()

	doc, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(doc)
	return doc, nil
}

func (s *settingsService) remember(doc *models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = doc
	s.cachedAt = s.clockNow()
}

func (s *settingsService) resolve(doc *models.Settings) dto.Settings {
	syncInterval := s.defaults.SyncInterval
	if doc.SyncInterval > 0 {
		syncInterval = time.Duration(doc.SyncInterval) * time.Millisecond
	}

	return dto.Settings{
		SyncEnabled:        helpers.ValueOr(doc.SyncEnabled, s.defaults.SyncEnabled),
		SyncInterval:       syncInterval,
		CryptoSyncInterval: resolveCryptoInterval(doc.CryptoSyncInterval, syncInterval, s.defaults.CryptoInterval),
		AIEnabled:          helpers.ValueOr(doc.AIEnabled, s.defaults.AIEnabled),
		AIModel:            s.normalizeModel(doc.AIModel),
		AIDisabledUntil:    doc.AIDisabledUntil,
		AILastError:        doc.AILastError,
		AILastErrorAt:      doc.AILastErrorAt,
	}
}

func (s *settingsService) normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	if !strings.HasPrefix(strings.ToLower(model), "gemini") {
		return s.defaults.AIModel
	}
	return model
}

// resolveCryptoInterval: a stored override wins, otherwise the tighter of the
// sync interval and the configured crypto default.
func resolveCryptoInterval(storedMs int64, syncInterval, cryptoDefault time.Duration) time.Duration {
	if storedMs > 0 {
		return time.Duration(storedMs) * time.Millisecond
	}
	if cryptoDefault <= 0 {
		return syncInterval
	}
	return min(syncInterval, cryptoDefault)
}

func clampMillis(ms int64, lo, hi time.Duration) int64 {
	if ms == 0 {
		return 0
	}
	d := time.Duration(ms) * time.Millisecond
	d = max(lo, min(hi, d))
	return d.Milliseconds()
}

func extendCooldown(existing *time.Time, until time.Time) *time.Time {
	if existing != nil && existing.After(until) {
		return existing
	}
	return &until
}
