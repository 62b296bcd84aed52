package services

import (
	"context"
	"strings"
	"time"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

const historyBatchSize = 400

type overrideOSStore interface {
	List(ctx context.Context, uid string) ([]models.CategoryOverride, error)
	Get(ctx context.Context, uid, overrideID string) (*models.CategoryOverride, error)
	Upsert(ctx context.Context, uid string, o *models.CategoryOverride) error
	Delete(ctx context.Context, uid, overrideID string) error
}

type overrideOSTxStore interface {
	ForEach(ctx context.Context, uid string, fn func(*models.Transaction) error) error
	UpsertBatch(ctx context.Context, uid string, txs []models.Transaction) error
}

type overrideCacheInvalidator interface {
	InvalidateOverrides(uid string)
}

type overrideService struct {
	store    overrideOSStore
	txs      overrideOSTxStore
	cache    overrideCacheInvalidator
	clockNow func() time.Time
}

func NewOverrideService(store overrideOSStore, txs overrideOSTxStore, cache overrideCacheInvalidator) *overrideService {
	return &overrideService{
		store:    store,
		txs:      txs,
		cache:    cache,
		clockNow: time.Now,
	}
}

func (s *overrideService) List(ctx context.Context, uid string) ([]models.CategoryOverride, error) {
	return s.store.List(ctx, uid)
}

func (s *overrideService) Create(ctx context.Context, uid string, req dto.OverrideRequest) (dto.OverrideResult, error) {
	o, err := buildOverride(req)
	if err != nil {
		return dto.OverrideResult{}, err
	}
	if err := s.save(ctx, uid, o); err != nil {
		return dto.OverrideResult{}, err
	}

	res := dto.OverrideResult{Override: o}
	if req.ApplyToHistory {
		if res.Applied, err = s.applyToHistory(ctx, uid, o); err != nil {
			return res, err
		}
	}
	return res, nil
}

// SaveRule upserts a rule built elsewhere, e.g. from a category correction.
func (s *overrideService) SaveRule(ctx context.Context, uid string, o models.CategoryOverride) (*models.CategoryOverride, error) {
	if o.MatchMode == "" {
		o.MatchMode = models.MatchContains
	}
	if o.MatchType == models.MatchIBAN {
		o.MatchMode = models.MatchExact
	}
	o.MatchValue = normalizeValue(o.MatchValue)
	if o.MatchValue == "" || strings.TrimSpace(o.Category) == "" {
		return nil, errs.NewValidationError("rule needs a match value and a category")
	}
	if err := s.save(ctx, uid, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Update rewrites a rule. Changing the match type or value moves the rule to
// a new id, so the old document is removed.
func (s *overrideService) Update(ctx context.Context, uid, overrideID string, req dto.OverrideRequest) (dto.OverrideResult, error) {
	existing, err := s.store.Get(ctx, uid, overrideID)
	if err != nil {
		return dto.OverrideResult{}, err
	}
	if req.MatchType == "" {
		req.MatchType = existing.MatchType
	}
	if req.MatchMode == "" {
		req.MatchMode = existing.MatchMode
	}
	if strings.TrimSpace(req.MatchValue) == "" {
		req.MatchValue = existing.MatchValue
	}
	if strings.TrimSpace(req.Category) == "" {
		req.Category = existing.Category
	}

	o, err := buildOverride(req)
	if err != nil {
		return dto.OverrideResult{}, err
	}
	if err := s.save(ctx, uid, o); err != nil {
		return dto.OverrideResult{}, err
	}
	if o.OverrideID != existing.OverrideID {
		if err := s.store.Delete(ctx, uid, existing.OverrideID); err != nil {
			return dto.OverrideResult{}, err
		}
	}

	res := dto.OverrideResult{Override: o}
	if req.ApplyToHistory {
		if res.Applied, err = s.applyToHistory(ctx, uid, o); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *overrideService) Delete(ctx context.Context, uid, overrideID string) error {
	if err := s.store.Delete(ctx, uid, overrideID); err != nil {
		return err
	}
	s.invalidate(uid)
	return nil
}

// ApplyToHistory relabels existing transactions matched by the rule.
func (s *overrideService) ApplyToHistory(ctx context.Context, uid, overrideID string) (int, error) {
	o, err := s.store.Get(ctx, uid, overrideID)
	if err != nil {
		return 0, err
	}
	return s.applyToHistory(ctx, uid, o)
}

func (s *overrideService) save(ctx context.Context, uid string, o *models.CategoryOverride) error {
	if err := s.store.Upsert(ctx, uid, o); err != nil {
		return err
	}
	s.invalidate(uid)
	return nil
}

func (s *overrideService) invalidate(uid string) {
	if s.cache != nil {
		s.cache.InvalidateOverrides(uid)
	}
}

func (s *overrideService) applyToHistory(ctx context.Context, uid string, o *models.CategoryOverride) (int, error) {
	now := s.clockNow()
	var batch []models.Transaction
	applied := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.txs.UpsertBatch(ctx, uid, batch); err != nil {
			return err
		}
		applied += len(batch)
		batch = batch[:0]
		return nil
	}

	err := s.txs.ForEach(ctx, uid, func(tx *models.Transaction) error {
		if !overrideMatches(*o, tx.CounterpartyIBAN, tx.Merchant, tx.Description) {
			return nil
		}
		if tx.Category == o.Category && tx.CategorySource == models.SourceOverride {
			return nil
		}
		tx.Category = o.Category
		tx.CategorySource = models.SourceOverride
		tx.CategoryConfidence = 0.98
		tx.CategoryReason = "User rule"
		tx.UpdatedAt = now
		batch = append(batch, *tx)
		if len(batch) >= historyBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return applied, err
	}
	if err := flush(); err != nil {
		return applied, err
	}

	logger.FromContext(ctx).Info("rule applied to history", "override_id", o.OverrideID, "applied", applied)
	return applied, nil
}

func buildOverride(req dto.OverrideRequest) (*models.CategoryOverride, error) {
	switch req.MatchType {
	case models.MatchIBAN, models.MatchMerchant, models.MatchDescription:
	default:
		return nil, errs.NewValidationError("matchType must be IBAN, MERCHANT or DESCRIPTION")
	}

	mode := req.MatchMode
	switch {
	case req.MatchType == models.MatchIBAN:
		mode = models.MatchExact
	case mode == "":
		mode = models.MatchContains
	case mode != models.MatchExact && mode != models.MatchContains:
		return nil, errs.NewValidationError("matchMode must be EXACT or CONTAINS")
	}

	value := normalizeValue(req.MatchValue)
	if value == "" {
		return nil, errs.NewValidationError("matchValue is required")
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, errs.NewValidationError("category is required")
	}

	return &models.CategoryOverride{
		MatchType:  req.MatchType,
		MatchMode:  mode,
		MatchValue: value,
		Category:   category,
	}, nil
}

// normalizeValue lowercases and keeps [a-z0-9] only.
func normalizeValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func overrideMatches(o models.CategoryOverride, iban, merchant, description string) bool {
	switch o.MatchType {
	case models.MatchIBAN:
		return normalizeValue(iban) == o.MatchValue
	case models.MatchMerchant:
		return valueMatches(o, normalizeValue(merchant))
	case models.MatchDescription:
		return valueMatches(o, normalizeValue(description))
	}
	return false
}

func valueMatches(o models.CategoryOverride, text string) bool {
	if text == "" || o.MatchValue == "" {
		return false
	}
	if o.MatchMode == models.MatchExact {
		return text == o.MatchValue
	}
	return strings.Contains(text, o.MatchValue)
}

// matchOverride picks the winning rule: an exact IBAN rule first, then the
// most specific merchant rule, then the most specific description rule.
// Exact beats contains; among equals the longer value wins.
func matchOverride(overrides []models.CategoryOverride, iban, merchant, description string) (models.CategoryOverride, bool) {
	if n := normalizeValue(iban); n != "" {
		for _, o := range overrides {
			if o.MatchType == models.MatchIBAN && o.MatchValue == n {
				return o, true
			}
		}
	}
	for _, field := range []struct {
		kind models.MatchType
		text string
	}{
		{models.MatchMerchant, normalizeValue(merchant)},
		{models.MatchDescription, normalizeValue(description)},
	} {
		var best models.CategoryOverride
		found := false
		for _, o := range overrides {
			if o.MatchType != field.kind || !valueMatches(o, field.text) {
				continue
			}
			if !found || moreSpecific(o, best) {
				best, found = o, true
			}
		}
		if found {
			return best, true
		}
	}
	return models.CategoryOverride{}, false
}

func moreSpecific(a, b models.CategoryOverride) bool {
	if a.MatchMode != b.MatchMode {
		return a.MatchMode == models.MatchExact
	}
	return len(a.MatchValue) > len(b.MatchValue)
}
