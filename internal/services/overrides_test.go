package services

import (
	"context"
	"errors"
	"testing"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
)

type ovFakeStore struct {
	rules   map[string]models.CategoryOverride
	deleted []string
}

func newOVFakeStore() *ovFakeStore {
	return &ovFakeStore{rules: map[string]models.CategoryOverride{}}
}

func (f *ovFakeStore) List(_ context.Context, _ string) ([]models.CategoryOverride, error) {
	out := make([]models.CategoryOverride, 0, len(f.rules))
	for _, o := range f.rules {
		out = append(out, o)
	}
	return out, nil
}

func (f *ovFakeStore) Get(_ context.Context, _, id string) (*models.CategoryOverride, error) {
	o, ok := f.rules[id]
	if !ok {
		return nil, errs.NewNotFoundError("category override not found")
	}
	return &o, nil
}

func (f *ovFakeStore) Upsert(_ context.Context, _ string, o *models.CategoryOverride) error {
	o.OverrideID = string(o.MatchType) + ":" + o.MatchValue
	f.rules[o.OverrideID] = *o
	return nil
}

func (f *ovFakeStore) Delete(_ context.Context, _, id string) error {
	if _, ok := f.rules[id]; !ok {
		return errs.NewNotFoundError("category override not found")
	}
	delete(f.rules, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type ovFakeTxs struct {
	txs     []models.Transaction
	batches [][]models.Transaction
}

func (f *ovFakeTxs) ForEach(_ context.Context, _ string, fn func(*models.Transaction) error) error {
	for i := range f.txs {
		tx := f.txs[i]
		if err := fn(&tx); err != nil {
			return err
		}
	}
	return nil
}

func (f *ovFakeTxs) UpsertBatch(_ context.Context, _ string, txs []models.Transaction) error {
	f.batches = append(f.batches, append([]models.Transaction(nil), txs...))
	return nil
}

type ovFakeCache struct {
	invalidated []string
}

func (f *ovFakeCache) InvalidateOverrides(uid string) {
	f.invalidated = append(f.invalidated, uid)
}

func TestMatchOverrideExactOutranksContains(t *testing.T) {
	rules := []models.CategoryOverride{
		{MatchType: models.MatchMerchant, MatchMode: models.MatchContains, MatchValue: "carrefour", Category: "Groceries"},
		{MatchType: models.MatchMerchant, MatchMode: models.MatchExact, MatchValue: "carrefourexpress", Category: "Snacks"},
	}
	// reverse order must not change the winner
	for _, order := range [][]models.CategoryOverride{rules, {rules[1], rules[0]}} {
		got, ok := matchOverride(order, "", "Carrefour Express", "")
		if !ok || got.Category != "Snacks" {
			t.Fatalf("expected exact merchant rule to win, got %+v ok=%v", got, ok)
		}
	}
}

func TestMatchOverrideLongerContainsWins(t *testing.T) {
	rules := []models.CategoryOverride{
		{MatchType: models.MatchDescription, MatchMode: models.MatchContains, MatchValue: "shell", Category: "Transport"},
		{MatchType: models.MatchDescription, MatchMode: models.MatchContains, MatchValue: "shellshop", Category: "Shopping"},
	}
	got, ok := matchOverride(rules, "", "", "SHELL SHOP 0042")
	if !ok || got.Category != "Shopping" {
		t.Fatalf("expected longer value to win, got %+v", got)
	}
}

func TestMatchOverrideTierOrder(t *testing.T) {
	rules := []models.CategoryOverride{
		{MatchType: models.MatchDescription, MatchMode: models.MatchExact, MatchValue: "rentmarch", Category: "Housing"},
		{MatchType: models.MatchMerchant, MatchMode: models.MatchContains, MatchValue: "immo", Category: "Other"},
		{MatchType: models.MatchIBAN, MatchMode: models.MatchExact, MatchValue: "be71096123456769", Category: "Family"},
	}

	got, _ := matchOverride(rules, "BE71 0961 2345 6769", "Immo Peeters", "Rent March")
	if got.Category != "Family" {
		t.Fatalf("IBAN rule should win, got %q", got.Category)
	}
	got, _ = matchOverride(rules, "", "Immo Peeters", "Rent March")
	if got.Category != "Other" {
		t.Fatalf("merchant rule should beat description rule, got %q", got.Category)
	}
	got, _ = matchOverride(rules, "", "", "Rent March")
	if got.Category != "Housing" {
		t.Fatalf("description rule expected, got %q", got.Category)
	}
	if _, ok := matchOverride(rules, "", "", "Rent April"); ok {
		t.Fatalf("exact description rule must not match a different text")
	}
}

func TestOverrideServiceCreateNormalizes(t *testing.T) {
	store := newOVFakeStore()
	cache := &ovFakeCache{}
	svc := NewOverrideService(store, &ovFakeTxs{}, cache)

	res, err := svc.Create(helpers.TestCtx(), "uid-1", dto.OverrideRequest{
		MatchType:  models.MatchIBAN,
		MatchMode:  models.MatchContains,
		MatchValue: "BE71 0961-2345 6769",
		Category:   " Family ",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	o := res.Override
	if o.MatchMode != models.MatchExact {
		t.Fatalf("IBAN rules must be exact, got %s", o.MatchMode)
	}
	if o.MatchValue != "be71096123456769" || o.Category != "Family" {
		t.Fatalf("unexpected normalized rule: %+v", o)
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("expected override cache invalidation, got %v", cache.invalidated)
	}

	res, err = svc.Create(helpers.TestCtx(), "uid-1", dto.OverrideRequest{
		MatchType:  models.MatchMerchant,
		MatchValue: "Delhaize",
		Category:   "Groceries",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if res.Override.MatchMode != models.MatchContains {
		t.Fatalf("merchant rules default to contains, got %s", res.Override.MatchMode)
	}
}

func TestOverrideServiceCreateValidation(t *testing.T) {
	svc := NewOverrideService(newOVFakeStore(), &ovFakeTxs{}, nil)

	cases := []dto.OverrideRequest{
		{MatchType: "COLOR", MatchValue: "x", Category: "Other"},
		{MatchType: models.MatchMerchant, MatchValue: " -- ", Category: "Other"},
		{MatchType: models.MatchMerchant, MatchValue: "shop", Category: ""},
		{MatchType: models.MatchMerchant, MatchMode: "FUZZY", MatchValue: "shop", Category: "Other"},
	}
	for _, req := range cases {
		_, err := svc.Create(helpers.TestCtx(), "uid-1", req)
		var ve *errs.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError for %+v, got %v", req, err)
		}
	}
}

func TestOverrideServiceUpdateMovesRule(t *testing.T) {
	store := newOVFakeStore()
	svc := NewOverrideService(store, &ovFakeTxs{}, nil)
	ctx := helpers.TestCtx()

	created, err := svc.Create(ctx, "uid-1", dto.OverrideRequest{MatchType: models.MatchMerchant, MatchValue: "colruyt", Category: "Groceries"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	updated, err := svc.Update(ctx, "uid-1", created.Override.OverrideID, dto.OverrideRequest{MatchValue: "colruyt laagste prijzen"})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Override.Category != "Groceries" || updated.Override.MatchValue != "colruytlaagsteprijzen" {
		t.Fatalf("unexpected updated rule: %+v", updated.Override)
	}
	if len(store.deleted) != 1 || store.deleted[0] != created.Override.OverrideID {
		t.Fatalf("expected old rule removed, deleted=%v", store.deleted)
	}
	if len(store.rules) != 1 {
		t.Fatalf("expected exactly one rule, got %d", len(store.rules))
	}
}

func TestOverrideServiceApplyToHistory(t *testing.T) {
	store := newOVFakeStore()
	txs := &ovFakeTxs{txs: []models.Transaction{
		{TransactionID: "t1", Merchant: "Bakkerij Jansen", Category: CategoryOther, CategorySource: models.SourceRule},
		{TransactionID: "t2", Merchant: "Bakkerij Jansen", Category: "Dining", CategorySource: models.SourceOverride},
		{TransactionID: "t3", Merchant: "Slagerij Peeters", Category: CategoryOther, CategorySource: models.SourceRule},
	}}
	svc := NewOverrideService(store, txs, nil)

	res, err := svc.Create(helpers.TestCtx(), "uid-1", dto.OverrideRequest{
		MatchType:      models.MatchMerchant,
		MatchValue:     "bakkerij",
		Category:       "Dining",
		ApplyToHistory: true,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("expected 1 transaction relabelled, got %d", res.Applied)
	}
	got := txs.batches[0][0]
	if got.TransactionID != "t1" || got.Category != "Dining" || got.CategorySource != models.SourceOverride || got.CategoryConfidence != 0.98 {
		t.Fatalf("unexpected relabelled transaction: %+v", got)
	}
}

func TestNormalizeValue(t *testing.T) {
	if got := normalizeValue(" Albert-Heijn 1234! "); got != "albertheijn1234" {
		t.Fatalf("normalizeValue = %q", got)
	}
}
