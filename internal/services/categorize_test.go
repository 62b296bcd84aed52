package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
)

type catFakeOverrides struct {
	rules []models.CategoryOverride
	err   error
	calls int
}

func (f *catFakeOverrides) List(_ context.Context, _ string) ([]models.CategoryOverride, error) {
	f.calls++
	return f.rules, f.err
}

type catFakeAccounts struct {
	accounts []models.Account
	err      error
	calls    int
}

func (f *catFakeAccounts) List(_ context.Context, _ string) ([]models.Account, error) {
	f.calls++
	return f.accounts, f.err
}

type catFakeCategories struct {
	names []string
	err   error
}

func (f *catFakeCategories) ListNames(_ context.Context, _ string) ([]string, error) {
	return f.names, f.err
}

type catFakeAI struct {
	available bool
	answer    string
	err       error
	calls     int
	allowed   []string
}

func (f *catFakeAI) Available(_ context.Context) bool { return f.available }

func (f *catFakeAI) Categorize(_ context.Context, _ dto.ClassifyInput, allowed []string) (string, error) {
	f.calls++
	f.allowed = allowed
	return f.answer, f.err
}

type categorizerDeps struct {
	overrides  *catFakeOverrides
	accounts   *catFakeAccounts
	categories *catFakeCategories
	ai         *catFakeAI
}

func newTestCategorizer() (*categorizer, categorizerDeps) {
	deps := categorizerDeps{
		overrides:  &catFakeOverrides{},
		accounts:   &catFakeAccounts{},
		categories: &catFakeCategories{},
		ai:         &catFakeAI{},
	}
	return NewCategorizer(deps.overrides, deps.accounts, deps.categories, deps.ai), deps
}

func outgoing(description string) dto.ClassifyInput {
	return dto.ClassifyInput{
		UID:         "uid-1",
		Description: description,
		Direction:   models.DirectionOut,
		AccountType: models.ConnectionTypeBank,
		Currency:    "EUR",
		Amount:      decimal.RequireFromString("12.40"),
	}
}

func assertResult(t *testing.T, got dto.CategoryResult, category string, source models.CategorySource, confidence float64) {
	t.Helper()
	if got.Category != category || got.Source != source || got.Confidence != confidence {
		t.Fatalf("got (%q, %s, %v), want (%q, %s, %v)", got.Category, got.Source, got.Confidence, category, source, confidence)
	}
}

func TestClassifyCryptoAccount(t *testing.T) {
	c, _ := newTestCategorizer()
	in := outgoing("Carrefour Brussel")
	in.AccountType = models.ConnectionTypeCrypto

	got := c.Classify(helpers.TestCtx(), in)
	assertResult(t, got, CategoryCrypto, models.SourceRule, 0.95)
}

func TestClassifyKeywordWithoutAI(t *testing.T) {
	c, deps := newTestCategorizer()

	got := c.Classify(helpers.TestCtx(), outgoing("Carrefour Brussel"))
	assertResult(t, got, CategoryGroceries, models.SourceRule, 0.7)
	if got.Reason != "Match on 'carrefour'" {
		t.Fatalf("unexpected reason %q", got.Reason)
	}
	if deps.ai.calls != 0 {
		t.Fatalf("AI must not be called for a keyword hit")
	}
}

func TestClassifyOwnAccountTransfer(t *testing.T) {
	c, deps := newTestCategorizer()
	deps.accounts.accounts = []models.Account{{AccountID: "a1", IBAN: "BE71 0961 2345 6769"}}

	in := outgoing("Overschrijving naar spaarrekening BE71096123456769")
	got := c.Classify(helpers.TestCtx(), in)
	assertResult(t, got, CategoryTransfer, models.SourceRule, 0.92)

	// identifiers are cached
	c.Classify(helpers.TestCtx(), in)
	if deps.accounts.calls != 1 {
		t.Fatalf("expected one account lookup, got %d", deps.accounts.calls)
	}
}

func TestClassifyTierOrder(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*dto.ClassifyInput)
		category   string
		confidence float64
		reason     string
	}{
		{name: "transfer type", mutate: func(in *dto.ClassifyInput) { in.TxType = "transfer" }, category: CategoryTransfer, confidence: 0.9, reason: "Type TRANSFER"},
		{name: "crypto exchange", mutate: func(in *dto.ClassifyInput) { in.Merchant = "Crypto.com" }, category: CategoryCrypto, confidence: 0.85, reason: "Crypto exchange"},
		{name: "incoming", mutate: func(in *dto.ClassifyInput) { in.Direction = models.DirectionIn }, category: CategoryIncome, confidence: 0.9, reason: "Incoming transaction"},
		{name: "no match", mutate: func(in *dto.ClassifyInput) { in.Description = "Wire 8812" }, category: CategoryOther, confidence: 0.4, reason: "No match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCategorizer()
			in := outgoing("Carrefour Brussel")
			tt.mutate(&in)
			got := c.Classify(helpers.TestCtx(), in)
			assertResult(t, got, tt.category, models.SourceRule, tt.confidence)
			if got.Reason != tt.reason {
				t.Fatalf("reason = %q, want %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestClassifyIncomeIgnoresOverrides(t *testing.T) {
	c, deps := newTestCategorizer()
	deps.overrides.rules = []models.CategoryOverride{
		{MatchType: models.MatchDescription, MatchMode: models.MatchContains, MatchValue: "refund", Category: "Shopping"},
	}
	in := outgoing("Refund order 11")
	in.Direction = models.DirectionIn

	got := c.Classify(helpers.TestCtx(), in)
	assertResult(t, got, CategoryIncome, models.SourceRule, 0.9)
}

func TestClassifyOverrideBeatsKeyword(t *testing.T) {
	c, deps := newTestCategorizer()
	deps.overrides.rules = []models.CategoryOverride{
		{MatchType: models.MatchDescription, MatchMode: models.MatchContains, MatchValue: "carrefour", Category: "Household"},
	}

	got := c.Classify(helpers.TestCtx(), outgoing("Carrefour Brussel"))
	assertResult(t, got, "Household", models.SourceOverride, 0.98)

	c.InvalidateOverrides("uid-1")
	c.Classify(helpers.TestCtx(), outgoing("Carrefour Brussel"))
	if deps.overrides.calls != 2 {
		t.Fatalf("expected a reload after invalidation, got %d loads", deps.overrides.calls)
	}
}

func TestClassifyOverrideStoreFailureDegrades(t *testing.T) {
	c, deps := newTestCategorizer()
	deps.overrides.err = errors.New("firestore unavailable")
	deps.accounts.err = errors.New("firestore unavailable")

	got := c.Classify(helpers.TestCtx(), outgoing("Carrefour Brussel"))
	assertResult(t, got, CategoryGroceries, models.SourceRule, 0.7)
}

func TestClassifyAITier(t *testing.T) {
	c, deps := newTestCategorizer()
	deps.ai.available = true
	deps.ai.answer = "Health"
	deps.categories.names = []string{"Health", "Other"}

	in := outgoing("Dr. Janssens consult")
	in.AllowAI = true
	got := c.Classify(helpers.TestCtx(), in)
	assertResult(t, got, "Health", models.SourceAI, 0.72)
	if !got.AIAttempted {
		t.Fatalf("expected AIAttempted")
	}
	if len(deps.ai.allowed) != 2 {
		t.Fatalf("expected user vocabulary passed to AI, got %v", deps.ai.allowed)
	}
}

func TestClassifyAIFailureFallsBack(t *testing.T) {
	c, deps := newTestCategorizer()
	deps.ai.available = true
	deps.ai.err = errors.New("vertex: 503 unavailable")

	in := outgoing("Dr. Janssens consult")
	in.AllowAI = true
	got := c.Classify(helpers.TestCtx(), in)
	assertResult(t, got, CategoryOther, models.SourceRule, 0.4)
	if !got.AIAttempted {
		t.Fatalf("a failed AI call still counts as attempted")
	}
}

func TestClassifyAISkipped(t *testing.T) {
	tests := []struct {
		name      string
		allowAI   bool
		available bool
	}{
		{name: "not allowed", allowAI: false, available: true},
		{name: "unavailable", allowAI: true, available: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, deps := newTestCategorizer()
			deps.ai.available = tt.available
			deps.ai.answer = "Health"
			in := outgoing("Dr. Janssens consult")
			in.AllowAI = tt.allowAI

			got := c.Classify(helpers.TestCtx(), in)
			assertResult(t, got, CategoryOther, models.SourceRule, 0.4)
			if deps.ai.calls != 0 || got.AIAttempted {
				t.Fatalf("AI must not be called")
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c, _ := newTestCategorizer()
	inputs := []dto.ClassifyInput{
		outgoing("Carrefour Brussel"),
		outgoing("NMBS ticket Gent"),
		outgoing("Wire 8812"),
	}
	for _, in := range inputs {
		first := c.Classify(helpers.TestCtx(), in)
		for i := 0; i < 5; i++ {
			if got := c.Classify(helpers.TestCtx(), in); got != first {
				t.Fatalf("Classify(%q) not deterministic: %+v vs %+v", in.Description, got, first)
			}
		}
	}
}

func TestAllowedCategoriesDefaults(t *testing.T) {
	c, _ := newTestCategorizer()
	if got := c.AllowedCategories(helpers.TestCtx(), "uid-1"); len(got) != len(DefaultCategories) {
		t.Fatalf("expected defaults, got %v", got)
	}

	c2, deps2 := newTestCategorizer()
	deps2.categories.err = errors.New("boom")
	if got := c2.AllowedCategories(helpers.TestCtx(), "uid-1"); len(got) != len(DefaultCategories) {
		t.Fatalf("expected defaults on error, got %v", got)
	}
}

func TestDetectIBAN(t *testing.T) {
	if got := detectIBAN("", "Transfer to NL91ABNA0417164300 thanks", ""); got != "nl91abna0417164300" {
		t.Fatalf("detectIBAN from text = %q", got)
	}
	if got := detectIBAN("BE71 0961 2345 6769", "NL91ABNA0417164300", ""); got != "be71096123456769" {
		t.Fatalf("explicit IBAN should win, got %q", got)
	}
	if got := detectIBAN("", "card payment 4411", ""); got != "" {
		t.Fatalf("expected no IBAN, got %q", got)
	}
}
