package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

const (
	identifierTTL   = 5 * time.Minute
	overrideTTL     = 30 * time.Second
	vocabularyTTL   = 5 * time.Minute
	cacheMaxEntries = 1024
)

var ibanPattern = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}\b`)

var cryptoExchanges = []string{
	"bitvavo", "coinbase", "kraken", "binance", "bitstamp", "kucoin", "gateio",
	"okx", "bybit", "cryptocom", "bitpanda", "coinmerce", "bitonic", "btcdirect",
}

type cascadeOverrideStore interface {
	List(ctx context.Context, uid string) ([]models.CategoryOverride, error)
}

type cascadeAccountStore interface {
	List(ctx context.Context, uid string) ([]models.Account, error)
}

type cascadeCategoryStore interface {
	ListNames(ctx context.Context, uid string) ([]string, error)
}

type aiCategorizer interface {
	Available(ctx context.Context) bool
	Categorize(ctx context.Context, in dto.ClassifyInput, allowed []string) (string, error)
}

// categorizer runs the classification cascade. The first tier that produces
// an answer wins; the AI tier only refines an "Other" keyword result.
type categorizer struct {
	rules       *ruleEngine
	overrides   cascadeOverrideStore
	accounts    cascadeAccountStore
	categories  cascadeCategoryStore
	ai          aiCategorizer
	identifiers *ttlCache[map[string]struct{}]
	userRules   *ttlCache[[]models.CategoryOverride]
	vocabulary  *ttlCache[[]string]
}

func NewCategorizer(overrides cascadeOverrideStore, accounts cascadeAccountStore, categories cascadeCategoryStore, ai aiCategorizer) *categorizer {
	return &categorizer{
		rules:       NewRuleEngine(),
		overrides:   overrides,
		accounts:    accounts,
		categories:  categories,
		ai:          ai,
		identifiers: newTTLCache[map[string]struct{}](identifierTTL, cacheMaxEntries),
		userRules:   newTTLCache[[]models.CategoryOverride](overrideTTL, cacheMaxEntries),
		vocabulary:  newTTLCache[[]string](vocabularyTTL, cacheMaxEntries),
	}
}

func (c *categorizer) Classify(ctx context.Context, in dto.ClassifyInput) dto.CategoryResult {
	iban := detectIBAN(in.CounterpartyIBAN, in.Description, in.Merchant)

	if in.AccountType == models.ConnectionTypeCrypto {
		return categoryResult(CategoryCrypto, models.SourceRule, 0.95, "Crypto account")
	}
	if iban != "" {
		if _, own := c.ownIdentifiers(ctx, in.UID)[iban]; own {
			return categoryResult(CategoryTransfer, models.SourceRule, 0.92, "Own account")
		}
	}
	if strings.EqualFold(strings.TrimSpace(in.TxType), "TRANSFER") {
		return categoryResult(CategoryTransfer, models.SourceRule, 0.9, "Type TRANSFER")
	}
	if isCryptoExchange(in.Description, in.Merchant) {
		return categoryResult(CategoryCrypto, models.SourceRule, 0.85, "Crypto exchange")
	}
	if in.Direction == models.DirectionIn {
		return categoryResult(CategoryIncome, models.SourceRule, 0.9, "Incoming transaction")
	}
	if o, ok := matchOverride(c.userOverrides(ctx, in.UID), iban, in.Merchant, in.Description); ok {
		return categoryResult(o.Category, models.SourceOverride, 0.98, "User rule")
	}

	res := categoryResult(CategoryOther, models.SourceRule, 0.4, "No match")
	if cat, kw, ok := c.rules.Match(strings.Join([]string{in.Merchant, in.Description, iban}, " ")); ok {
		res = categoryResult(cat, models.SourceRule, 0.7, "Match on '"+kw+"'")
	}
	if res.Category != CategoryOther || !in.AllowAI || c.ai == nil || !c.ai.Available(ctx) {
		return res
	}

	res.AIAttempted = true
	cat, err := c.ai.Categorize(ctx, in, c.AllowedCategories(ctx, in.UID))
	if err != nil {
		logger.FromContext(ctx).Warn("ai classification failed, keeping keyword result", "error", err)
		return res
	}
	ai := categoryResult(cat, models.SourceAI, 0.72, "AI classification")
	ai.AIAttempted = true
	return ai
}

// AllowedCategories returns the user's vocabulary, or the defaults when the
// user has none or it cannot be read.
func (c *categorizer) AllowedCategories(ctx context.Context, uid string) []string {
	if names, ok := c.vocabulary.Get(uid); ok {
		return names
	}
	names, err := c.categories.ListNames(ctx, uid)
	if err != nil {
		logger.FromContext(ctx).Warn("category list unavailable, using defaults", "error", err)
		return DefaultCategories
	}
	if len(names) == 0 {
		names = DefaultCategories
	}
	c.vocabulary.Set(uid, names)
	return names
}

func (c *categorizer) InvalidateOverrides(uid string) {
	c.userRules.Delete(uid)
}

// InvalidateAccounts drops the cached own-account identifiers of uid.
func (c *categorizer) InvalidateAccounts(uid string) {
	c.identifiers.Delete(uid)
}

func (c *categorizer) InvalidateVocabulary(uid string) {
	c.vocabulary.Delete(uid)
}

func (c *categorizer) userOverrides(ctx context.Context, uid string) []models.CategoryOverride {
	if rules, ok := c.userRules.Get(uid); ok {
		return rules
	}
	rules, err := c.overrides.List(ctx, uid)
	if err != nil {
		logger.FromContext(ctx).Warn("override lookup failed, continuing without rules", "error", err)
		return nil
	}
	c.userRules.Set(uid, rules)
	return rules
}

// ownIdentifiers is the set of normalized IBANs and account numbers of the
// user's own accounts.
func (c *categorizer) ownIdentifiers(ctx context.Context, uid string) map[string]struct{} {
	if ids, ok := c.identifiers.Get(uid); ok {
		return ids
	}
	accounts, err := c.accounts.List(ctx, uid)
	if err != nil {
		logger.FromContext(ctx).Warn("account identifiers unavailable", "error", err)
		return nil
	}
	ids := make(map[string]struct{}, len(accounts)*2)
	for _, a := range accounts {
		for _, v := range []string{a.IBAN, a.AccountNumber} {
			if n := normalizeValue(v); n != "" {
				ids[n] = struct{}{}
			}
		}
	}
	c.identifiers.Set(uid, ids)
	return ids
}

// detectIBAN prefers the explicit counterparty IBAN and falls back to an IBAN
// found in the free text. The result is normalized.
func detectIBAN(explicit, description, merchant string) string {
	if n := normalizeValue(explicit); n != "" {
		return n
	}
	text := strings.ToUpper(description + " " + merchant)
	if m := ibanPattern.FindString(text); m != "" {
		return normalizeValue(m)
	}
	return ""
}

func isCryptoExchange(description, merchant string) bool {
	text := normalizeValue(description + " " + merchant)
	if text == "" {
		return false
	}
	for _, kw := range cryptoExchanges {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func categoryResult(category string, source models.CategorySource, confidence float64, reason string) dto.CategoryResult {
	return dto.CategoryResult{
		Category:   category,
		Source:     source,
		Confidence: confidence,
		Reason:     reason,
	}
}
