package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type transactionTSStore interface {
	Get(ctx context.Context, uid, transactionID string) (*models.Transaction, error)
	FindByExternalID(ctx context.Context, uid, accountID, externalID string) (*models.Transaction, error)
	Save(ctx context.Context, uid string, t *models.Transaction) error
	UpsertBatch(ctx context.Context, uid string, txs []models.Transaction) error
	List(ctx context.Context, uid string, q dto.TransactionQuery) ([]*models.Transaction, error)
	ForEach(ctx context.Context, uid string, fn func(*models.Transaction) error) error
}

type accountTSStore interface {
	Get(ctx context.Context, uid, accountID string) (*models.Account, error)
	List(ctx context.Context, uid string) ([]models.Account, error)
}

type transactionClassifier interface {
	Classify(ctx context.Context, in dto.ClassifyInput) dto.CategoryResult
}

type ruleSaver interface {
	SaveRule(ctx context.Context, uid string, o models.CategoryOverride) (*models.CategoryOverride, error)
}

type transactionService struct {
	txs        transactionTSStore
	accounts   accountTSStore
	classifier transactionClassifier
	rules      ruleSaver
	aiBudget   int
	clockNow   func() time.Time
}

func NewTransactionService(txs transactionTSStore, accounts accountTSStore, classifier transactionClassifier, rules ruleSaver, aiBudget int) *transactionService {
	return &transactionService{
		txs:        txs,
		accounts:   accounts,
		classifier: classifier,
		rules:      rules,
		aiBudget:   aiBudget,
		clockNow:   time.Now,
	}
}

// Import merges one upstream item. Existing rows only get missing fields
// filled in; their category is never touched here.
func (s *transactionService) Import(ctx context.Context, uid string, in dto.ProviderTransaction) (dto.ImportOutcome, error) {
	if strings.TrimSpace(in.AccountID) == "" {
		return "", errs.NewValidationError("imported transaction has no account")
	}
	externalID := strings.TrimSpace(in.ExternalID)
	if externalID == "" {
		externalID = syntheticExternalID(in)
	}

	existing, err := s.txs.FindByExternalID(ctx, uid, in.AccountID, externalID)
	var nf *errs.NotFoundError
	switch {
	case err == nil:
		if !backfill(existing, in) {
			return dto.ImportUnchanged, nil
		}
		if err := s.txs.Save(ctx, uid, existing); err != nil {
			return "", err
		}
		return dto.ImportUpdated, nil
	case !errors.As(err, &nf):
		return "", err
	}

	tx := &models.Transaction{
		AccountID:        in.AccountID,
		ConnectionID:     in.ConnectionID,
		ExternalID:       externalID,
		Amount:           in.Amount.Abs().InexactFloat64(),
		Currency:         strings.ToUpper(in.Currency),
		Direction:        in.Direction,
		Description:      in.Description,
		Merchant:         in.Merchant,
		CounterpartyIBAN: in.CounterpartyIBAN,
		BookingDate:      in.BookingDate,
		ValueDate:        in.ValueDate,
		Status:           in.Status,
		TxType:           in.TxType,
	}
	applyCategory(tx, s.classifier.Classify(ctx, dto.ClassifyInput{
		UID:              uid,
		Description:      in.Description,
		Merchant:         in.Merchant,
		Direction:        in.Direction,
		TxType:           in.TxType,
		AccountType:      in.AccountType,
		Currency:         in.Currency,
		Amount:           in.Amount.Abs(),
		CounterpartyIBAN: in.CounterpartyIBAN,
		AllowAI:          true,
	}))
	if err := s.txs.Save(ctx, uid, tx); err != nil {
		return "", err
	}
	return dto.ImportCreated, nil
}

// CreateManual records a hand-entered transaction.
func (s *transactionService) CreateManual(ctx context.Context, uid string, req dto.CreateTransactionRequest) (*models.Transaction, error) {
	if strings.TrimSpace(req.AccountID) == "" {
		return nil, errs.NewValidationError("accountId is required")
	}
	if !req.Amount.IsPositive() {
		return nil, errs.NewValidationError("amount must be positive")
	}
	if req.Direction != models.DirectionIn && req.Direction != models.DirectionOut {
		return nil, errs.NewValidationError("direction must be IN or OUT")
	}
	if helpers.IsBlank(req.Description) && helpers.IsBlank(req.Merchant) {
		return nil, errs.NewValidationError("description or merchant is required")
	}
	if req.BookingDate != "" {
		if _, err := time.Parse(time.DateOnly, req.BookingDate); err != nil {
			return nil, errs.NewValidationError("bookingDate must be YYYY-MM-DD")
		}
	}

	account, err := s.accounts.Get(ctx, uid, req.AccountID)
	if err != nil {
		var nf *errs.NotFoundError
		if errors.As(err, &nf) {
			return nil, errs.NewValidationError("unknown account")
		}
		return nil, err
	}

	currency := strings.ToUpper(helpers.FirstNonBlank(req.Currency, account.Currency))
	tx := &models.Transaction{
		AccountID:        account.AccountID,
		ConnectionID:     account.ConnectionID,
		ExternalID:       "manual-" + uuid.NewString(),
		Amount:           req.Amount.InexactFloat64(),
		Currency:         currency,
		Direction:        req.Direction,
		Description:      strings.TrimSpace(req.Description),
		Merchant:         strings.TrimSpace(req.Merchant),
		CounterpartyIBAN: strings.TrimSpace(req.CounterpartyIBAN),
		BookingDate:      helpers.FirstNonBlank(req.BookingDate, s.clockNow().Format(time.DateOnly)),
		Status:           "booked",
	}
	tx.ValueDate = tx.BookingDate

	if category := strings.TrimSpace(req.Category); category != "" {
		applyCategory(tx, categoryResult(category, models.SourceManual, 1.0, "Manual"))
	} else {
		applyCategory(tx, s.classifier.Classify(ctx, dto.ClassifyInput{
			UID:              uid,
			Description:      tx.Description,
			Merchant:         tx.Merchant,
			Direction:        tx.Direction,
			AccountType:      account.Type,
			Currency:         currency,
			Amount:           req.Amount,
			CounterpartyIBAN: tx.CounterpartyIBAN,
			AllowAI:          true,
		}))
	}

	if err := s.txs.Save(ctx, uid, tx); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("manual transaction created", "transaction_id", tx.TransactionID)
	return tx, nil
}

// UpdateCategory sets a category by hand. With applyToFuture the choice is
// also stored as a rule keyed on the most specific identifier available.
func (s *transactionService) UpdateCategory(ctx context.Context, uid, transactionID string, req dto.UpdateCategoryRequest) (*models.Transaction, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, errs.NewValidationError("category is required")
	}
	tx, err := s.txs.Get(ctx, uid, transactionID)
	if err != nil {
		return nil, err
	}

	res := categoryResult(category, models.SourceManual, 1.0, "Manual")
	if req.ApplyToFuture {
		if rule, ok := ruleFor(tx, category); ok {
			if _, err := s.rules.SaveRule(ctx, uid, rule); err != nil {
				return nil, err
			}
			res = categoryResult(category, models.SourceOverride, 1.0, fmt.Sprintf("User rule (%s)", rule.MatchType))
		}
	}

	applyCategory(tx, res)
	if err := s.txs.Save(ctx, uid, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// RecategorizeAll reclassifies every transaction that was not labelled by
// the user. AI calls are capped per run.
func (s *transactionService) RecategorizeAll(ctx context.Context, uid string) (dto.RecategorizeResult, error) {
	var out dto.RecategorizeResult
	log := logger.FromContext(ctx)

	accountTypes := map[string]models.ConnectionType{}
	accounts, err := s.accounts.List(ctx, uid)
	if err != nil {
		return out, err
	}
	for _, a := range accounts {
		accountTypes[a.AccountID] = a.Type
	}

	now := s.clockNow()
	var batch []models.Transaction
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.txs.UpsertBatch(ctx, uid, batch); err != nil {
			return err
		}
		out.Updated += len(batch)
		batch = batch[:0]
		return nil
	}

	err = s.txs.ForEach(ctx, uid, func(tx *models.Transaction) error {
		out.Total++
		if tx.CategorySource == models.SourceManual || tx.CategorySource == models.SourceOverride {
			return nil
		}

		allowAI := out.AICalls < s.aiBudget
		res := s.classifier.Classify(ctx, dto.ClassifyInput{
			UID:              uid,
			Description:      tx.Description,
			Merchant:         tx.Merchant,
			Direction:        tx.Direction,
			TxType:           tx.TxType,
			AccountType:      accountTypes[tx.AccountID],
			Currency:         tx.Currency,
			Amount:           decimal.NewFromFloat(tx.Amount),
			CounterpartyIBAN: tx.CounterpartyIBAN,
			AllowAI:          allowAI,
		})
		if res.AIAttempted {
			out.AICalls++
		}
		if !allowAI && res.Category == CategoryOther && !helpers.IsBlank(tx.Category) {
			return nil
		}
		if tx.Category == res.Category && tx.CategorySource == res.Source && tx.CategoryConfidence == res.Confidence {
			return nil
		}

		applyCategory(tx, res)
		tx.UpdatedAt = now
		batch = append(batch, *tx)
		if len(batch) >= historyBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	if err := flush(); err != nil {
		return out, err
	}

	log.Info("recategorization complete", "total", out.Total, "updated", out.Updated, "ai_calls", out.AICalls)
	return out, nil
}

func (s *transactionService) List(ctx context.Context, uid string, q dto.TransactionQuery) ([]*models.Transaction, error) {
	switch {
	case q.Limit <= 0:
		q.Limit = defaultListLimit
	case q.Limit > maxListLimit:
		q.Limit = maxListLimit
	}
	return s.txs.List(ctx, uid, q)
}

// ruleFor picks the rule key for a correction: IBAN, then merchant, then
// description.
func ruleFor(tx *models.Transaction, category string) (models.CategoryOverride, bool) {
	rule := models.CategoryOverride{Category: category, MatchMode: models.MatchContains}
	switch {
	case normalizeValue(tx.CounterpartyIBAN) != "":
		rule.MatchType = models.MatchIBAN
		rule.MatchMode = models.MatchExact
		rule.MatchValue = tx.CounterpartyIBAN
	case normalizeValue(tx.Merchant) != "":
		rule.MatchType = models.MatchMerchant
		rule.MatchValue = tx.Merchant
	case normalizeValue(tx.Description) != "":
		rule.MatchType = models.MatchDescription
		rule.MatchValue = tx.Description
	default:
		return rule, false
	}
	return rule, true
}

// backfill copies fields the stored row is missing. It reports whether
// anything changed.
func backfill(tx *models.Transaction, in dto.ProviderTransaction) bool {
	changed := false
	fill := func(dst *string, src string) {
		if helpers.IsBlank(*dst) && !helpers.IsBlank(src) {
			*dst = src
			changed = true
		}
	}
	fill(&tx.BookingDate, in.BookingDate)
	fill(&tx.ValueDate, in.ValueDate)
	fill(&tx.Description, in.Description)
	fill(&tx.CounterpartyIBAN, in.CounterpartyIBAN)
	fill(&tx.Merchant, in.Merchant)
	fill(&tx.TxType, in.TxType)
	fill(&tx.Currency, strings.ToUpper(in.Currency))

	if tx.Amount == 0 && !in.Amount.IsZero() {
		tx.Amount = in.Amount.Abs().InexactFloat64()
		changed = true
	}
	if tx.Direction == "" && in.Direction != "" {
		tx.Direction = in.Direction
		changed = true
	}
	return changed
}

// syntheticExternalID derives a stable id from the upstream payload.
func syntheticExternalID(in dto.ProviderTransaction) string {
	payload := in.Raw
	if helpers.IsBlank(payload) {
		payload = strings.Join([]string{
			in.AccountID, in.BookingDate, in.ValueDate, in.Amount.String(),
			in.Currency, string(in.Direction), in.Description, in.Merchant, in.CounterpartyIBAN,
		}, "|")
	}
	return "syn-" + uuid.NewMD5(uuid.NameSpaceOID, []byte(payload)).String()
}

func applyCategory(tx *models.Transaction, res dto.CategoryResult) {
	tx.Category = res.Category
	tx.CategorySource = res.Source
	tx.CategoryConfidence = res.Confidence
	tx.CategoryReason = res.Reason
}
