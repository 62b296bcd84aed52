package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/internal/providers"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

var (
	ibanFormat     = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)
	currencyFormat = regexp.MustCompile(`^[A-Z]{3}$`)
)

type accountASStore interface {
	List(ctx context.Context, uid string) ([]models.Account, error)
	Get(ctx context.Context, uid, accountID string) (*models.Account, error)
	Create(ctx context.Context, uid string, a *models.Account) error
	Update(ctx context.Context, uid, accountID string, fn func(*models.Account) error) (*models.Account, error)
	Delete(ctx context.Context, uid, accountID string) error
}

type accountConnStore interface {
	Get(ctx context.Context, uid, connectionID string) (*models.Connection, error)
}

type accountTxDeleter interface {
	DeleteByAccount(ctx context.Context, uid, accountID string) (int, error)
}

type accountCacheInvalidator interface {
	InvalidateAccounts(uid string)
}

// accountService manages the accounts of manual connections. Provider
// accounts are written by their sync; users may only rename them.
type accountService struct {
	store accountASStore
	conns accountConnStore
	txs   accountTxDeleter
	cache accountCacheInvalidator
}

func NewAccountService(store accountASStore, conns accountConnStore, txs accountTxDeleter, cache accountCacheInvalidator) *accountService {
	return &accountService{
		store: store,
		conns: conns,
		txs:   txs,
		cache: cache,
	}
}

func (s *accountService) List(ctx context.Context, uid string) ([]models.Account, error) {
	return s.store.List(ctx, uid)
}

func (s *accountService) Create(ctx context.Context, uid string, req dto.CreateAccountRequest) (*models.Account, error) {
	if helpers.IsBlank(req.ConnectionID) {
		return nil, errs.NewValidationError("connectionId is required")
	}
	conn, err := s.conns.Get(ctx, uid, req.ConnectionID)
	if err != nil {
		var nf *errs.NotFoundError
		if errors.As(err, &nf) {
			return nil, errs.NewValidationError("unknown connection")
		}
		return nil, err
	}
	if conn.ProviderID != providers.ManualID {
		return nil, errs.NewValidationError("accounts can only be added to manual connections")
	}
	if conn.Status == models.ConnectionDisabled {
		return nil, errs.NewValidationError("connection is disabled")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.NewValidationError("name is required")
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	iban, err := normalizeIBAN(req.IBAN)
	if err != nil {
		return nil, err
	}
	accountType := conn.Type
	if req.Type != "" {
		accountType = req.Type
	}
	if !validAccountType(accountType) {
		return nil, errs.NewValidationError("type must be BANK, CRYPTO or INVESTMENT")
	}

	a := &models.Account{
		ConnectionID:  conn.ConnectionID,
		Name:          name,
		Type:          accountType,
		IBAN:          iban,
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Currency:      currency,
	}
	if err := s.store.Create(ctx, uid, a); err != nil {
		return nil, err
	}
	s.cache.InvalidateAccounts(uid)
	logger.FromContext(ctx).Info("account created", "account_id", a.AccountID, "connection_id", a.ConnectionID)
	return a, nil
}

func (s *accountService) Update(ctx context.Context, uid, accountID string, req dto.UpdateAccountRequest) (*models.Account, error) {
	current, err := s.store.Get(ctx, uid, accountID)
	if err != nil {
		return nil, err
	}
	if req.IBAN != nil || req.AccountNumber != nil || req.Currency != nil {
		manual, err := s.isManual(ctx, uid, current)
		if err != nil {
			return nil, err
		}
		if !manual {
			return nil, errs.NewValidationError("identifiers and currency of provider accounts are managed by the provider")
		}
	}

	var name, iban, currency string
	if req.Name != nil {
		if name = strings.TrimSpace(*req.Name); name == "" {
			return nil, errs.NewValidationError("name cannot be empty")
		}
	}
	if req.IBAN != nil {
		if iban, err = normalizeIBAN(*req.IBAN); err != nil {
			return nil, err
		}
	}
	if req.Currency != nil {
		if currency, err = normalizeCurrency(*req.Currency); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.Update(ctx, uid, accountID, func(a *models.Account) error {
		if req.Name != nil {
			a.Name = name
		}
		if req.IBAN != nil {
			a.IBAN = iban
		}
		if req.AccountNumber != nil {
			a.AccountNumber = strings.TrimSpace(*req.AccountNumber)
		}
		if req.Currency != nil {
			a.Currency = currency
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateAccounts(uid)
	return updated, nil
}

// Delete removes a manual account together with its transactions.
func (s *accountService) Delete(ctx context.Context, uid, accountID string) (dto.DeleteAccountResult, error) {
	a, err := s.store.Get(ctx, uid, accountID)
	if err != nil {
		return dto.DeleteAccountResult{}, err
	}
	manual, err := s.isManual(ctx, uid, a)
	if err != nil {
		return dto.DeleteAccountResult{}, err
	}
	if !manual {
		return dto.DeleteAccountResult{}, errs.NewValidationError("only manual accounts can be deleted")
	}

	deleted, err := s.txs.DeleteByAccount(ctx, uid, accountID)
	if err != nil {
		return dto.DeleteAccountResult{}, err
	}
	if err := s.store.Delete(ctx, uid, accountID); err != nil {
		return dto.DeleteAccountResult{TransactionsDeleted: deleted}, err
	}
	s.cache.InvalidateAccounts(uid)
	logger.FromContext(ctx).Info("account deleted", "account_id", accountID, "transactions_deleted", deleted)
	return dto.DeleteAccountResult{TransactionsDeleted: deleted}, nil
}

// isManual reports whether a belongs to a manual connection. An account whose
// connection is gone is treated as provider owned.
func (s *accountService) isManual(ctx context.Context, uid string, a *models.Account) (bool, error) {
	conn, err := s.conns.Get(ctx, uid, a.ConnectionID)
	if err != nil {
		var nf *errs.NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return conn.ProviderID == providers.ManualID, nil
}

// normalizeIBAN uppercases and strips spaces. Empty stays empty.
func normalizeIBAN(raw string) (string, error) {
	iban := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if iban == "" {
		return "", nil
	}
	if !ibanFormat.MatchString(iban) {
		return "", errs.NewValidationError("iban is not valid")
	}
	return iban, nil
}

func normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if !currencyFormat.MatchString(currency) {
		return "", errs.NewValidationError("currency must be a 3-letter code")
	}
	return currency, nil
}

func validAccountType(t models.ConnectionType) bool {
	switch t {
	case models.ConnectionTypeBank, models.ConnectionTypeCrypto, models.ConnectionTypeInvestment:
		return true
	}
	return false
}
