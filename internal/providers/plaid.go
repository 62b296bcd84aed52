package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

const plaidID = "plaid"

// plaidClient is the Plaid SDK adapter surface used by this provider.
type plaidClient interface {
	CreateLinkToken(ctx context.Context, uid string) (linkToken string, err error)
	ExchangePublicToken(ctx context.Context, publicToken string) (itemID string, accessToken string, err error)
	SyncTransactions(ctx context.Context, accessToken string, cursor *string) (dto.PlaidSyncPage, error)
}

type tokenStore interface {
	StoreToken(ctx context.Context, providerID, uid, externalID, token string) error
	GetToken(ctx context.Context, providerID, uid, externalID string) (string, error)
	DeleteToken(ctx context.Context, providerID, uid, externalID string) error
}

type cursorStore interface {
	GetCursor(ctx context.Context, uid, connectionID string) (string, error)
	SetCursor(ctx context.Context, uid, connectionID, cursor string) error
}

type accountUpserter interface {
	UpsertBatch(ctx context.Context, uid string, accounts []models.Account) error
}

type plaidProvider struct {
	plaid    plaidClient
	tokens   tokenStore
	cursors  cursorStore
	accounts accountUpserter
	importer transactionImporter
	progress progressReporter
}

func NewPlaidProvider(plaid plaidClient, tokens tokenStore, cursors cursorStore, accounts accountUpserter, importer transactionImporter, progress progressReporter) *plaidProvider {
	return &plaidProvider{
		plaid:    plaid,
		tokens:   tokens,
		cursors:  cursors,
		accounts: accounts,
		importer: importer,
		progress: progress,
	}
}

func (p *plaidProvider) ID() string { return plaidID }

func (p *plaidProvider) Metadata() dto.ProviderMetadata {
	return dto.ProviderMetadata{
		ID:         plaidID,
		Name:       "Plaid",
		Type:       models.ConnectionTypeBank,
		ConfigKeys: []string{"publicToken"},
	}
}

// Initiate runs in two steps: without a public token it returns a link token
// for Plaid Link; with one it exchanges it and stores the access token.
func (p *plaidProvider) Initiate(ctx context.Context, conn *models.Connection, cfg map[string]string) (dto.ConnectResult, error) {
	publicToken := strings.TrimSpace(cfg["publicToken"])
	if publicToken == "" {
		linkToken, err := p.plaid.CreateLinkToken(ctx, conn.UID)
		if err != nil {
			return dto.ConnectResult{}, err
		}
		return dto.ConnectResult{Status: models.ConnectionPending, LinkToken: linkToken}, nil
	}

	itemID, accessToken, err := p.plaid.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return dto.ConnectResult{}, err
	}
	if err := p.tokens.StoreToken(ctx, plaidID, conn.UID, itemID, accessToken); err != nil {
		return dto.ConnectResult{}, err
	}

	logger.FromContext(ctx).Info("plaid item linked", "item_id", itemID)
	return dto.ConnectResult{
		Status:     models.ConnectionActive,
		ExternalID: itemID,
		Config:     map[string]string{"itemId": itemID},
	}, nil
}

// Disconnect drops the stored access token of a linked item.
func (p *plaidProvider) Disconnect(ctx context.Context, conn *models.Connection) error {
	if conn.ExternalID == "" {
		return nil
	}
	return p.tokens.DeleteToken(ctx, plaidID, conn.UID, conn.ExternalID)
}

func (p *plaidProvider) Sync(ctx context.Context, conn *models.Connection, cfg map[string]string) (dto.SyncResult, error) {
	result := dto.SyncResult{}
	log := logger.FromContext(ctx)

	itemID := helpers.FirstNonBlank(cfg["itemId"], conn.ExternalID)
	if itemID == "" {
		return result, errs.NewConfigurationError("plaid item id missing, finish linking the connection")
	}
	token, err := p.tokens.GetToken(ctx, plaidID, conn.UID, itemID)
	if err != nil {
		return result, err
	}

	p.progress.Update(ctx, conn, "Fetching accounts", 20)

	storedCursor, err := p.cursors.GetCursor(ctx, conn.UID, conn.ConnectionID)
	if err != nil {
		return result, err
	}
	var cursor *string
	if storedCursor != "" {
		cursor = &storedCursor
	}

	accountTypes := map[string]models.ConnectionType{}
	latestCursor := storedCursor
	hasMore := true
	for pageNum := 0; hasMore; pageNum++ {
		page, err := p.plaid.SyncTransactions(ctx, token, cursor)
		if err != nil {
			log.Warn("plaid page fetch failed", "item_id", itemID, "page", pageNum)
			return result, err
		}

		if err := p.upsertAccounts(ctx, conn, page.Accounts, accountTypes); err != nil {
			return result, err
		}

		for _, t := range page.Transactions {
			outcome, err := p.importer.Import(ctx, conn.UID, toProviderTransaction(conn, accountTypes, t))
			if err != nil {
				return result, err
			}
			switch outcome {
			case dto.ImportCreated:
				result.TransactionsImported++
			case dto.ImportUpdated:
				result.TransactionsUpdated++
			}
		}

		latestCursor = page.Cursor
		cursor = &latestCursor
		hasMore = page.HasMore
		p.progress.Update(ctx, conn, fmt.Sprintf("Importing transactions (page %d)", pageNum+1), min(90, 30+10*pageNum))
	}

	// Plaid asks to restart from the original cursor when pagination fails,
	// so the cursor only moves after the last page.
	if latestCursor != "" && latestCursor != storedCursor {
		if err := p.cursors.SetCursor(ctx, conn.UID, conn.ConnectionID, latestCursor); err != nil {
			return result, err
		}
	}

	p.progress.Update(ctx, conn, "Finishing", 95)
	result.AccountsUpdated = len(accountTypes)
	result.Status = "ok"
	log.Info("plaid sync completed",
		"accounts", result.AccountsUpdated,
		"imported", result.TransactionsImported,
		"updated", result.TransactionsUpdated)
	return result, nil
}

func (p *plaidProvider) upsertAccounts(ctx context.Context, conn *models.Connection, in []dto.PlaidAccount, seen map[string]models.ConnectionType) error {
	if len(in) == 0 {
		return nil
	}
	accounts := make([]models.Account, 0, len(in))
	for _, a := range in {
		accType := accountType(conn, a.Type)
		seen[a.AccountID] = accType
		accounts = append(accounts, models.Account{
			AccountID:     a.AccountID,
			ConnectionID:  conn.ConnectionID,
			Name:          helpers.FirstNonBlank(a.OfficialName, a.Name),
			Type:          accType,
			AccountNumber: a.Mask,
			Currency:      a.Currency,
		})
	}
	return p.accounts.UpsertBatch(ctx, conn.UID, accounts)
}

func accountType(conn *models.Connection, plaidType string) models.ConnectionType {
	if conn.Type == models.ConnectionTypeCrypto {
		return models.ConnectionTypeCrypto
	}
	if plaidType == "investment" || plaidType == "brokerage" {
		return models.ConnectionTypeInvestment
	}
	return models.ConnectionTypeBank
}

// toProviderTransaction converts Plaid's signed amount (positive = outflow)
// into an unsigned amount plus direction.
func toProviderTransaction(conn *models.Connection, accountTypes map[string]models.ConnectionType, t dto.PlaidTransaction) dto.ProviderTransaction {
	amount := decimal.NewFromFloat(t.Amount)
	direction := models.DirectionOut
	if amount.IsNegative() {
		direction = models.DirectionIn
	}

	accType, ok := accountTypes[t.AccountID]
	if !ok {
		accType = accountType(conn, "")
	}

	status, bookingDate := "booked", t.Date
	if t.Pending {
		status, bookingDate = "pending", ""
	}

	return dto.ProviderTransaction{
		AccountID:    t.AccountID,
		ConnectionID: conn.ConnectionID,
		AccountType:  accType,
		ExternalID:   t.TransactionID,
		Raw:          fmt.Sprintf("%s|%s|%s|%s", t.AccountID, t.Date, amount.String(), t.Name),
		Amount:       amount.Abs(),
		Currency:     strings.ToUpper(t.Currency),
		Direction:    direction,
		Description:  t.Name,
		Merchant:     t.MerchantName,
		BookingDate:  bookingDate,
		ValueDate:    helpers.FirstNonBlank(t.AuthorizedDate, t.Date),
		Status:       status,
		TxType:       txType(t.PFCPrimary),
	}
}

func txType(pfcPrimary string) string {
	if strings.HasPrefix(pfcPrimary, "TRANSFER") {
		return "TRANSFER"
	}
	return pfcPrimary
}
