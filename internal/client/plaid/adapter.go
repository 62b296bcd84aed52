package plaidclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/plaid/plaid-go/v24/plaid"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
)

const pageSize = 500

type Adapter struct {
	client       *plaid.APIClient
	appName      string
	countryCodes []plaid.CountryCode
}

func NewAdapter(clientID, secret string, env dto.PlaidEnvironment, appName string, countryCodes []string) *Adapter {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	cfg.AddDefaultHeader("PLAID-SECRET", secret)
	cfg.UseEnvironment(toPlaidEnv(env))

	codes := make([]plaid.CountryCode, 0, len(countryCodes))
	for _, c := range countryCodes {
		codes = append(codes, plaid.CountryCode(c))
	}
	if len(codes) == 0 {
		codes = append(codes, plaid.CountryCode("US"))
	}

	return &Adapter{
		client:       plaid.NewAPIClient(cfg),
		appName:      appName,
		countryCodes: codes,
	}
}

func (a *Adapter) CreateLinkToken(ctx context.Context, uid string) (string, error) {
	req := plaid.NewLinkTokenCreateRequest(
		a.appName,
		"en",
		a.countryCodes,
		plaid.LinkTokenCreateRequestUser{ClientUserId: uid},
	)
	req.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, httpResp, err := a.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
	if err != nil {
		return "", toExternalError(err, httpResp)
	}
	return resp.GetLinkToken(), nil
}

func (a *Adapter) ExchangePublicToken(ctx context.Context, publicToken string) (itemID, accessToken string, err error) {
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, httpResp, err := a.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
	if err != nil {
		return "", "", toExternalError(err, httpResp)
	}
	return resp.GetItemId(), resp.GetAccessToken(), nil
}

// SyncTransactions fetches one /transactions/sync page. Removed transactions
// are ignored; ledger rows are never deleted by a sync.
func (a *Adapter) SyncTransactions(ctx context.Context, accessToken string, cursor *string) (dto.PlaidSyncPage, error) {
	req := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != nil {
		req.SetCursor(*cursor)
	}
	req.SetCount(pageSize)
	opts := plaid.NewTransactionsSyncRequestOptions()
	opts.SetIncludePersonalFinanceCategory(true)
	req.SetOptions(*opts)

	var page dto.PlaidSyncPage

	resp, httpResp, err := a.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*req).Execute()
	if err != nil {
		return page, toExternalError(err, httpResp)
	}

	for _, acc := range resp.GetAccounts() {
		balances := acc.GetBalances()
		page.Accounts = append(page.Accounts, dto.PlaidAccount{
			AccountID:    acc.GetAccountId(),
			Name:         acc.GetName(),
			OfficialName: acc.GetOfficialName(),
			Mask:         acc.GetMask(),
			Type:         string(acc.GetType()),
			Currency:     balances.GetIsoCurrencyCode(),
		})
	}

	txs := make([]dto.PlaidTransaction, 0, len(resp.GetAdded())+len(resp.GetModified()))
	for _, t := range resp.GetAdded() {
		txs = append(txs, convert(t))
	}
	for _, t := range resp.GetModified() {
		txs = append(txs, convert(t))
	}

	page.Transactions = txs
	page.Cursor = resp.GetNextCursor()
	page.HasMore = resp.GetHasMore()
	return page, nil
}

func convert(t plaid.Transaction) dto.PlaidTransaction {
	pfc := t.GetPersonalFinanceCategory()
	return dto.PlaidTransaction{
		TransactionID:  t.GetTransactionId(),
		AccountID:      t.GetAccountId(),
		Amount:         t.GetAmount(),
		Currency:       t.GetIsoCurrencyCode(),
		Name:           t.GetName(),
		MerchantName:   t.GetMerchantName(),
		Date:           t.GetDate(),
		AuthorizedDate: t.GetAuthorizedDate(),
		Pending:        t.GetPending(),
		PaymentChannel: t.GetPaymentChannel(),
		PFCPrimary:     pfc.GetPrimary(),
	}
}

// toExternalError keeps the Plaid error code in the message so the failure
// classifier can match RATE_LIMIT_EXCEEDED, ITEM_LOGIN_REQUIRED and friends.
func toExternalError(err error, httpResp *http.Response) error {
	status := 0
	if httpResp != nil {
		status = httpResp.StatusCode
	}

	msg := err.Error()
	transient := status >= http.StatusInternalServerError
	if pe, perr := plaid.ToPlaidError(err); perr == nil {
		msg = fmt.Sprintf("%s: %s", pe.GetErrorCode(), pe.GetErrorMessage())
		switch string(pe.GetErrorType()) {
		case "API_ERROR", "INSTITUTION_ERROR":
			transient = true
		}
	}
	return errs.NewExternalServiceError("plaid", msg, status, transient, err)
}

func toPlaidEnv(env dto.PlaidEnvironment) plaid.Environment {
	switch env {
	case dto.PlaidSandbox:
		return plaid.Sandbox
	case dto.PlaidDevelopment:
		return plaid.Development
	default: // dto.PlaidProduction
		return plaid.Production
	}
}
