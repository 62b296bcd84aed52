package dto

// One page from /transactions/sync.
type PlaidSyncPage struct {
	Accounts     []PlaidAccount
	Transactions []PlaidTransaction // added + modified
	Cursor       string
	HasMore      bool
}

type PlaidAccount struct {
	AccountID    string
	Name         string
	OfficialName string
	Mask         string
	Type         string // depository, credit, investment, ...
	Currency     string
}

// PlaidTransaction keeps Plaid's sign convention: positive amounts are money
// leaving the account.
type PlaidTransaction struct {
	TransactionID  string
	AccountID      string
	Amount         float64
	Currency       string
	Name           string
	MerchantName   string
	Date           string
	AuthorizedDate string
	Pending        bool
	PaymentChannel string
	PFCPrimary     string
}

type PlaidEnvironment string

const (
	PlaidSandbox     PlaidEnvironment = "sandbox"
	PlaidDevelopment PlaidEnvironment = "development"
	PlaidProduction  PlaidEnvironment = "production"
)
