package dto

import (
	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/finance-sync/internal/models"
)

// ProviderTransaction is the normalized upstream item handed to the importer.
// Blank fields mean "upstream did not say" and are eligible for backfill.
type ProviderTransaction struct {
	AccountID        string
	ConnectionID     string
	AccountType      models.ConnectionType
	ExternalID       string
	Raw              string // stable serialization, used to derive an id when ExternalID is blank
	Amount           decimal.Decimal
	Currency         string
	Direction        models.Direction
	Description      string
	Merchant         string
	CounterpartyIBAN string
	BookingDate      string
	ValueDate        string
	Status           string
	TxType           string
}

type ImportOutcome string

const (
	ImportCreated   ImportOutcome = "created"
	ImportUpdated   ImportOutcome = "updated"
	ImportUnchanged ImportOutcome = "unchanged"
)

type TransactionQuery struct {
	AccountID *string
	Category  *string
	DateFrom  *string
	DateTo    *string
	Limit     int
}

type CreateTransactionRequest struct {
	AccountID        string           `json:"accountId"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency"`
	Direction        models.Direction `json:"direction"`
	Description      string           `json:"description"`
	Merchant         string           `json:"merchant,omitempty"`
	CounterpartyIBAN string           `json:"counterpartyIban,omitempty"`
	BookingDate      string           `json:"bookingDate,omitempty"`
	Category         string           `json:"category,omitempty"`
}

type UpdateCategoryRequest struct {
	Category      string `json:"category"`
	ApplyToFuture bool   `json:"applyToFuture"`
}

type RecategorizeResult struct {
	Updated int `json:"updated"`
	Total   int `json:"total"`
	AICalls int `json:"aiCalls"`
}
