package dto

import "github.com/GregMSThompson/finance-sync/internal/models"

type CreateAccountRequest struct {
	ConnectionID  string                `json:"connectionId"`
	Name          string                `json:"name"`
	Type          models.ConnectionType `json:"type,omitempty"`
	IBAN          string                `json:"iban,omitempty"`
	AccountNumber string                `json:"accountNumber,omitempty"`
	Currency      string                `json:"currency"`
}

// UpdateAccountRequest patches only the fields that are set. Identifiers
// and currency can only change on manual accounts.
type UpdateAccountRequest struct {
	Name          *string `json:"name,omitempty"`
	IBAN          *string `json:"iban,omitempty"`
	AccountNumber *string `json:"accountNumber,omitempty"`
	Currency      *string `json:"currency,omitempty"`
}

type DeleteAccountResult struct {
	TransactionsDeleted int `json:"transactionsDeleted"`
}

type CategoryRequest struct {
	Name string `json:"name"`
}
