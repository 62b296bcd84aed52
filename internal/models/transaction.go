package models

import (
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

type CategorySource string

const (
	SourceRule     CategorySource = "rule"
	SourceOverride CategorySource = "override"
	SourceAI       CategorySource = "ai"
	SourceManual   CategorySource = "manual"
	SourceSystem   CategorySource = "system"
)

// Transaction is a ledger entry. The document id is derived from
// (AccountID, ExternalID) so a re-import lands on the same document.
type Transaction struct {
	TransactionID      string         `firestore:"transactionId" json:"transactionId"`
	AccountID          string         `firestore:"accountId" json:"accountId"`
	ConnectionID       string         `firestore:"connectionId,omitempty" json:"connectionId,omitempty"`
	ExternalID         string         `firestore:"externalId" json:"externalId"`
	Amount             float64        `firestore:"amount" json:"amount"` // unsigned, sign is Direction
	Currency           string         `firestore:"currency" json:"currency"`
	Direction          Direction      `firestore:"direction" json:"direction"`
	Description        string         `firestore:"description" json:"description"`
	Merchant           string         `firestore:"merchant,omitempty" json:"merchant,omitempty"`
	CounterpartyIBAN   string         `firestore:"counterpartyIban,omitempty" json:"counterpartyIban,omitempty"`
	BookingDate        string         `firestore:"bookingDate,omitempty" json:"bookingDate,omitempty"` // YYYY-MM-DD
	ValueDate          string         `firestore:"valueDate,omitempty" json:"valueDate,omitempty"`
	Status             string         `firestore:"status,omitempty" json:"status,omitempty"` // "booked", "pending"
	TxType             string         `firestore:"txType,omitempty" json:"txType,omitempty"`
	Category           string         `firestore:"category" json:"category"`
	CategorySource     CategorySource `firestore:"categorySource" json:"categorySource"`
	CategoryConfidence float64        `firestore:"categoryConfidence" json:"categoryConfidence"`
	CategoryReason     string         `firestore:"categoryReason" json:"categoryReason"`
	CreatedAt          time.Time      `firestore:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time      `firestore:"updatedAt" json:"updatedAt"`
}
