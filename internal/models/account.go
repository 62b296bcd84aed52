package models

import "time"

type Account struct {
	AccountID     string         `firestore:"accountId" json:"accountId"`
	ConnectionID  string         `firestore:"connectionId" json:"connectionId"`
	Name          string         `firestore:"name" json:"name"`
	Type          ConnectionType `firestore:"type" json:"type"`
	IBAN          string         `firestore:"iban,omitempty" json:"iban,omitempty"`
	AccountNumber string         `firestore:"accountNumber,omitempty" json:"accountNumber,omitempty"` // mask when the upstream hides the full number
	Currency      string         `firestore:"currency,omitempty" json:"currency,omitempty"`
	CreatedAt     time.Time      `firestore:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `firestore:"updatedAt" json:"updatedAt"`
}

// Category is one entry of a user's own vocabulary. Names are unique per user
// ignoring case.
type Category struct {
	CategoryID string    `firestore:"categoryId" json:"categoryId"`
	Name       string    `firestore:"name" json:"name"`
	CreatedAt  time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt" json:"updatedAt"`
}
