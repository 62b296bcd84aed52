package models

import "time"

type MatchType string

const (
	MatchIBAN        MatchType = "IBAN"
	MatchMerchant    MatchType = "MERCHANT"
	MatchDescription MatchType = "DESCRIPTION"
)

type MatchMode string

const (
	MatchExact    MatchMode = "EXACT"
	MatchContains MatchMode = "CONTAINS"
)

// CategoryOverride is a user rule, unique per (uid, MatchType, MatchValue).
// MatchValue is stored normalized.
type CategoryOverride struct {
	OverrideID string    `firestore:"overrideId" json:"overrideId"`
	MatchType  MatchType `firestore:"matchType" json:"matchType"`
	MatchMode  MatchMode `firestore:"matchMode" json:"matchMode"`
	MatchValue string    `firestore:"matchValue" json:"matchValue"`
	Category   string    `firestore:"category" json:"category"`
	CreatedAt  time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt" json:"updatedAt"`
}
