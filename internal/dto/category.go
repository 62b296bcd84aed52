package dto

import (
	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/finance-sync/internal/models"
)

type ClassifyInput struct {
	UID              string
	Description      string
	Merchant         string
	Direction        models.Direction
	TxType           string
	AccountType      models.ConnectionType
	Currency         string
	Amount           decimal.Decimal
	CounterpartyIBAN string
	AllowAI          bool
}

type CategoryResult struct {
	Category   string                `json:"category"`
	Source     models.CategorySource `json:"source"`
	Confidence float64               `json:"confidence"`
	Reason     string                `json:"reason"`
	// AIAttempted is set when the classifier spent an AI call, even if the
	// answer was rejected.
	AIAttempted bool `json:"-"`
}

type OverrideRequest struct {
	MatchType      models.MatchType `json:"matchType"`
	MatchMode      models.MatchMode `json:"matchMode,omitempty"`
	MatchValue     string           `json:"matchValue"`
	Category       string           `json:"category"`
	ApplyToHistory bool             `json:"applyToHistory,omitempty"`
}

type OverrideResult struct {
	Override *models.CategoryOverride `json:"override"`
	Applied  int                      `json:"applied"`
}
