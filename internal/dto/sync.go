package dto

import "github.com/GregMSThompson/finance-sync/internal/models"

// SyncResult is what a provider reports after a successful run.
type SyncResult struct {
	AccountsUpdated      int    `json:"accountsUpdated"`
	TransactionsImported int    `json:"transactionsImported"`
	TransactionsUpdated  int    `json:"transactionsUpdated"`
	Status               string `json:"status"`
}

// ConnectResult is returned by a provider's Initiate. A non-nil Config
// replaces the connection's encrypted config.
type ConnectResult struct {
	Status      models.ConnectionStatus `json:"status"`
	RedirectURL string                  `json:"redirectUrl,omitempty"`
	LinkToken   string                  `json:"linkToken,omitempty"`
	ExternalID  string                  `json:"externalId,omitempty"`
	Config      map[string]string       `json:"-"`
}

type ProviderMetadata struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Type       models.ConnectionType `json:"type"`
	ConfigKeys []string              `json:"configKeys,omitempty"`
}

type CreateConnectionRequest struct {
	ProviderID  string            `json:"providerId"`
	DisplayName string            `json:"displayName"`
	AutoSync    *bool             `json:"autoSync,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
}

type UpdateConnectionRequest struct {
	DisplayName *string           `json:"displayName,omitempty"`
	AutoSync    *bool             `json:"autoSync,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
}

type CreateConnectionResult struct {
	Connection *models.Connection `json:"connection"`
	Connect    ConnectResult      `json:"connect"`
}

type SyncRequestResult struct {
	Started    bool               `json:"started"`
	Connection *models.Connection `json:"connection,omitempty"`
}
