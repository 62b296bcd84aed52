package models

import (
	"time"
)

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "PENDING"
	ConnectionActive   ConnectionStatus = "ACTIVE"
	ConnectionError    ConnectionStatus = "ERROR"
	ConnectionDisabled ConnectionStatus = "DISABLED"
)

type SyncStatus string

const (
	SyncIdle    SyncStatus = "IDLE"
	SyncRunning SyncStatus = "RUNNING"
	SyncSuccess SyncStatus = "SUCCESS"
	SyncFailed  SyncStatus = "FAILED"
	SyncSkipped SyncStatus = "SKIPPED"
)

type ConnectionType string

const (
	ConnectionTypeBank       ConnectionType = "BANK"
	ConnectionTypeCrypto     ConnectionType = "CRYPTO"
	ConnectionTypeInvestment ConnectionType = "INVESTMENT"
)

// Connection links one user to one upstream provider.
// Stored at users/{uid}/connections/{connectionId}.
type Connection struct {
	ConnectionID        string           `firestore:"connectionId" json:"connectionId"`
	UID                 string           `firestore:"uid" json:"-"`
	ProviderID          string           `firestore:"providerId" json:"providerId"`
	DisplayName         string           `firestore:"displayName" json:"displayName"`
	Type                ConnectionType   `firestore:"type" json:"type"`
	Status              ConnectionStatus `firestore:"status" json:"status"`
	AutoSync            bool             `firestore:"autoSync" json:"autoSync"`
	EncryptedConfig     string           `firestore:"encryptedConfig" json:"-"`
	ExternalID          string           `firestore:"externalId,omitempty" json:"externalId,omitempty"` // e.g. plaid item_id
	ErrorMessage        string           `firestore:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	LastFailureKind     string           `firestore:"lastFailureKind,omitempty" json:"lastFailureKind,omitempty"`
	SyncStatus          SyncStatus       `firestore:"syncStatus" json:"syncStatus"`
	SyncStage           string           `firestore:"syncStage,omitempty" json:"syncStage,omitempty"`
	SyncProgress        int              `firestore:"syncProgress" json:"syncProgress"`
	LastSyncStartedAt   *time.Time       `firestore:"lastSyncStartedAt,omitempty" json:"lastSyncStartedAt,omitempty"`
	LastSyncCompletedAt *time.Time       `firestore:"lastSyncCompletedAt,omitempty" json:"lastSyncCompletedAt,omitempty"`
	LastSyncedAt        *time.Time       `firestore:"lastSyncedAt,omitempty" json:"lastSyncedAt,omitempty"`
	LastSyncError       string           `firestore:"lastSyncError,omitempty" json:"lastSyncError,omitempty"`
	CreatedAt           time.Time        `firestore:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time        `firestore:"updatedAt" json:"updatedAt"`
}

// LastCompletion is the reference time for due-ness: completion, else last
// successful sync. Nil means the connection never ran.
func (c *Connection) LastCompletion() *time.Time {
	if c.LastSyncCompletedAt != nil {
		return c.LastSyncCompletedAt
	}
	return c.LastSyncedAt
}
