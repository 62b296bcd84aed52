package dto

import "time"

// Settings is the resolved view of admin settings over configured defaults,
// fetched once per scheduler tick and passed down.
type Settings struct {
	SyncEnabled        bool          `json:"syncEnabled"`
	SyncInterval       time.Duration `json:"syncInterval"`
	CryptoSyncInterval time.Duration `json:"cryptoSyncInterval"`
	AIEnabled          bool          `json:"aiEnabled"`
	AIModel            string        `json:"aiModel"`
	AIDisabledUntil    *time.Time    `json:"aiDisabledUntil,omitempty"`
	AILastError        string        `json:"aiLastError,omitempty"`
	AILastErrorAt      *time.Time    `json:"aiLastErrorAt,omitempty"`
}

type SettingsUpdate struct {
	SyncEnabled          *bool   `json:"syncEnabled,omitempty"`
	SyncIntervalMs       *int64  `json:"syncIntervalMs,omitempty"`
	CryptoSyncIntervalMs *int64  `json:"cryptoSyncIntervalMs,omitempty"`
	AIEnabled            *bool   `json:"aiEnabled,omitempty"`
	AIModel              *string `json:"aiModel,omitempty"`
}
