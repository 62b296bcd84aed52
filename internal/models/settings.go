package models

import "time"

// Settings is the admin-tunable singleton at settings/app. Zero values mean
// "use the configured default".
type Settings struct {
	SyncEnabled        *bool      `firestore:"syncEnabled,omitempty" json:"syncEnabled,omitempty"`
	SyncInterval       int64      `firestore:"syncIntervalMs,omitempty" json:"syncIntervalMs,omitempty"`
	CryptoSyncInterval int64      `firestore:"cryptoSyncIntervalMs,omitempty" json:"cryptoSyncIntervalMs,omitempty"`
	AIEnabled          *bool      `firestore:"aiEnabled,omitempty" json:"aiEnabled,omitempty"`
	AIModel            string     `firestore:"aiModel,omitempty" json:"aiModel,omitempty"`
	AIDisabledUntil    *time.Time `firestore:"aiDisabledUntil,omitempty" json:"aiDisabledUntil,omitempty"`
	AILastError        string     `firestore:"aiLastError,omitempty" json:"aiLastError,omitempty"`
	AILastErrorAt      *time.Time `firestore:"aiLastErrorAt,omitempty" json:"aiLastErrorAt,omitempty"`
	UpdatedAt          time.Time  `firestore:"updatedAt" json:"updatedAt"`
}
