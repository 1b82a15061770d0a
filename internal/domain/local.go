// Package domain – GORM models for the device-local fallback store.
// These types back the SQLite database used when the remote key-value store
// is unreachable, and the one-shot migration marker that moves local records
// into the remote store once it comes back.
package domain

import "time"

// LocalRecord is one health record persisted on the local device. Value holds
// the JSON-encoded record body; (UserID, Kind, Key) mirrors the remote key
// shape so migration is a straight re-put.
type LocalRecord struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_kind_key,priority:1"`
	Kind      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_kind_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_kind_key,priority:3"`
	Value     string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (LocalRecord) TableName() string { return "local_records" }

// LocalMeta is a tiny key/value table for device-scoped flags, currently just
// the "migration done" marker.
type LocalMeta struct {
	Name      string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Value     string    `gorm:"type:TEXT NOT NULL"`
	UpdatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (LocalMeta) TableName() string { return "local_meta" }
