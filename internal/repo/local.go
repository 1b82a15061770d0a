// Package repo – device-local fallback store backed by SQLite (pure Go
// driver) via GORM. Used whenever the remote key-value store is unreachable;
// records written here keep the remote key shape so the one-shot migration
// can replay them through the normal put path.
package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/thaltrack/journal-backend/internal/domain"
)

// metaMigrationDone is the LocalMeta flag set after a successful
// local-to-remote migration.
const metaMigrationDone = "migration_done"

// OpenSQLite opens (or creates) the fallback database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if the parent directory does not exist (instead of the
	// sqlite "out of memory (14)" error on some platforms).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates the fallback-store schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.LocalRecord{},
		&domain.LocalMeta{},
	)
}

// PutLocalRecord upserts a record body keyed by (userID, kind, key).
func PutLocalRecord(ctx context.Context, db *gorm.DB, userID string, kind domain.RecordKind, key, value string) error {
	rec := &domain.LocalRecord{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   string(kind),
		Key:    key,
		Value:  value,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(rec).Error
}

// GetLocalRecord returns the stored JSON body, or ErrNotFound.
func GetLocalRecord(ctx context.Context, db *gorm.DB, userID string, kind domain.RecordKind, key string) (string, error) {
	var rec domain.LocalRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND key = ?", userID, string(kind), key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	return rec.Value, err
}

// ListLocalRecords returns all bodies of a kind for a user, oldest first.
func ListLocalRecords(ctx context.Context, db *gorm.DB, userID string, kind domain.RecordKind) ([]string, error) {
	var recs []domain.LocalRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, string(kind)).
		Order("created_at asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Value
	}
	return out, nil
}

// DeleteLocalRecord removes a record; deleting a missing key is not an error.
func DeleteLocalRecord(ctx context.Context, db *gorm.DB, userID string, kind domain.RecordKind, key string) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND key = ?", userID, string(kind), key).
		Delete(&domain.LocalRecord{}).Error
}

// AllLocalRecords returns every record on the device, oldest first, for the
// local-to-remote migration scan.
func AllLocalRecords(ctx context.Context, db *gorm.DB) ([]domain.LocalRecord, error) {
	var recs []domain.LocalRecord
	err := db.WithContext(ctx).Order("created_at asc").Find(&recs).Error
	return recs, err
}

// MigrationDone reports whether the one-shot migration marker is set.
func MigrationDone(ctx context.Context, db *gorm.DB) (bool, error) {
	var meta domain.LocalMeta
	err := db.WithContext(ctx).Where("name = ?", metaMigrationDone).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return meta.Value == "1", nil
}

// SetMigrationDone records the migration marker so the scan never repeats.
func SetMigrationDone(ctx context.Context, db *gorm.DB) error {
	meta := &domain.LocalMeta{Name: metaMigrationDone, Value: "1"}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(meta).Error
}
