// Package repo implements the persistence layer for health records and auth
// data. Remote persistence is a key-value store accessed through kv.Store;
// device-local fallback persistence is SQLite via GORM (see local.go).
//
// Remote key layout:
//
//	user:<userID>:assessment:<date>        record body (JSON)
//	user:<userID>:assessments              index list of dates
//	user:<userID>:fatigue_scale:<id>       record body (JSON)
//	user:<userID>:fatigue_scales           index list of ids
//	user:<userID>:exercise_session:<id>    record body (JSON)
//	user:<userID>:exercise_sessions        index list of ids
//
// Every key is namespaced by userID, so cross-user collisions are impossible
// by construction. Index membership is a hint, not a guarantee: bodies expire
// under their TTL while index entries remain, and list reads skip such misses
// silently.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thaltrack/journal-backend/internal/domain"
	"github.com/thaltrack/journal-backend/internal/kv"
)

// ErrNotFound is returned when a requested record does not exist. "No record
// for this key" is an expected, frequent condition, never logged as an error.
var ErrNotFound = errors.New("record not found")

// RecordTTL is the time-to-live applied to every health record body.
// Expiry is the backend's responsibility; readers tolerate expired bodies
// whose index entries remain.
const RecordTTL = 30 * 24 * time.Hour

// RecordKey builds the primary key of a record.
func RecordKey(userID string, kind domain.RecordKind, key string) string {
	return fmt.Sprintf("user:%s:%s:%s", userID, kind, key)
}

// IndexKey builds the key of the per-user secondary index list for a kind.
func IndexKey(userID string, kind domain.RecordKind) string {
	return fmt.Sprintf("user:%s:%s", userID, kind.IndexName())
}

// PutRecord writes the JSON-encoded body under the primary key and appends
// key to the user's index for the kind unless it is already present.
// Last write wins; there is no optimistic concurrency. The body write and the
// index append are two sequential operations with no rollback: on a failed
// append the index under-references, which list reads tolerate.
func PutRecord(ctx context.Context, s kv.Store, userID string, kind domain.RecordKind, key string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if err := s.SetEX(ctx, RecordKey(userID, kind, key), string(raw), RecordTTL); err != nil {
		return err
	}
	return appendIndex(ctx, s, userID, kind, key)
}

// appendIndex adds key to the kind's index list if absent.
func appendIndex(ctx context.Context, s kv.Store, userID string, kind domain.RecordKind, key string) error {
	idx := IndexKey(userID, kind)
	_, err := s.LPos(ctx, idx, key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, kv.ErrNil) {
		return err
	}
	return s.RPush(ctx, idx, key)
}

// GetRecord reads the record body into out, returning ErrNotFound when the
// key is absent (including TTL expiry).
func GetRecord(ctx context.Context, s kv.Store, userID string, kind domain.RecordKind, key string, out any) error {
	raw, err := s.Get(ctx, RecordKey(userID, kind, key))
	if errors.Is(err, kv.ErrNil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// ListRecordKeys returns the raw index list for the kind in insertion order.
func ListRecordKeys(ctx context.Context, s kv.Store, userID string, kind domain.RecordKind) ([]string, error) {
	return s.LRange(ctx, IndexKey(userID, kind), 0, -1)
}

// ListRecords walks the kind's index and returns every body that is still
// present, as raw JSON, in index insertion order. Keys whose body is missing
// (expired or never written) are skipped silently; date ordering is applied
// by the caller.
func ListRecords(ctx context.Context, s kv.Store, userID string, kind domain.RecordKind) ([]json.RawMessage, error) {
	keys, err := ListRecordKeys(ctx, s, userID, kind)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		raw, err := s.Get(ctx, RecordKey(userID, kind, k))
		if errors.Is(err, kv.ErrNil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, nil
}

// DeleteRecord removes the primary record and prunes its index entry.
// Deleting a non-existent key is not an error.
func DeleteRecord(ctx context.Context, s kv.Store, userID string, kind domain.RecordKind, key string) error {
	if err := s.Del(ctx, RecordKey(userID, kind, key)); err != nil {
		return err
	}
	return s.LRem(ctx, IndexKey(userID, kind), key)
}
