// Package repo – auth persistence over the key-value store.
//
// Key layout:
//
//	auth:user:<usernameFolded>  UserRecord (credential envelope), 1 year TTL
//	auth:id:<userID>            folded username (reverse lookup), 1 year TTL
//	auth:session:<token>        userID, 30 day TTL, refreshed on use
//
// User records carry a year-long TTL reflecting their status as durable
// identity data; sessions are ephemeral multi-device bearer tokens.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/thaltrack/journal-backend/internal/domain"
	"github.com/thaltrack/journal-backend/internal/kv"
)

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshal(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}

const (
	// UserTTL applies to credential envelopes and the id reverse lookup.
	UserTTL = 365 * 24 * time.Hour
	// SessionTTL applies to session tokens and is reset on every Verify.
	SessionTTL = 30 * 24 * time.Hour
)

func userKey(usernameFolded string) string { return "auth:user:" + usernameFolded }
func userIDKey(userID string) string       { return "auth:id:" + userID }
func sessionKey(token string) string       { return "auth:session:" + token }

// GetUserRecord loads the credential envelope for a case-folded username,
// or ErrNotFound.
func GetUserRecord(ctx context.Context, s kv.Store, usernameFolded string) (*domain.UserRecord, error) {
	var rec domain.UserRecord
	raw, err := s.Get(ctx, userKey(usernameFolded))
	if errors.Is(err, kv.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveUserRecord persists the credential envelope and the id reverse lookup.
func SaveUserRecord(ctx context.Context, s kv.Store, usernameFolded string, rec *domain.UserRecord) error {
	raw, err := marshal(rec)
	if err != nil {
		return err
	}
	if err := s.SetEX(ctx, userKey(usernameFolded), raw, UserTTL); err != nil {
		return err
	}
	return s.SetEX(ctx, userIDKey(rec.User.ID), usernameFolded, UserTTL)
}

// GetUserByID resolves a userID to its User via the reverse lookup key.
func GetUserByID(ctx context.Context, s kv.Store, userID string) (*domain.User, error) {
	folded, err := s.Get(ctx, userIDKey(userID))
	if errors.Is(err, kv.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec, err := GetUserRecord(ctx, s, folded)
	if err != nil {
		return nil, err
	}
	return &rec.User, nil
}

// CreateSession stores token → userID with the session TTL.
func CreateSession(ctx context.Context, s kv.Store, token, userID string) error {
	return s.SetEX(ctx, sessionKey(token), userID, SessionTTL)
}

// GetSession resolves a token to its userID, or ErrNotFound for unknown or
// expired tokens.
func GetSession(ctx context.Context, s kv.Store, token string) (string, error) {
	userID, err := s.Get(ctx, sessionKey(token))
	if errors.Is(err, kv.ErrNil) {
		return "", ErrNotFound
	}
	return userID, err
}

// RefreshSession extends a live session's TTL. Missing tokens are a no-op.
func RefreshSession(ctx context.Context, s kv.Store, token string) error {
	return s.Expire(ctx, sessionKey(token), SessionTTL)
}

// DeleteSession removes a session; idempotent.
func DeleteSession(ctx context.Context, s kv.Store, token string) error {
	return s.Del(ctx, sessionKey(token))
}
