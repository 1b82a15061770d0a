// Package services – AuthService
//
// This file implements registration, login, session verification, and logout
// over the remote key-value store. Usernames are matched case-insensitively
// via Unicode case folding. Passwords are stored as bcrypt hashes and
// compared with bcrypt's constant-time check; sessions are opaque random
// bearer tokens whose TTL slides forward on every successful verification.
//
// Authentication always requires the remote store: there is no local
// fallback for identity data, so an unreachable backend surfaces as
// ErrStoreUnavailable rather than degrading silently.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/thaltrack/journal-backend/internal/domain"
	"github.com/thaltrack/journal-backend/internal/kv"
	"github.com/thaltrack/journal-backend/internal/repo"
)

// Remote is the connection-manager contract the services depend on.
// *kv.Manager implements it.
type Remote interface {
	// Acquire returns a ready store handle or fails with a kv error.
	Acquire(ctx context.Context) (kv.Store, error)

	// Ping checks backend liveness.
	Ping(ctx context.Context) error
}

// AuthService translates opaque bearer tokens into user identities and
// enforces credential checks at login and registration.
type AuthService struct {
	// Remote provides the key-value store connection.
	Remote Remote

	// BcryptCost is the hashing cost for new passwords; bcrypt.DefaultCost
	// when zero.
	BcryptCost int
}

// NewAuthService constructs an AuthService with default hashing cost.
func NewAuthService(remote Remote) *AuthService {
	return &AuthService{Remote: remote, BcryptCost: bcrypt.DefaultCost}
}

// foldUsername lowercases a username with full Unicode case folding so that
// lookups are case-insensitive beyond ASCII.
func foldUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// newToken returns an unguessable opaque session token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *AuthService) store(ctx context.Context) (kv.Store, error) {
	st, err := s.Remote.Acquire(ctx)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return st, nil
}

// Register creates a new user and an initial session. It fails with
// ErrUsernameTaken when a case-insensitively matching username exists and
// ErrMissingFields when any input is blank.
func (s *AuthService) Register(ctx context.Context, username, password, name string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	if username == "" || password == "" || name == "" {
		return nil, "", ErrMissingFields
	}

	st, err := s.store(ctx)
	if err != nil {
		return nil, "", err
	}

	folded := foldUsername(username)
	if _, err := repo.GetUserRecord(ctx, st, folded); err == nil {
		return nil, "", ErrUsernameTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, "", err
	}

	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, "", err
	}

	user := domain.User{
		ID:        uuid.NewString(),
		Username:  folded,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	rec := &domain.UserRecord{PasswordHash: string(hash), User: user}
	if err := repo.SaveUserRecord(ctx, st, folded, rec); err != nil {
		return nil, "", err
	}

	token, err := s.startSession(ctx, st, user.ID)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// Login authenticates a user and creates a new session. Unknown usernames
// and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, "", ErrMissingFields
	}

	st, err := s.store(ctx)
	if err != nil {
		return nil, "", err
	}

	rec, err := repo.GetUserRecord(ctx, st, foldUsername(username))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.startSession(ctx, st, rec.User.ID)
	if err != nil {
		return nil, "", err
	}
	return &rec.User, token, nil
}

func (s *AuthService) startSession(ctx context.Context, st kv.Store, userID string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := repo.CreateSession(ctx, st, token, userID); err != nil {
		return "", err
	}
	return token, nil
}

// Verify resolves a bearer token to its user and slides the session TTL
// forward. Unknown and expired tokens both yield ErrInvalidSession.
func (s *AuthService) Verify(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	st, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	userID, err := repo.GetSession(ctx, st, token)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}

	// Continued use keeps the session alive; a failed refresh is harmless.
	_ = repo.RefreshSession(ctx, st, token)

	user, err := repo.GetUserByID(ctx, st, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Logout deletes the session for token; idempotent.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	return repo.DeleteSession(ctx, st, token)
}
