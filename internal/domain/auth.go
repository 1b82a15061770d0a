// Package domain – identity types owned by the auth subsystem.
package domain

import "time"

// User is a registered account. Created at registration and immutable
// thereafter; usernames are matched case-insensitively.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRecord is the persisted credential envelope stored under
// auth:user:<username>. PasswordHash is a bcrypt hash; plaintext passwords
// are never persisted.
type UserRecord struct {
	PasswordHash string `json:"passwordHash"`
	User         User   `json:"user"`
}

// Session maps an opaque bearer token to a user. Many sessions may reference
// one user (multi-device). Expiry is enforced by the store's key TTL and
// refreshed implicitly on verification.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
