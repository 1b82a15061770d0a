// Package services defines the business logic of the health journal: the
// auth-scoped session service and the record service with its availability
// fallback. This file centralizes the service-level error values so callers
// can branch on them and handlers can map them to HTTP responses.
//
// "No record for this key" is deliberately absent: it is an expected common
// case represented as a nil result, never an error.
package services

import "errors"

// Authentication errors, always surfaced to the caller with a specific reason.
var (
	// ErrUsernameTaken is returned by Register when a case-insensitively
	// matching username already exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned by Login for an unknown user or a
	// password mismatch. Both cases share one error so a caller cannot
	// probe which check failed.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidSession is returned by Verify for an unknown or expired
	// session token.
	ErrInvalidSession = errors.New("invalid or expired session")

	// ErrMissingFields is returned when a registration or login request
	// omits a required field.
	ErrMissingFields = errors.New("all fields are required")
)

// Storage errors.
var (
	// ErrStoreUnavailable indicates that neither the remote store nor the
	// local fallback could serve the operation. Callers should tell the
	// user the action did not persist.
	ErrStoreUnavailable = errors.New("storage unavailable")
)
