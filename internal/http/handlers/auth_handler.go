// Auth HTTP handlers.
//
// This file exposes REST endpoints for account and session management:
//   - POST /auth/register  (create account + initial session)
//   - POST /auth/login     (password login, new session)
//   - GET  /auth/verify    (resolve bearer token to user, slides TTL)
//   - POST /auth/logout    (invalidate session; idempotent)
//
// Handlers are transport-thin: they validate input, call the auth service,
// and translate service errors into the shared error envelope. Registration
// and login return the session token in the response body; every other
// endpoint expects it back as an Authorization bearer header.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thaltrack/journal-backend/internal/domain"
	"github.com/thaltrack/journal-backend/internal/http/middleware"
	"github.com/thaltrack/journal-backend/internal/services"
)

// AuthService defines the account and session operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AuthService interface {
	// Register creates a user plus an initial session token.
	Register(ctx context.Context, username, password, name string) (*domain.User, string, error)
	// Login authenticates credentials and opens a new session.
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
	// Verify resolves a session token to its user and refreshes the TTL.
	Verify(ctx context.Context, token string) (*domain.User, error)
	// Logout deletes the session for token; unknown tokens succeed.
	Logout(ctx context.Context, token string) error
}

//
// DTOs
//

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

// LoginRequest is the JSON payload for password login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries the authenticated user and the opaque session token.
type AuthResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// VerifyResponse carries the user resolved from a session token.
type VerifyResponse struct {
	User *domain.User `json:"user"`
}

// mapAuthError translates auth service errors into the error envelope.
func mapAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMissingFields):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrUsernameTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidSession):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, services.ErrStoreUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "storage unavailable, try again later")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Registers a new user and returns the user plus an initial session token.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterRequest  true  "Registration payload"
//
// @Success     201  {object}  handlers.AuthResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing fields"
// @Failure     409  {object}  handlers.ErrorResponse  "Username taken"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	user, token, err := h.authSvc.Register(c.Request.Context(), req.Username, req.Password, req.Name)
	if err != nil {
		mapAuthError(c, err)
		return
	}
	ok(c, http.StatusCreated, AuthResponse{User: user, Token: token})
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Authenticates a username (case-insensitive) and password, returning a new session token.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Login payload"
//
// @Success     200  {object}  handlers.AuthResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	user, token, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		mapAuthError(c, err)
		return
	}
	ok(c, http.StatusOK, AuthResponse{User: user, Token: token})
}

// VerifySession godoc
// @ID          verifySession
// @Summary     Verify a session
// @Description Resolves the bearer token to its user and slides the session TTL forward.
// @Tags        Auth
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
//
// @Success     200  {object}  handlers.VerifyResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid or expired session"
// @Router      /auth/verify [get]
func (h *Handlers) VerifySession(c *gin.Context) {
	token := middleware.BearerToken(c)
	if token == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
		return
	}
	user, err := h.authSvc.Verify(c.Request.Context(), token)
	if err != nil {
		mapAuthError(c, err)
		return
	}
	ok(c, http.StatusOK, VerifyResponse{User: user})
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Description Invalidates the bearer token's session. Logging out twice succeeds.
// @Tags        Auth
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
//
// @Success     204  {string}  string  "No Content"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	token := strings.TrimSpace(middleware.BearerToken(c))
	if token == "" {
		noContent(c)
		return
	}
	if err := h.authSvc.Logout(c.Request.Context(), token); err != nil {
		mapAuthError(c, err)
		return
	}
	noContent(c)
}
