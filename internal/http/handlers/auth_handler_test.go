package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/thaltrack/journal-backend/internal/domain"
	"github.com/thaltrack/journal-backend/internal/services"
)

// stubAuth implements AuthService with overridable function fields.
type stubAuth struct {
	register func(ctx context.Context, username, password, name string) (*domain.User, string, error)
	login    func(ctx context.Context, username, password string) (*domain.User, string, error)
	verify   func(ctx context.Context, token string) (*domain.User, error)
	logout   func(ctx context.Context, token string) error
}

func (s *stubAuth) Register(ctx context.Context, u, p, n string) (*domain.User, string, error) {
	return s.register(ctx, u, p, n)
}
func (s *stubAuth) Login(ctx context.Context, u, p string) (*domain.User, string, error) {
	return s.login(ctx, u, p)
}
func (s *stubAuth) Verify(ctx context.Context, tok string) (*domain.User, error) {
	return s.verify(ctx, tok)
}
func (s *stubAuth) Logout(ctx context.Context, tok string) error { return s.logout(ctx, tok) }

func authTestRouter(svc AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(svc, nil)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.GET("/auth/verify", h.VerifySession)
	r.POST("/auth/logout", h.Logout)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister_Success_201(t *testing.T) {
	r := authTestRouter(&stubAuth{
		register: func(_ context.Context, username, password, name string) (*domain.User, string, error) {
			if username != "alice" || password != "pw" || name != "Alice" {
				t.Fatalf("unexpected args: %q %q %q", username, password, name)
			}
			return &domain.User{ID: "u1", Username: "alice", Name: "Alice"}, "tok-1", nil
		},
	})

	w := postJSON(t, r, "/auth/register", RegisterRequest{Username: "alice", Password: "pw", Name: "Alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Token != "tok-1" || resp.User == nil || resp.User.ID != "u1" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestRegister_BadJSON_400(t *testing.T) {
	r := authTestRouter(&stubAuth{
		register: func(context.Context, string, string, string) (*domain.User, string, error) {
			t.Fatal("service must not be called on bad JSON")
			return nil, "", nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"code":"bad_request"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestRegister_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"missing fields", services.ErrMissingFields, http.StatusBadRequest, `"code":"bad_request"`},
		{"taken", services.ErrUsernameTaken, http.StatusConflict, `"code":"conflict"`},
		{"store down", services.ErrStoreUnavailable, http.StatusServiceUnavailable, `"code":"storage_unavailable"`},
		{"other", errors.New("boom"), http.StatusInternalServerError, `"code":"internal_error"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := authTestRouter(&stubAuth{
				register: func(context.Context, string, string, string) (*domain.User, string, error) {
					return nil, "", tc.err
				},
			})
			w := postJSON(t, r, "/auth/register", RegisterRequest{Username: "a", Password: "b", Name: "c"})
			if w.Code != tc.wantCode || !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestLogin_InvalidCredentials_401(t *testing.T) {
	r := authTestRouter(&stubAuth{
		login: func(context.Context, string, string) (*domain.User, string, error) {
			return nil, "", services.ErrInvalidCredentials
		},
	})
	w := postJSON(t, r, "/auth/login", LoginRequest{Username: "alice", Password: "wrong"})
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"code":"unauthorized"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestLogin_Success_200(t *testing.T) {
	r := authTestRouter(&stubAuth{
		login: func(context.Context, string, string) (*domain.User, string, error) {
			return &domain.User{ID: "u1", Username: "alice"}, "tok-2", nil
		},
	})
	w := postJSON(t, r, "/auth/login", LoginRequest{Username: "alice", Password: "pw"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"token":"tok-2"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestVerifySession_MissingToken_401(t *testing.T) {
	r := authTestRouter(&stubAuth{
		verify: func(context.Context, string) (*domain.User, error) {
			t.Fatal("verify must not be called without a token")
			return nil, nil
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestVerifySession_Success_200(t *testing.T) {
	r := authTestRouter(&stubAuth{
		verify: func(_ context.Context, token string) (*domain.User, error) {
			if token != "tok-3" {
				return nil, services.ErrInvalidSession
			}
			return &domain.User{ID: "u1", Username: "alice"}, nil
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer tok-3")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"username":"alice"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestLogout_NoToken_IsNoOp204(t *testing.T) {
	r := authTestRouter(&stubAuth{
		logout: func(context.Context, string) error {
			t.Fatal("logout must not be called without a token")
			return nil
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestLogout_WithToken_204(t *testing.T) {
	called := false
	r := authTestRouter(&stubAuth{
		logout: func(_ context.Context, token string) error {
			called = true
			if token != "tok-4" {
				t.Fatalf("token = %q", token)
			}
			return nil
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-4")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || !called {
		t.Fatalf("status=%d called=%v", w.Code, called)
	}
}
