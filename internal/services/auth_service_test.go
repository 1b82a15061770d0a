package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/thaltrack/journal-backend/internal/kv"
)

// fakeRemote serves an in-memory store and can simulate an unreachable
// backend.
type fakeRemote struct {
	mu    sync.Mutex
	store kv.Store
	down  bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{store: kv.NewMemStore()}
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeRemote) Acquire(context.Context) (kv.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, kv.ErrConnectionUnavailable
	}
	return f.store, nil
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return kv.ErrConnectionUnavailable
	}
	return nil
}

func TestRegister_CreatesUserAndSession(t *testing.T) {
	svc := NewAuthService(newFakeRemote())
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "Alice", "pw1234", "Alice A")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == "" || token == "" {
		t.Fatalf("missing id or token: %+v %q", user, token)
	}
	if user.Username != "alice" {
		t.Fatalf("username = %q, want folded %q", user.Username, "alice")
	}

	got, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("Verify user = %q, want %q", got.ID, user.ID)
	}
}

func TestRegister_RejectsCaseInsensitiveDuplicate(t *testing.T) {
	svc := NewAuthService(newFakeRemote())
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "alice", "pw1234", "Alice"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, _, err := svc.Register(ctx, "ALICE", "other", "Other"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestRegister_RequiresAllFields(t *testing.T) {
	svc := NewAuthService(newFakeRemote())
	ctx := context.Background()

	for _, tc := range []struct{ username, password, name string }{
		{"", "pw", "n"},
		{"u", "", "n"},
		{"u", "pw", ""},
		{"   ", "pw", "n"},
	} {
		if _, _, err := svc.Register(ctx, tc.username, tc.password, tc.name); !errors.Is(err, ErrMissingFields) {
			t.Fatalf("Register(%q,%q,%q) err = %v, want ErrMissingFields", tc.username, tc.password, tc.name, err)
		}
	}
}

func TestLogin_VerifiesPassword(t *testing.T) {
	svc := NewAuthService(newFakeRemote())
	svc.BcryptCost = 4 // min cost keeps the test fast
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "alice", "pw1234", "Alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, token, err := svc.Login(ctx, "Alice", "pw1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "alice" || token == "" {
		t.Fatalf("Login = %+v, %q", user, token)
	}

	if _, _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "pw1234"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogout_InvalidatesSession(t *testing.T) {
	svc := NewAuthService(newFakeRemote())
	svc.BcryptCost = 4
	ctx := context.Background()

	_, token, err := svc.Register(ctx, "alice", "pw1234", "Alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Verify(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Verify after logout err = %v, want ErrInvalidSession", err)
	}
	// Logging out twice is fine.
	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
}

func TestVerify_RejectsUnknownToken(t *testing.T) {
	svc := NewAuthService(newFakeRemote())
	ctx := context.Background()

	if _, err := svc.Verify(ctx, ""); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("empty token err = %v, want ErrInvalidSession", err)
	}
	if _, err := svc.Verify(ctx, "bogus"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("unknown token err = %v, want ErrInvalidSession", err)
	}
}

func TestAuth_SurfacesStoreUnavailable(t *testing.T) {
	remote := newFakeRemote()
	remote.setDown(true)
	svc := NewAuthService(remote)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "alice", "pw", "Alice"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Register err = %v, want ErrStoreUnavailable", err)
	}
	if _, _, err := svc.Login(ctx, "alice", "pw"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Login err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := svc.Verify(ctx, "token"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Verify err = %v, want ErrStoreUnavailable", err)
	}
}
