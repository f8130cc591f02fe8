package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	authcore "github.com/kinetafit/authcore"
	"github.com/kinetafit/authcore/password"
	"github.com/redis/go-redis/v9"
)

// singleUserProvider backs the guard tests with exactly one account.
type singleUserProvider struct {
	user authcore.UserRecord
}

func (p *singleUserProvider) GetUserByIdentifier(_ context.Context, identifier string) (authcore.UserRecord, error) {
	if identifier != p.user.Email && identifier != p.user.Username {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return p.user, nil
}

func (p *singleUserProvider) GetUserByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	if userID != p.user.UserID {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return p.user, nil
}

func (p *singleUserProvider) UpdatePasswordHash(_ context.Context, _, newHash string) error {
	p.user.PasswordHash = newHash
	return nil
}

func (p *singleUserProvider) GetTOTPSecret(context.Context, string) (*authcore.TOTPRecord, error) {
	return nil, nil
}

func (p *singleUserProvider) SavePendingTOTPSecret(context.Context, string, []byte) error {
	return nil
}

func (p *singleUserProvider) ConfirmTOTPSecret(context.Context, string) error { return nil }
func (p *singleUserProvider) ClearTOTP(context.Context, string) error         { return nil }
func (p *singleUserProvider) UpdateTOTPLastUsedStep(context.Context, string, int64) error {
	return nil
}

func (p *singleUserProvider) GetBackupCodes(context.Context, string) ([]authcore.BackupCodeRecord, error) {
	return nil, nil
}

func (p *singleUserProvider) ReplaceBackupCodes(context.Context, string, []authcore.BackupCodeRecord) error {
	return nil
}

func (p *singleUserProvider) ConsumeBackupCode(context.Context, string, [32]byte) (bool, error) {
	return false, nil
}

func newGuardedEngine(t *testing.T) (*authcore.Engine, string, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("test-signing-key-0123456789abcdef")
	cfg.PendingLogin.EncryptionKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(&singleUserProvider{user: authcore.UserRecord{
			UserID:       "u1",
			Username:     "u1",
			Email:        "u1@example.com",
			PasswordHash: hash,
			Roles:        []string{"member"},
			Verified:     true,
		}}).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	res, err := engine.Login(context.Background(), "u1@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	return engine, res.AccessToken, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardAllowsValidToken(t *testing.T) {
	engine, token, cleanup := newGuardedEngine(t)
	defer cleanup()

	var seen *authcore.AuthResult
	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if !ok {
			t.Fatal("claims missing from request context")
		}
		seen = res
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.UserID != "u1" {
		t.Fatalf("unexpected claims: %+v", seen)
	}
}

func TestGuardRejectsMissingAndMalformedHeaders(t *testing.T) {
	engine, _, cleanup := newGuardedEngine(t)
	defer cleanup()

	handler := Guard(engine)(okHandler())

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz", "token abc"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}

func TestGuardRejectsGarbageToken(t *testing.T) {
	engine, _, cleanup := newGuardedEngine(t)
	defer cleanup()

	handler := Guard(engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardRejectsLoggedOutToken(t *testing.T) {
	engine, token, cleanup := newGuardedEngine(t)
	defer cleanup()

	if err := engine.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	handler := Guard(engine)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireTwoFactorRejectsSingleFactorToken(t *testing.T) {
	engine, token, cleanup := newGuardedEngine(t)
	defer cleanup()

	// The test user has no second factor, so the token lacks the 2FA claim.
	handler := RequireTwoFactor(engine)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestNilEngineRejectsEverything(t *testing.T) {
	handler := Guard(nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
