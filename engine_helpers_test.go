package authcore

import (
	"context"
	"crypto/subtle"
	"encoding/base32"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kinetafit/authcore/password"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestHasher(t *testing.T) *password.Argon2 {
	t.Helper()

	h, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func authTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("test-signing-key-0123456789abcdef")
	cfg.PendingLogin.EncryptionKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newAuthTestEngine(t *testing.T, cfg Config, up UserProvider) (*Engine, *redis.Client, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(up).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, rdb, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func codeForOffset(t *testing.T, secretBase32 string, cfg TOTPConfig, offset int64) string {
	t.Helper()

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secretBase32))
	if err != nil {
		t.Fatalf("decode secret failed: %v", err)
	}
	m := newTOTPManager(cfg)
	counter := time.Now().Unix()/int64(cfg.Period) + offset
	code, err := m.hotpCode(key, uint64(counter))
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func codeForNow(t *testing.T, secretBase32 string, cfg TOTPConfig) string {
	t.Helper()
	return codeForOffset(t, secretBase32, cfg, 0)
}

// enableUserTOTP runs the full enrollment flow and returns the base32
// secret plus the generated backup codes.
func enableUserTOTP(t *testing.T, engine *Engine, userID string, cfg Config) (string, []string) {
	t.Helper()

	setup, err := engine.InitiateTOTPSetup(context.Background(), userID)
	if err != nil {
		t.Fatalf("InitiateTOTPSetup failed: %v", err)
	}
	if setup.SecretBase32 == "" {
		t.Fatal("expected non-empty setup secret")
	}

	code := codeForNow(t, setup.SecretBase32, cfg.TOTP)
	backupCodes, err := engine.ConfirmTOTPSetup(context.Background(), userID, code)
	if err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}

	return setup.SecretBase32, backupCodes
}

// mockUserProvider is an in-memory UserProvider shared across engine
// tests. All access is mutex-guarded so concurrent engine calls are
// safe, and ConsumeBackupCode is atomic per provider.
type mockUserProvider struct {
	mu      sync.Mutex
	users   map[string]UserRecord
	byIdent map[string]string
	totp    map[string]*TOTPRecord
	backup  map[string][]BackupCodeRecord

	passwordUpdates int
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{
		users:   make(map[string]UserRecord),
		byIdent: make(map[string]string),
		totp:    make(map[string]*TOTPRecord),
		backup:  make(map[string][]BackupCodeRecord),
	}
}

func (m *mockUserProvider) putUser(u UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
	m.byIdent[u.Email] = u.UserID
	if u.Username != "" {
		m.byIdent[u.Username] = u.UserID
	}
}

func (m *mockUserProvider) user(userID string) UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID]
}

func (m *mockUserProvider) GetUserByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byIdent[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *mockUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserProvider) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	m.users[userID] = u
	m.passwordUpdates++
	return nil
}

func (m *mockUserProvider) GetTOTPSecret(_ context.Context, userID string) (*TOTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.totp[userID]
	if !ok {
		return nil, nil
	}
	out := *rec
	out.Secret = append([]byte(nil), rec.Secret...)
	return &out, nil
}

func (m *mockUserProvider) SavePendingTOTPSecret(_ context.Context, userID string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totp[userID] = &TOTPRecord{Secret: append([]byte(nil), secret...)}
	return nil
}

func (m *mockUserProvider) ConfirmTOTPSecret(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.totp[userID]
	if !ok {
		return ErrUserNotFound
	}
	rec.Confirmed = true
	u := m.users[userID]
	u.TwoFactorEnabled = true
	m.users[userID] = u
	return nil
}

func (m *mockUserProvider) ClearTOTP(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.totp, userID)
	u := m.users[userID]
	u.TwoFactorEnabled = false
	m.users[userID] = u
	return nil
}

func (m *mockUserProvider) UpdateTOTPLastUsedStep(_ context.Context, userID string, step int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.totp[userID]
	if !ok {
		return ErrUserNotFound
	}
	rec.LastUsedStep = step
	return nil
}

func (m *mockUserProvider) GetBackupCodes(_ context.Context, userID string) ([]BackupCodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]BackupCodeRecord, len(m.backup[userID]))
	copy(out, m.backup[userID])
	return out, nil
}

func (m *mockUserProvider) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]BackupCodeRecord, len(codes))
	copy(next, codes)
	m.backup[userID] = next
	return nil
}

func (m *mockUserProvider) ConsumeBackupCode(_ context.Context, userID string, codeHash [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.backup[userID]
	matchIndex := -1
	for i := range records {
		if subtle.ConstantTimeCompare(records[i].Hash[:], codeHash[:]) == 1 && matchIndex == -1 {
			matchIndex = i
		}
	}
	if matchIndex < 0 {
		return false, nil
	}
	m.backup[userID] = append(records[:matchIndex], records[matchIndex+1:]...)
	return true, nil
}

// seedUser hashes the password and registers a verified user.
func seedUser(t *testing.T, up *mockUserProvider, userID, email, pass string) {
	t.Helper()

	hash, err := newTestHasher(t).Hash(pass)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	up.putUser(UserRecord{
		UserID:       userID,
		Username:     userID,
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{"member"},
		Verified:     true,
	})
}
