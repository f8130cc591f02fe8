package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestBackupCodeFormat(t *testing.T) {
	cfg := authTestConfig()
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	_, codes := enableUserTOTP(t, engine, "u1", cfg)

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		canonical := canonicalizeBackupCode(code)
		if len(canonical) != cfg.TOTP.BackupCodeLength {
			t.Fatalf("expected %d significant characters, got %q", cfg.TOTP.BackupCodeLength, code)
		}
		for _, r := range canonical {
			if !strings.ContainsRune(backupCodeAlphabet, r) {
				t.Fatalf("code %q contains character outside alphabet", code)
			}
		}
		if seen[canonical] {
			t.Fatalf("duplicate backup code generated: %q", code)
		}
		seen[canonical] = true
	}
}

func TestBackupCodeSingleUse(t *testing.T) {
	cfg := authTestConfig()
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	_, codes := enableUserTOTP(t, engine, "u1", cfg)

	if err := engine.VerifyBackupCode(context.Background(), "u1", codes[0]); err != nil {
		t.Fatalf("VerifyBackupCode failed: %v", err)
	}
	if err := engine.VerifyBackupCode(context.Background(), "u1", codes[0]); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected reused backup code to fail, got %v", err)
	}
}

func TestBackupCodeCaseAndHyphenInsensitive(t *testing.T) {
	cfg := authTestConfig()
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	_, codes := enableUserTOTP(t, engine, "u1", cfg)

	mangled := strings.ToLower(strings.ReplaceAll(codes[0], "-", " "))
	if err := engine.VerifyBackupCode(context.Background(), "u1", mangled); err != nil {
		t.Fatalf("expected lowercase/unhyphenated code to verify, got %v", err)
	}
}

func TestBackupCodeConcurrentDoubleSpendOneWinner(t *testing.T) {
	cfg := authTestConfig()
	cfg.TOTP.BackupCodeMaxAttempts = 100

	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	_, codes := enableUserTOTP(t, engine, "u1", cfg)

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.VerifyBackupCode(context.Background(), "u1", codes[0])
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrInvalidCode) && !errors.Is(err, ErrBackupCodeRateLimited) {
			t.Fatalf("unexpected error from racer: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful spend, got %d", wins)
	}
}

func TestRegenerateBackupCodesInvalidatesOldSet(t *testing.T) {
	cfg := authTestConfig()
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	secret, oldCodes := enableUserTOTP(t, engine, "u1", cfg)

	newCodes, err := engine.RegenerateBackupCodes(context.Background(), "u1", codeForOffset(t, secret, cfg.TOTP, 1))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) != cfg.TOTP.BackupCodeCount {
		t.Fatalf("expected %d fresh codes, got %d", cfg.TOTP.BackupCodeCount, len(newCodes))
	}

	if err := engine.VerifyBackupCode(context.Background(), "u1", oldCodes[0]); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected old code invalidated, got %v", err)
	}
	if err := engine.VerifyBackupCode(context.Background(), "u1", newCodes[0]); err != nil {
		t.Fatalf("expected new code to verify, got %v", err)
	}
}

func TestRegenerateBackupCodesRequiresValidTOTP(t *testing.T) {
	cfg := authTestConfig()
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	_, oldCodes := enableUserTOTP(t, engine, "u1", cfg)

	if _, err := engine.RegenerateBackupCodes(context.Background(), "u1", "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	// Old set is untouched after a failed regeneration.
	if err := engine.VerifyBackupCode(context.Background(), "u1", oldCodes[0]); err != nil {
		t.Fatalf("expected old code still valid, got %v", err)
	}
}

func TestRegenerateBackupCodesRequiresTwoFactorEnabled(t *testing.T) {
	cfg := authTestConfig()
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	if _, err := engine.RegenerateBackupCodes(context.Background(), "u1", "123456"); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
}

func TestBackupCodeWithoutConfiguredCodes(t *testing.T) {
	cfg := authTestConfig()
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	if err := engine.VerifyBackupCode(context.Background(), "u1", "AAAAA-AAAAA"); !errors.Is(err, ErrBackupCodesNotConfigured) {
		t.Fatalf("expected ErrBackupCodesNotConfigured, got %v", err)
	}
}

func TestBackupCodeRateLimited(t *testing.T) {
	cfg := authTestConfig()
	cfg.TOTP.BackupCodeMaxAttempts = 2

	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice@example.com", "correct-password-123")

	engine, _, done := newAuthTestEngine(t, cfg, up)
	defer done()

	_, codes := enableUserTOTP(t, engine, "u1", cfg)

	ctx := context.Background()
	if err := engine.VerifyBackupCode(ctx, "u1", "ZZZZZ-ZZZZZ"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode on first wrong code, got %v", err)
	}
	if err := engine.VerifyBackupCode(ctx, "u1", "ZZZZZ-ZZZZZ"); !errors.Is(err, ErrBackupCodeRateLimited) {
		t.Fatalf("expected ErrBackupCodeRateLimited at the cap, got %v", err)
	}
	// Even a valid code is refused while throttled.
	if err := engine.VerifyBackupCode(ctx, "u1", codes[0]); !errors.Is(err, ErrBackupCodeRateLimited) {
		t.Fatalf("expected ErrBackupCodeRateLimited, got %v", err)
	}
}
