package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"strings"

	"github.com/kinetafit/authcore/internal/limiters"
)

// backupCodeAlphabet avoids characters users confuse when reading codes
// off paper: no I, no O, no 0, no 1.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RegenerateBackupCodes replaces a user's backup codes after verifying a
// current TOTP code. Every previously issued code stops working. The
// returned plaintext codes are shown once and never stored.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}

	if err := e.verifyTOTPForUser(ctx, user, totpCode); err != nil {
		return nil, err
	}

	mu := e.userLocks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	plaintext, records, err := e.generateBackupCodes(userID)
	if err != nil {
		return nil, err
	}
	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, userID, "", nil, nil)

	return plaintext, nil
}

// VerifyBackupCode consumes one backup code for a user. Each code is
// single-use; a consumed or unknown code returns [ErrInvalidCode].
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return errors.Join(ErrBackendUnavailable, err)
	}

	return e.consumeBackupCodeForUser(ctx, user, code)
}

// consumeBackupCodeForUser burns a backup code with the per-user failure
// throttle applied. The provider's ConsumeBackupCode is the atomic
// point: two concurrent submissions of the same code get exactly one
// success.
func (e *Engine) consumeBackupCodeForUser(ctx context.Context, user UserRecord, code string) error {
	if err := e.backupLimiter.Check(ctx, user.UserID); err != nil {
		if errors.Is(err, limiters.ErrBackupCodeRateLimited) {
			return ErrBackupCodeRateLimited
		}
		return errors.Join(ErrBackendUnavailable, err)
	}

	stored, err := e.userProvider.GetBackupCodes(ctx, user.UserID)
	if err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	if len(stored) == 0 {
		return ErrBackupCodesNotConfigured
	}

	canonical := canonicalizeBackupCode(code)
	if canonical == "" {
		return e.failBackupCode(ctx, user.UserID)
	}

	consumed, err := e.userProvider.ConsumeBackupCode(ctx, user.UserID, backupCodeHash(user.UserID, canonical))
	if err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	if !consumed {
		return e.failBackupCode(ctx, user.UserID)
	}

	if err := e.backupLimiter.Reset(ctx, user.UserID); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, true, user.UserID, "", nil, nil)
	return nil
}

func (e *Engine) failBackupCode(ctx context.Context, userID string) error {
	e.metricInc(MetricBackupCodeFailed)
	e.emitAudit(ctx, auditEventBackupCodeFailed, false, userID, "", ErrInvalidCode, nil)
	if err := e.backupLimiter.RecordFailure(ctx, userID); err != nil {
		if errors.Is(err, limiters.ErrBackupCodeRateLimited) {
			return ErrBackupCodeRateLimited
		}
		return errors.Join(ErrBackendUnavailable, err)
	}
	return ErrInvalidCode
}

// generateBackupCodes mints a full set of fresh codes and their storage
// records.
func (e *Engine) generateBackupCodes(userID string) ([]string, []BackupCodeRecord, error) {
	count := e.config.TOTP.BackupCodeCount
	length := e.config.TOTP.BackupCodeLength

	plaintext := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		raw, err := newBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		plaintext = append(plaintext, formatBackupCode(raw))
		records = append(records, BackupCodeRecord{Hash: backupCodeHash(userID, raw)})
	}
	return plaintext, records, nil
}

// newBackupCode draws length characters from the code alphabet. The
// alphabet size divides 256 exactly, so a plain modulo is unbiased.
func newBackupCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}
	return string(out), nil
}

// formatBackupCode groups a raw code for display ("ABCDE-FGHJK").
func formatBackupCode(raw string) string {
	if len(raw) <= 5 {
		return raw
	}
	half := len(raw) / 2
	return raw[:half] + "-" + raw[half:]
}

// canonicalizeBackupCode uppercases the input and strips separators so
// users can type codes with or without the display hyphen.
func canonicalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if (r >= 'A' && r <= 'Z') || (r >= '2' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// backupCodeHash binds the stored digest to the owning user, so equal
// codes across users never collide in storage.
func backupCodeHash(userID, canonical string) [32]byte {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(canonical))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
