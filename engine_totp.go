package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/kinetafit/authcore/internal/limiters"
)

// InitiateTOTPSetup generates a fresh TOTP secret for a user and stores
// it unconfirmed. The user does not have 2FA until they prove possession
// of the secret via [Engine.ConfirmTOTPSetup]; initiating again before
// that simply replaces the pending secret.
func (e *Engine) InitiateTOTPSetup(ctx context.Context, userID string) (*TOTPSetup, error) {
	if e == nil || e.totp == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	mu := e.userLocks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.userProvider.SavePendingTOTPSecret(ctx, userID, secret); err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	e.metricInc(MetricTOTPSetupRequested)
	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, userID, "", nil, nil)

	encoded := e.totp.SecretBase32(secret)
	return &TOTPSetup{
		SecretBase32:   encoded,
		QRCodeURL:      e.totp.ProvisionURI(secret, user.Email),
		ManualEntryKey: groupBase32(encoded),
	}, nil
}

// ConfirmTOTPSetup verifies a first code against the pending secret,
// activates 2FA, and returns the user's freshly generated backup codes.
// The plaintext codes are shown exactly once; only hashes are stored.
// A wrong code leaves the pending secret in place for another try.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.totp == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	mu := e.userLocks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	record, err := e.userProvider.GetTOTPSecret(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	if record == nil || len(record.Secret) == 0 {
		return nil, ErrTwoFactorNotConfigured
	}
	if record.Confirmed {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	ok, step, err := e.totp.VerifyCode(record.Secret, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", ErrInvalidCode, func() map[string]string {
			return map[string]string{"phase": "setup_confirm"}
		})
		return nil, ErrInvalidCode
	}

	if err := e.userProvider.ConfirmTOTPSecret(ctx, userID); err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	if err := e.userProvider.UpdateTOTPLastUsedStep(ctx, userID, step); err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	plaintext, records, err := e.generateBackupCodes(userID)
	if err != nil {
		return nil, err
	}
	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	e.metricInc(MetricTOTPSetupConfirmed)
	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventTOTPSetupConfirmed, true, userID, "", nil, nil)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, userID, "", nil, nil)

	return plaintext, nil
}

// VerifyTOTP checks a code for a user with active 2FA. Sensitive
// operations outside the login flow use this as a step-up check.
func (e *Engine) VerifyTOTP(ctx context.Context, userID, code string) error {
	if e == nil || e.totp == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return errors.Join(ErrBackendUnavailable, err)
	}

	return e.verifyTOTPForUser(ctx, user, code)
}

// Disable2FA turns off two-factor for a user after verifying one last
// code (TOTP or backup). The secret and all backup codes are wiped; a
// wrong code changes nothing.
func (e *Engine) Disable2FA(ctx context.Context, userID, code string, factor SecondFactor) error {
	if e == nil || e.totp == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return errors.Join(ErrBackendUnavailable, err)
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	if err := e.verifySecondFactor(ctx, user, code, factor); err != nil {
		return err
	}

	mu := e.userLocks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := e.userProvider.ClearTOTP(ctx, userID); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, userID, "", nil, nil)
	return nil
}

// verifySecondFactor routes a 2FA code to the right verifier.
func (e *Engine) verifySecondFactor(ctx context.Context, user UserRecord, code string, factor SecondFactor) error {
	switch factor {
	case FactorTOTP:
		return e.verifyTOTPForUser(ctx, user, code)
	case FactorBackupCode:
		return e.consumeBackupCodeForUser(ctx, user, code)
	default:
		return ErrInvalidCode
	}
}

// verifyTOTPForUser checks a code against the user's confirmed secret
// with the per-user failure throttle and replay protection applied.
func (e *Engine) verifyTOTPForUser(ctx context.Context, user UserRecord, code string) error {
	if err := e.totpLimiter.Check(ctx, user.UserID); err != nil {
		if errors.Is(err, limiters.ErrTOTPRateLimited) {
			e.metricInc(MetricTOTPRateLimited)
			return ErrTOTPRateLimited
		}
		return errors.Join(ErrBackendUnavailable, err)
	}

	record, err := e.userProvider.GetTOTPSecret(ctx, user.UserID)
	if err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	if record == nil || !record.Confirmed || len(record.Secret) == 0 {
		return ErrTwoFactorNotEnabled
	}

	ok, step, err := e.totp.VerifyCode(record.Secret, code)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		if recErr := e.totpLimiter.RecordFailure(ctx, user.UserID); recErr != nil {
			if errors.Is(recErr, limiters.ErrTOTPRateLimited) {
				e.metricInc(MetricTOTPRateLimited)
				return ErrTOTPRateLimited
			}
			return errors.Join(ErrBackendUnavailable, recErr)
		}
		return ErrInvalidCode
	}

	if e.config.TOTP.EnforceReplayProtection {
		// A step at or below the last accepted one means this exact code
		// (or an older one) was already spent. The user lock makes the
		// read-compare-update atomic against concurrent verifications.
		mu := e.userLocks.forUser(user.UserID)
		mu.Lock()
		current, err := e.userProvider.GetTOTPSecret(ctx, user.UserID)
		if err != nil {
			mu.Unlock()
			return errors.Join(ErrBackendUnavailable, err)
		}
		if current == nil || step <= current.LastUsedStep {
			mu.Unlock()
			e.metricInc(MetricTOTPFailure)
			e.emitAudit(ctx, auditEventTwoFactorReplay, false, user.UserID, "", ErrInvalidCode, nil)
			return ErrInvalidCode
		}
		if err := e.userProvider.UpdateTOTPLastUsedStep(ctx, user.UserID, step); err != nil {
			mu.Unlock()
			return errors.Join(ErrBackendUnavailable, err)
		}
		mu.Unlock()
	}

	if err := e.totpLimiter.Reset(ctx, user.UserID); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	e.metricInc(MetricTOTPSuccess)
	return nil
}

// groupBase32 splits a base32 secret into blocks of four for manual
// entry ("JBSW Y3DP EHPK ...").
func groupBase32(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
