package authcore

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kinetafit/authcore/internal/ephemeral"
	"github.com/kinetafit/authcore/internal/rate"
)

// Login verifies an identifier/password pair. Users without 2FA get a
// full token pair; users with 2FA get a short-lived pending token and
// must complete [Engine.ConfirmLogin2FA]. Unknown identifiers and wrong
// passwords both return [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	if err := e.checkLoginBudget(ctx, identifier, ip); err != nil {
		return nil, err
	}

	if pass == "" {
		return nil, e.failLogin(ctx, identifier, ip, "", "empty_password")
	}

	user, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		// Unknown identifier burns an attempt like a wrong password does,
		// so response behavior cannot be used to enumerate accounts.
		return nil, e.failLogin(ctx, identifier, ip, "", "user_not_found")
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, identifier, ip, user.UserID, "password_mismatch")
	}

	if e.config.Security.RequireVerified && !user.Verified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrAccountUnverified, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "unverified"}
		})
		return nil, ErrAccountUnverified
	}

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := e.passwordHash.Hash(pass); err == nil {
				// Rehash update is best-effort and must not block login.
				if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, upgradedHash); err != nil {
					log.Print("authcore: password hash upgrade update failed")
				}
			} else {
				log.Print("authcore: password hash upgrade generation failed")
			}
		}
	}
	pass = ""

	if err := e.resetLoginBudget(ctx, identifier, ip); err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return e.mintPendingLogin(ctx, user)
	}

	result, err := e.issueSessionTokens(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "token_issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{"identifier": identifier}
	})
	return result, nil
}

// ConfirmLogin2FA completes a two-factor login. pendingToken comes from
// the step-one [LoginResult]; code is either a TOTP code or a backup
// code depending on factor. The pending token is single-use: it is
// consumed on the first successful confirmation and invalidated after
// too many failed ones.
func (e *Engine) ConfirmLogin2FA(ctx context.Context, pendingToken, code string, factor SecondFactor) (*LoginResult, error) {
	if e == nil || e.pending == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.pending.Get(pendingToken)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", ErrSessionExpired, func() map[string]string {
			return map[string]string{"reason": "pending_missing_or_expired"}
		})
		return nil, ErrSessionExpired
	}

	user, err := e.userProvider.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.pending.Remove(pendingToken)
			return nil, ErrSessionExpired
		}
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	if err := e.verifySecondFactor(ctx, user, code, factor); err != nil {
		// Rate-limit and backend errors do not burn a pending attempt;
		// only a genuinely wrong code does.
		if !errors.Is(err, ErrInvalidCode) {
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, user.UserID, "", err, nil)
			return nil, err
		}
		return nil, e.failPendingAttempt(ctx, pendingToken, user.UserID, err)
	}

	// Remove is the atomic consume point: exactly one concurrent caller
	// sees true, every other holder of the token is turned away.
	if !e.pending.Remove(pendingToken) {
		e.metricInc(MetricTwoFactorReplay)
		e.emitAudit(ctx, auditEventTwoFactorReplay, false, user.UserID, "", ErrSessionExpired, nil)
		return nil, ErrSessionExpired
	}

	result, err := e.issueSessionTokens(ctx, user)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{"factor": string(factor)}
	})
	return result, nil
}

// mintPendingLogin parks a password-verified user behind a fresh pending
// token and returns the step-one result.
func (e *Engine) mintPendingLogin(ctx context.Context, user UserRecord) (*LoginResult, error) {
	token := uuid.NewString()
	record := &ephemeral.PendingLogin{
		UserID:    user.UserID,
		Email:     user.Email,
		ExpiresAt: time.Now().Add(e.config.PendingLogin.TTL).Unix(),
	}
	if err := e.pending.Put(token, record); err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, auditEventTwoFactorRequired, true, user.UserID, "", nil, nil)

	return &LoginResult{
		TwoFactorRequired: true,
		PendingToken:      token,
		Prompt:            twoFactorPrompt,
	}, nil
}

func (e *Engine) failPendingAttempt(ctx context.Context, pendingToken, userID string, cause error) error {
	exceeded, err := e.pending.RecordFailure(pendingToken, e.config.PendingLogin.MaxAttempts)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", ErrSessionExpired, func() map[string]string {
			return map[string]string{"reason": "pending_missing_or_expired"}
		})
		return ErrSessionExpired
	}
	if exceeded {
		e.metricInc(MetricTwoFactorAttemptsExceeded)
		e.emitAudit(ctx, auditEventTwoFactorExceeded, false, userID, "", ErrAttemptsExceeded, nil)
		return ErrAttemptsExceeded
	}

	e.metricInc(MetricTwoFactorFailure)
	e.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", cause, nil)
	return cause
}

func (e *Engine) checkLoginBudget(ctx context.Context, identifier, ip string) error {
	if e.rateLimiter == nil {
		return nil
	}
	if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrTooManyAttempts, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
			return ErrTooManyAttempts
		}
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

// failLogin burns one attempt against the identifier+IP budget and
// returns the credential error the caller reports.
func (e *Engine) failLogin(ctx context.Context, identifier, ip, userID, reason string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, identifier, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, userID, "", ErrTooManyAttempts, func() map[string]string {
					return map[string]string{"identifier": identifier}
				})
				return ErrTooManyAttempts
			}
			return errors.Join(ErrBackendUnavailable, err)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"identifier": identifier, "reason": reason}
	})
	return ErrInvalidCredentials
}

func (e *Engine) resetLoginBudget(ctx context.Context, identifier, ip string) error {
	if e.rateLimiter == nil {
		return nil
	}
	if err := e.rateLimiter.ResetLogin(ctx, identifier, ip); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}
