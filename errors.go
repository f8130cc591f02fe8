package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned when the identifier or password is
	// wrong. Unknown identifiers and wrong passwords are deliberately
	// indistinguishable to prevent user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts is returned when the per-IP or per-identifier
	// login failure budget is exhausted for the current cooldown window.
	ErrTooManyAttempts = errors.New("too many login attempts")
	// ErrAccountUnverified is returned when the account exists but has not
	// completed verification and RequireVerified is enabled.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrTwoFactorRequired signals that password verification succeeded and
	// the caller must complete the 2FA step with the returned pending token.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrSessionExpired is returned when a pending-login token is absent,
	// expired, or already consumed.
	ErrSessionExpired = errors.New("pending login session expired")
	// ErrInvalidCode is returned for a TOTP or backup code that does not
	// verify against the user's current 2FA state.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrTwoFactorAlreadyEnabled is returned by setup initiation when the
	// user already has confirmed 2FA.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotEnabled is returned by operations that require an
	// active, confirmed TOTP secret.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorNotConfigured is returned when no pending secret exists
	// for a setup confirmation.
	ErrTwoFactorNotConfigured = errors.New("two-factor setup not initiated")
	// ErrTOTPRateLimited is returned when TOTP verification attempts for a
	// user exceed the failure budget.
	ErrTOTPRateLimited = errors.New("totp attempts rate limited")
	// ErrAttemptsExceeded is returned when a pending-login token accumulates
	// too many failed code submissions and is invalidated.
	ErrAttemptsExceeded = errors.New("pending login attempts exceeded")
	// ErrBackupCodeRateLimited is returned when backup-code verification
	// attempts for a user exceed the failure budget.
	ErrBackupCodeRateLimited = errors.New("backup code rate limited")
	// ErrBackupCodesNotConfigured is returned when a user has no stored
	// backup codes.
	ErrBackupCodesNotConfigured = errors.New("backup codes not configured")
	// ErrInvalidRefreshToken is returned for malformed, unknown, or expired
	// refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a rotated-out refresh token is
	// presented again; the whole session is revoked in response.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRefreshRateLimited is returned when refresh attempts for a session
	// exceed the throttle budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrUnauthorized is returned for missing, malformed, expired, or
	// blacklisted access tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is returned by user lookups outside the login path.
	// Login folds it into ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
	// ErrBackendUnavailable is returned when Redis or the user store cannot
	// be reached.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned when the engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
