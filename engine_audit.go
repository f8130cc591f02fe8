package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventTwoFactorRequired    = "twofa_required"
	auditEventTwoFactorSuccess     = "twofa_success"
	auditEventTwoFactorFailure     = "twofa_failure"
	auditEventTwoFactorReplay      = "twofa_replay"
	auditEventTwoFactorExceeded    = "twofa_attempts_exceeded"
	auditEventTOTPSetupRequested   = "totp_setup_requested"
	auditEventTOTPSetupConfirmed   = "totp_setup_confirmed"
	auditEventTOTPDisabled         = "totp_disabled"
	auditEventBackupCodeUsed       = "backup_code_used"
	auditEventBackupCodeFailed     = "backup_code_failed"
	auditEventBackupCodesGenerated = "backup_codes_generated"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
	auditEventTokenBlacklisted     = "token_blacklisted"
)

// AuditErrorCode is the stable machine-readable error tag attached to
// failed audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized        AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrAccountUnverified   AuditErrorCode = "account_unverified"
	auditErrTwoFactorRequired   AuditErrorCode = "twofa_required"
	auditErrInvalidCode         AuditErrorCode = "invalid_code"
	auditErrSessionExpired      AuditErrorCode = "session_expired"
	auditErrAttemptsExceeded    AuditErrorCode = "attempts_exceeded"
	auditErrTwoFactorState      AuditErrorCode = "twofa_state"
	auditErrRefreshReuse        AuditErrorCode = "refresh_reuse"
	auditErrInvalidRefreshToken AuditErrorCode = "invalid_refresh_token"
	auditErrUserNotFound        AuditErrorCode = "user_not_found"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTooManyAttempts),
		errors.Is(err, ErrTOTPRateLimited),
		errors.Is(err, ErrBackupCodeRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrTwoFactorRequired):
		return auditErrTwoFactorRequired
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrTwoFactorAlreadyEnabled),
		errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrTwoFactorNotConfigured),
		errors.Is(err, ErrBackupCodesNotConfigured):
		return auditErrTwoFactorState
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidRefreshToken):
		return auditErrInvalidRefreshToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
