package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/kinetafit/authcore/internal"
	"github.com/kinetafit/authcore/internal/ephemeral"
	"github.com/kinetafit/authcore/internal/limiters"
	"github.com/kinetafit/authcore/internal/rate"
	"github.com/kinetafit/authcore/jwt"
	"github.com/kinetafit/authcore/password"
	"github.com/kinetafit/authcore/session"
)

// Engine is the authentication core. Build one with [New] and share it;
// all methods are safe for concurrent use.
type Engine struct {
	config        Config
	userProvider  UserProvider
	passwordHash  *password.Argon2
	totp          *totpManager
	pending       *ephemeral.Store
	sessionStore  *session.Store
	blacklist     *session.Blacklist
	rateLimiter   *rate.Limiter
	totpLimiter   *limiters.TOTPLimiter
	backupLimiter *limiters.BackupCodeLimiter
	audit         *auditDispatcher
	metrics       *Metrics
	jwtManager    *jwt.Manager
	userLocks     *stripedLocks
	stopSweeper   context.CancelFunc
}

// Close flushes the audit dispatcher and stops the pending-login sweeper.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.stopSweeper != nil {
		e.stopSweeper()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// issueSessionTokens mints a session, access token, and refresh token
// for a fully authenticated user.
func (e *Engine) issueSessionTokens(ctx context.Context, user UserRecord) (*LoginResult, error) {
	sessionID, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:   sessionID,
		UserID:      user.UserID,
		Email:       user.Email,
		Roles:       user.Roles,
		Verified:    user.Verified,
		TwoFactor:   user.TwoFactorEnabled,
		RefreshHash: internal.HashRefreshSecret(refreshSecret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(e.config.Session.RefreshTTL).Unix(),
	}

	if err := e.sessionStore.Save(ctx, sess, e.config.Session.RefreshTTL); err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	access, _, err := e.jwtManager.CreateAccess(user.UserID, sessionID, user.Roles, user.TwoFactorEnabled)
	if err != nil {
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.config.JWT.AccessTTL.Seconds()),
		User:         profileOf(user),
	}, nil
}

func profileOf(user UserRecord) *Profile {
	return &Profile{
		ID:               user.UserID,
		Username:         user.Username,
		Email:            user.Email,
		Roles:            user.Roles,
		Verified:         user.Verified,
		TwoFactorEnabled: user.TwoFactorEnabled,
	}
}

// Refresh rotates a refresh token and returns a fresh token pair. A
// reused token destroys its session and returns [ErrRefreshReuse].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidRefreshToken, func() map[string]string {
			return map[string]string{"reason": "decode_failed"}
		})
		return nil, ErrInvalidRefreshToken
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, sessionID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricRefreshRateLimited)
				e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrRefreshRateLimited, nil)
				return nil, ErrRefreshRateLimited
			}
			return nil, errors.Join(ErrBackendUnavailable, err)
		}
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	sess, err := e.sessionStore.RotateRefreshHash(
		ctx,
		sessionID,
		internal.HashRefreshSecret(providedSecret),
		internal.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricSessionInvalidated)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", sessionID, ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, session.ErrSessionNotFound),
			errors.Is(err, session.ErrSessionExpired),
			errors.Is(err, session.ErrSessionCorrupt):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrInvalidRefreshToken, func() map[string]string {
				return map[string]string{"reason": "session_gone"}
			})
			return nil, ErrInvalidRefreshToken
		default:
			e.metricInc(MetricRefreshFailure)
			return nil, errors.Join(ErrBackendUnavailable, err)
		}
	}

	access, _, err := e.jwtManager.CreateAccess(sess.UserID, sess.SessionID, sess.Roles, sess.TwoFactor)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sess.SessionID, nextSecret)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sess.SessionID, nil, nil)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.config.JWT.AccessTTL.Seconds()),
	}, nil
}

// Validate verifies an access token and returns the authenticated
// identity. Signature, expiry, and the blacklist are all checked; any
// failure collapses to [ErrUnauthorized].
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}

	// Blacklist lookups fail closed: if Redis is down we reject rather
	// than accept a possibly revoked token.
	revoked, err := e.blacklist.Contains(ctx, claims.ID)
	if err != nil || revoked {
		return nil, ErrUnauthorized
	}

	return &AuthResult{
		UserID:    claims.Subject,
		SessionID: claims.ID,
		Roles:     claims.Roles,
		TwoFactor: claims.TwoFactor,
	}, nil
}

// IsBlacklisted reports whether a session's access tokens have been
// revoked before expiry.
func (e *Engine) IsBlacklisted(ctx context.Context, sessionID string) (bool, error) {
	return e.blacklist.Contains(ctx, sessionID)
}

// Logout revokes the given access token and destroys its session. The
// token's jti goes on the blacklist until its natural expiry, so the
// short-lived access token dies with the session.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", "", ErrUnauthorized, func() map[string]string {
			return map[string]string{"reason": "invalid_access_token"}
		})
		return ErrUnauthorized
	}

	if claims.ExpiresAt != nil {
		if err := e.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return errors.Join(ErrBackendUnavailable, err)
		}
		e.metricInc(MetricTokenBlacklisted)
		e.emitAudit(ctx, auditEventTokenBlacklisted, true, claims.Subject, claims.ID, nil, nil)
	}

	return e.LogoutSession(ctx, claims.Subject, claims.ID)
}

// LogoutSession destroys one session by ID.
func (e *Engine) LogoutSession(ctx context.Context, userID, sessionID string) error {
	err := e.sessionStore.Delete(ctx, sessionID)
	if err == nil {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogout, err == nil, userID, sessionID, err, nil)
	return err
}

// LogoutAll destroys every session belonging to a user. Access tokens
// already in the wild stay valid until expiry unless individually
// blacklisted via [Engine.Logout].
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	err := e.sessionStore.DeleteAllForUser(ctx, userID)
	if err == nil {
		e.metricInc(MetricLogoutAll)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, userID, "", err, nil)
	return err
}
