package internaldefs

import (
	authcore "github.com/kinetafit/authcore"
)

// CounterDef pairs an engine counter with its stable exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef pairs an engine histogram with its stable exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authcore.MetricTwoFactorRequired, Name: "authcore_twofactor_required_total", Help: "Login flows requiring a second factor."},
	{ID: authcore.MetricTwoFactorSuccess, Name: "authcore_twofactor_success_total", Help: "Successful second-factor confirmations."},
	{ID: authcore.MetricTwoFactorFailure, Name: "authcore_twofactor_failure_total", Help: "Failed second-factor confirmations."},
	{ID: authcore.MetricTwoFactorReplay, Name: "authcore_twofactor_replay_total", Help: "Detected pending-login replay attempts."},
	{ID: authcore.MetricTwoFactorAttemptsExceeded, Name: "authcore_twofactor_attempts_exceeded_total", Help: "Pending logins invalidated due to attempt cap."},
	{ID: authcore.MetricTOTPSetupRequested, Name: "authcore_totp_setup_requested_total", Help: "TOTP enrollment initiations."},
	{ID: authcore.MetricTOTPSetupConfirmed, Name: "authcore_totp_setup_confirmed_total", Help: "Confirmed TOTP enrollments."},
	{ID: authcore.MetricTOTPDisabled, Name: "authcore_totp_disabled_total", Help: "TOTP disable operations."},
	{ID: authcore.MetricTOTPFailure, Name: "authcore_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: authcore.MetricTOTPSuccess, Name: "authcore_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: authcore.MetricTOTPRateLimited, Name: "authcore_totp_rate_limited_total", Help: "Rate-limited TOTP verifications."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Successful backup-code authentications."},
	{ID: authcore.MetricBackupCodeFailed, Name: "authcore_backup_code_failed_total", Help: "Failed backup-code authentications."},
	{ID: authcore.MetricBackupCodeRegenerated, Name: "authcore_backup_code_regenerated_total", Help: "Backup-code regeneration operations."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logout operations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricTokenBlacklisted, Name: "authcore_token_blacklisted_total", Help: "Access tokens added to the blacklist."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Validate latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// eight-bucket shape exporters render.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus and OTel expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
