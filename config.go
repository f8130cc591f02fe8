package authcore

import (
	"encoding/base64"
	"errors"
	"time"
)

// Config is the full engine configuration. Instances are treated as
// immutable after Build.
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	TOTP         TOTPConfig
	PendingLogin PendingLoginConfig
	Password     PasswordConfig
	Security     SecurityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// JWTConfig controls access-token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// SessionConfig controls the Redis-backed session and refresh-token store.
type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
}

// TOTPConfig controls code generation/verification and backup codes.
type TOTPConfig struct {
	Issuer                  string
	Digits                  int
	Period                  int
	Skew                    int
	Algorithm               string // "SHA1" (default), "SHA256" or "SHA512"
	EnforceReplayProtection bool
	MaxAttempts             int
	Cooldown                time.Duration
	BackupCodeCount         int
	BackupCodeLength        int
	BackupCodeMaxAttempts   int
	BackupCodeCooldown      time.Duration
}

// PendingLoginConfig controls the encrypted in-memory pending-login store.
// EncryptionKey must be exactly 32 bytes (AES-256); it is supplied by the
// operator, never generated here.
type PendingLoginConfig struct {
	TTL           time.Duration
	MaxAttempts   int
	EncryptionKey []byte
	SweepInterval time.Duration
}

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// SecurityConfig holds the login and refresh throttles.
type SecurityConfig struct {
	RequireVerified       bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldown         time.Duration
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshCooldown       time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Callers must still
// supply JWT key material and the pending-login encryption key.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
			RefreshTTL:  7 * 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:                  "KinetaFit",
			Digits:                  6,
			Period:                  30,
			Skew:                    1,
			Algorithm:               "SHA1",
			EnforceReplayProtection: true,
			MaxAttempts:             5,
			Cooldown:                10 * time.Minute,
			BackupCodeCount:         10,
			BackupCodeLength:        10,
			BackupCodeMaxAttempts:   5,
			BackupCodeCooldown:      10 * time.Minute,
		},
		PendingLogin: PendingLoginConfig{
			TTL:           5 * time.Minute,
			MaxAttempts:   5,
			SweepInterval: time.Minute,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			RequireVerified:       true,
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldown:         15 * time.Minute,
			EnableRefreshThrottle: true,
			MaxRefreshAttempts:    20,
			RefreshCooldown:       time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// ParseEphemeralKey decodes an externally supplied pending-login key. It
// accepts a raw 32-character string or a base64 encoding of 32 bytes,
// matching the deployment formats operators actually provide.
func ParseEphemeralKey(s string) ([]byte, error) {
	if len(s) == 32 {
		return []byte(s), nil
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) == 32 {
		return raw, nil
	}
	if raw, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(raw) == 32 {
		return raw, nil
	}
	return nil, errors.New("ephemeral key must be 32 bytes (raw or base64)")
}

// Validate checks the configuration for values Build cannot work with.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires JWT.PrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires JWT.PrivateKey and JWT.PublicKey")
		}
	default:
		return errors.New("unsupported JWT.SigningMethod")
	}
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session.RefreshTTL must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP.Digits must be 6..8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP.Period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP.Skew must be 0..2")
	}
	if c.TOTP.BackupCodeCount <= 0 || c.TOTP.BackupCodeLength < 8 {
		return errors.New("backup code count/length out of range")
	}
	if len(c.PendingLogin.EncryptionKey) != 32 {
		return errors.New("PendingLogin.EncryptionKey must be 32 bytes")
	}
	if c.PendingLogin.TTL <= 0 {
		return errors.New("PendingLogin.TTL must be positive")
	}
	if c.PendingLogin.MaxAttempts <= 0 {
		return errors.New("PendingLogin.MaxAttempts must be positive")
	}
	if c.Security.MaxLoginAttempts <= 0 || c.Security.LoginCooldown <= 0 {
		return errors.New("login throttle parameters out of range")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.PendingLogin.EncryptionKey = cloneBytes(cfg.PendingLogin.EncryptionKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
