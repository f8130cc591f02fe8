package authcore

import (
	"context"
	"errors"

	"github.com/kinetafit/authcore/internal/ephemeral"
	"github.com/kinetafit/authcore/internal/limiters"
	"github.com/kinetafit/authcore/internal/rate"
	"github.com/kinetafit/authcore/jwt"
	"github.com/kinetafit/authcore/password"
	"github.com/kinetafit/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Builder wires an [Engine]. Use [New], chain the With methods, then
// call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New returns a builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing sessions, throttles, and
// the blacklist. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider supplies the user store adapter. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink enables audit dispatch to the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every subsystem, and
// starts the pending-login sweeper. The builder cannot be reused.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pending, err := ephemeral.New(cfg.PendingLogin.EncryptionKey)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		pending:      pending,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		blacklist:    session.NewBlacklist(b.redis, cfg.Session.RedisPrefix),
		userLocks:    newStripedLocks(),
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:        cfg.Security.EnableIPThrottle,
		EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
		MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration:   cfg.Security.LoginCooldown,
		MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
		RefreshCooldownDuration: cfg.Security.RefreshCooldown,
	})
	engine.totpLimiter = limiters.NewTOTPLimiter(b.redis, limiters.TOTPLimiterConfig{
		MaxAttempts: cfg.TOTP.MaxAttempts,
		Cooldown:    cfg.TOTP.Cooldown,
	})
	engine.backupLimiter = limiters.NewBackupCodeLimiter(b.redis, limiters.BackupCodeConfig{
		MaxAttempts: cfg.TOTP.BackupCodeMaxAttempts,
		Cooldown:    cfg.TOTP.BackupCodeCooldown,
	})
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	sweepCtx, cancel := context.WithCancel(context.Background())
	engine.stopSweeper = cancel
	pending.StartSweeper(sweepCtx, cfg.PendingLogin.SweepInterval)

	b.built = true

	return engine, nil
}
