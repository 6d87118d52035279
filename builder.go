package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	internalaudit "github.com/zuzu-app/authcore/internal/audit"
	"github.com/zuzu-app/authcore/internal/limiters"
	"github.com/zuzu-app/authcore/internal/rate"
	"github.com/zuzu-app/authcore/internal/stores"
	"github.com/zuzu-app/authcore/jwt"
	"github.com/zuzu-app/authcore/password"
)

// Builder assembles an [Engine]. A Builder is single-use; the second Build
// call fails.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	mailer    Mailer
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client holding lockout counters, codes, reset tokens and
// rate-limit windows. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the account record store. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer sets the transactional mail sender. Required.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the audit destination. Without one, audit events go to
// the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source used for expiry, lockout and token
// claims. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher, err := password.NewBcrypt(password.Config{Cost: cfg.Password.Cost})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	mails, err := newMailTemplates()
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = NewSlogSink(logger)
	}

	limiter := rate.New(b.redis, cfg.Redis.RateLimitPrefix)
	throttle := func(name string, perID, perIP int) *limiters.Throttle {
		return limiters.NewThrottle(limiter, name, limiters.ThrottleConfig{
			MaxPerIdentifier: perID,
			MaxPerIP:         perIP,
			Window:           cfg.Throttle.Window,
		})
	}

	engine := &Engine{
		config:   cfg,
		logger:   logger,
		now:      now,
		redis:    b.redis,
		accounts: b.accounts,
		mailer:   b.mailer,
		mails:    mails,
		hasher:   hasher,
		tokens:   tokens,
		limiter:  limiter,
		lockout: limiters.NewLockoutTracker(b.redis, limiters.LockoutConfig{
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Duration,
			Prefix:    cfg.Lockout.RedisPrefix,
		}, now),
		codes:  stores.NewVerificationCodeStore(b.redis, cfg.Verification.RedisPrefix),
		resets: stores.NewResetTokenStore(b.redis, cfg.PasswordReset.RedisPrefix),

		signupThrottle:       throttle("signup", cfg.Throttle.SignupPerEmail, cfg.Throttle.SignupPerIP),
		loginThrottle:        throttle("login", cfg.Throttle.LoginPerEmail, cfg.Throttle.LoginPerIP),
		resendThrottle:       throttle("resend", cfg.Throttle.ResendPerAccount, cfg.Throttle.ResendPerIP),
		resetThrottle:        throttle("reset_request", cfg.Throttle.ResetPerEmail, cfg.Throttle.ResetPerIP),
		resetConfirmThrottle: throttle("reset_confirm", 0, cfg.Throttle.ResetConfirmPerIP),

		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
