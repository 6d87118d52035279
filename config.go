package authcore

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config is the immutable configuration of an [Engine].
//
// Start from [DefaultConfig], fill in the JWT secrets, and pass the result to
// [Builder.WithConfig]. The engine keeps its own copy; mutating cfg after
// Build has no effect.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	Throttle      ThrottleConfig
	Redis         RedisConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the token signing secrets and claim rules.
//
// AccessSecret and RefreshSecret must each be at least 32 bytes and must
// differ. Issuer and Audience are embedded in every token and checked on
// verification.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls bcrypt hashing.
type PasswordConfig struct {
	Cost int
	// UpgradeOnLogin re-hashes a stored password whose cost differs from Cost
	// after a successful password check.
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT / CODES / RESET
====================================
*/

// LockoutConfig controls the per-account failure counter.
type LockoutConfig struct {
	Threshold   int
	Duration    time.Duration
	RedisPrefix string
}

// VerificationConfig controls the emailed one-time code.
type VerificationConfig struct {
	CodeTTL time.Duration
	// MaxAttempts discards a code after that many wrong submissions.
	// Zero keeps the code until it expires or is used.
	MaxAttempts int
	RedisPrefix string
	// Subject is the subject line of the code email.
	Subject string
}

// PasswordResetConfig controls reset tokens and the emailed link.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// LinkBaseURL receives the raw token as the "token" query parameter.
	LinkBaseURL string
	RedisPrefix string
	Subject     string
}

// ThrottleConfig bounds signup, resend and reset requests per identifier and
// per client IP. Zero limits disable a dimension.
type ThrottleConfig struct {
	Window            time.Duration
	SignupPerEmail    int
	SignupPerIP       int
	LoginPerEmail     int
	LoginPerIP        int
	ResendPerAccount  int
	ResendPerIP       int
	ResetPerEmail     int
	ResetPerIP        int
	ResetConfirmPerIP int
}

// RedisConfig holds the key prefix of the shared fixed-window counter.
type RedisConfig struct {
	RateLimitPrefix string
}

/*
====================================
AUDIT / METRICS
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: bcrypt cost 12, lockout
// after 5 failures for 15 minutes, 5 minute codes, 1 hour reset tokens,
// 15 minute access and 24 hour refresh tokens. JWT secrets are left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "authcore",
			Audience:   "authcore-clients",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		Password: PasswordConfig{
			Cost: 12,
		},
		Lockout: LockoutConfig{
			Threshold:   5,
			Duration:    15 * time.Minute,
			RedisPrefix: "lock",
		},
		Verification: VerificationConfig{
			CodeTTL:     5 * time.Minute,
			RedisPrefix: "otp",
			Subject:     "Your verification code",
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:    time.Hour,
			LinkBaseURL: "http://localhost:3000/reset-password",
			RedisPrefix: "rst",
			Subject:     "Reset your password",
		},
		Throttle: ThrottleConfig{
			Window:            15 * time.Minute,
			SignupPerEmail:    5,
			SignupPerIP:       20,
			LoginPerEmail:     20,
			LoginPerIP:        100,
			ResendPerAccount:  5,
			ResendPerIP:       20,
			ResetPerEmail:     5,
			ResetPerIP:        20,
			ResetConfirmPerIP: 20,
		},
		Redis: RedisConfig{
			RateLimitPrefix: "rl",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
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

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must not be empty")
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be empty")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Cost < bcrypt.MinCost || c.Password.Cost > bcrypt.MaxCost {
		return errors.New("Password Cost must be within bcrypt.MinCost..bcrypt.MaxCost")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Verification
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}
	if c.Verification.MaxAttempts < 0 {
		return errors.New("Verification MaxAttempts must be >= 0")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if strings.TrimSpace(c.PasswordReset.LinkBaseURL) == "" {
		return errors.New("PasswordReset LinkBaseURL must not be empty")
	}

	// Throttle
	if c.Throttle.Window < 0 {
		return errors.New("Throttle Window must be >= 0")
	}
	for _, v := range []int{
		c.Throttle.SignupPerEmail, c.Throttle.SignupPerIP,
		c.Throttle.LoginPerEmail, c.Throttle.LoginPerIP,
		c.Throttle.ResendPerAccount, c.Throttle.ResendPerIP,
		c.Throttle.ResetPerEmail, c.Throttle.ResetPerIP,
		c.Throttle.ResetConfirmPerIP,
	} {
		if v < 0 {
			return errors.New("Throttle limits must be >= 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
