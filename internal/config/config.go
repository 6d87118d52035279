// Package config loads the authd service configuration from a YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/zuzu-app/authcore"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Redis      `yaml:"redis"`
	Database   `yaml:"database"`
	Mail       `yaml:"mail"`
	JWT        `yaml:"jwt"`
	Auth       `yaml:"auth"`
	Audit      `yaml:"audit"`
	Metrics    `yaml:"metrics"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
	TrustProxy      bool          `yaml:"trust_proxy" env:"HTTP_TRUST_PROXY" env-default:"false"`
}

type Redis struct {
	// Driver is "redis" or "miniredis". miniredis runs an in-process server
	// for local development.
	Driver   string `yaml:"driver" env:"REDIS_DRIVER" env-default:"redis"`
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Database struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"memory"`
	DSN    string `yaml:"dsn" env:"DB_DSN"`
}

type Mail struct {
	// Driver is "log" or "smtp".
	Driver   string `yaml:"driver" env:"MAIL_DRIVER" env-default:"log"`
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"no-reply@localhost"`
}

type JWT struct {
	AccessSecret  string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET" env-required:"true"`
	RefreshSecret string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET" env-required:"true"`
	Issuer        string        `yaml:"issuer" env-default:"authcore"`
	Audience      string        `yaml:"audience" env-default:"authcore-clients"`
	AccessTTL     time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env-default:"24h"`
}

type Auth struct {
	BcryptCost       int           `yaml:"bcrypt_cost" env-default:"12"`
	LockoutThreshold int           `yaml:"lockout_threshold" env-default:"5"`
	LockoutDuration  time.Duration `yaml:"lockout_duration" env-default:"15m"`
	CodeTTL          time.Duration `yaml:"code_ttl" env-default:"5m"`
	ResetTokenTTL    time.Duration `yaml:"reset_token_ttl" env-default:"1h"`
	ResetLinkBaseURL string        `yaml:"reset_link_base_url" env:"RESET_LINK_BASE_URL" env-default:"http://localhost:3000/reset-password"`
}

type Audit struct {
	Enabled    bool `yaml:"enabled" env-default:"true"`
	BufferSize int  `yaml:"buffer_size" env-default:"1024"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled" env-default:"true"`
	// Latency enables the authenticate latency histogram.
	Latency bool `yaml:"latency" env-default:"false"`
	// OTel additionally publishes through an OpenTelemetry MeterProvider
	// that exports every OTelInterval.
	OTel         bool          `yaml:"otel" env:"METRICS_OTEL" env-default:"false"`
	OTelInterval time.Duration `yaml:"otel_interval" env-default:"60s"`
}

// MustLoad is [Load] that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load reads path when it is not empty, then applies the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	switch c.Redis.Driver {
	case "redis", "miniredis":
	default:
		return fmt.Errorf("unknown redis driver %q", c.Redis.Driver)
	}
	switch c.Database.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for sql drivers")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			return errors.New("smtp host is required for the smtp mail driver")
		}
	default:
		return fmt.Errorf("unknown mail driver %q", c.Mail.Driver)
	}
	if c.Metrics.OTel && c.Metrics.OTelInterval <= 0 {
		return errors.New("metrics otel_interval must be > 0")
	}
	if c.Env == EnvProd && c.Redis.Driver == "miniredis" {
		return errors.New("miniredis is not allowed in prod")
	}
	return nil
}

// EngineConfig maps the service settings onto an authcore.Config.
func (c *Config) EngineConfig() authcore.Config {
	out := authcore.DefaultConfig()

	out.JWT.AccessSecret = []byte(c.JWT.AccessSecret)
	out.JWT.RefreshSecret = []byte(c.JWT.RefreshSecret)
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.JWT.RefreshTTL = c.JWT.RefreshTTL

	out.Password.Cost = c.Auth.BcryptCost
	out.Lockout.Threshold = c.Auth.LockoutThreshold
	out.Lockout.Duration = c.Auth.LockoutDuration
	out.Verification.CodeTTL = c.Auth.CodeTTL
	out.PasswordReset.TokenTTL = c.Auth.ResetTokenTTL
	out.PasswordReset.LinkBaseURL = c.Auth.ResetLinkBaseURL

	out.Audit.Enabled = c.Audit.Enabled
	out.Audit.BufferSize = c.Audit.BufferSize
	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Latency

	return out
}
