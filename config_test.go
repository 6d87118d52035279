package authcore

import (
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdef-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdef-012345678")
	cfg.Password.Cost = 4
	cfg.Audit.Enabled = false
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "short access secret",
			mutate:  func(c *Config) { c.JWT.AccessSecret = []byte("short") },
			wantErr: "AccessSecret",
		},
		{
			name:    "same secrets",
			mutate:  func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret },
			wantErr: "must differ",
		},
		{
			name:    "blank audience",
			mutate:  func(c *Config) { c.JWT.Audience = "  " },
			wantErr: "Audience",
		},
		{
			name:    "refresh shorter than access",
			mutate:  func(c *Config) { c.JWT.RefreshTTL = time.Minute },
			wantErr: "RefreshTTL",
		},
		{
			name:    "bcrypt cost out of range",
			mutate:  func(c *Config) { c.Password.Cost = 40 },
			wantErr: "Cost",
		},
		{
			name:    "lockout threshold zero",
			mutate:  func(c *Config) { c.Lockout.Threshold = 0 },
			wantErr: "Threshold",
		},
		{
			name:    "negative max attempts",
			mutate:  func(c *Config) { c.Verification.MaxAttempts = -1 },
			wantErr: "MaxAttempts",
		},
		{
			name:    "missing reset link",
			mutate:  func(c *Config) { c.PasswordReset.LinkBaseURL = "" },
			wantErr: "LinkBaseURL",
		},
		{
			name:    "negative throttle",
			mutate:  func(c *Config) { c.Throttle.LoginPerIP = -1 },
			wantErr: "Throttle",
		},
		{
			name: "audit buffer required",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantErr: "BufferSize",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigMatchesPolicy(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Password.Cost != 12 {
		t.Fatalf("expected bcrypt cost 12, got %d", cfg.Password.Cost)
	}
	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Duration != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults %+v", cfg.Lockout)
	}
	if cfg.Verification.CodeTTL != 5*time.Minute || cfg.Verification.MaxAttempts != 0 {
		t.Fatalf("unexpected verification defaults %+v", cfg.Verification)
	}
	if cfg.PasswordReset.TokenTTL != time.Hour {
		t.Fatalf("unexpected reset ttl %v", cfg.PasswordReset.TokenTTL)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttls %+v", cfg.JWT)
	}
}

func TestConfigLint(t *testing.T) {
	cfg := testConfig()
	codes := cfg.Lint().Codes()
	for _, want := range []string{"bcrypt_cost_low", "reset_link_insecure", "audit_disabled", "code_attempts_unlimited"} {
		if !containsCode(codes, want) {
			t.Fatalf("expected lint code %q in %v", want, codes)
		}
	}

	prod := DefaultConfig()
	prod.PasswordReset.LinkBaseURL = "https://app.example.com/reset"
	prod.Verification.MaxAttempts = 5
	if codes := prod.Lint().Codes(); len(codes) != 0 {
		t.Fatalf("expected no findings for hardened defaults, got %v", codes)
	}

	prod.Throttle.Window = 0
	if !containsCode(prod.Lint().Codes(), "throttles_disabled") {
		t.Fatalf("expected throttles_disabled")
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
