package authcore

import (
	"strings"
	"time"
)

// LintSeverity ranks a [LintWarning].
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

// LintWarning is one advisory finding about a valid but questionable Config.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the finding codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint returns advisory findings for settings that pass [Config.Validate] but
// weaken the deployment. It never fails.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Password.Cost < 12 {
		add("bcrypt_cost_low", LintHigh, "bcrypt cost below 12")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens live longer than 15 minutes")
	}
	if c.JWT.RefreshTTL > 7*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh tokens live longer than 7 days")
	}
	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT leeway above 1 minute")
	}
	if c.Lockout.Threshold > 10 {
		add("lockout_threshold_high", LintWarn, "lockout allows more than 10 failures")
	}
	if c.Verification.MaxAttempts == 0 {
		add("code_attempts_unlimited", LintInfo, "wrong verification codes are not capped; rely on request throttles")
	}
	if c.Verification.CodeTTL > 15*time.Minute {
		add("code_ttl_long", LintWarn, "verification codes live longer than 15 minutes")
	}
	if c.PasswordReset.TokenTTL > 24*time.Hour {
		add("reset_ttl_long", LintWarn, "reset tokens live longer than 24 hours")
	}
	if !strings.HasPrefix(strings.ToLower(c.PasswordReset.LinkBaseURL), "https://") {
		add("reset_link_insecure", LintWarn, "password reset link is not https")
	}
	if c.throttlesDisabled() {
		add("throttles_disabled", LintHigh, "all request throttles are disabled")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are disabled")
	}
	return ws
}

func (c *Config) throttlesDisabled() bool {
	t := c.Throttle
	if t.Window <= 0 {
		return true
	}
	return t.SignupPerEmail == 0 && t.SignupPerIP == 0 &&
		t.LoginPerEmail == 0 && t.LoginPerIP == 0 &&
		t.ResendPerAccount == 0 && t.ResendPerIP == 0 &&
		t.ResetPerEmail == 0 && t.ResetPerIP == 0 &&
		t.ResetConfirmPerIP == 0
}
