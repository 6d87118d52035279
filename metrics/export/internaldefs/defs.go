package internaldefs

import (
	"github.com/zuzu-app/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricSignupSuccess, Name: "authcore_signup_success_total", Help: "Accounts created."},
	{ID: authcore.MetricSignupFailure, Name: "authcore_signup_failure_total", Help: "Signups rejected by validation, policy or delivery."},
	{ID: authcore.MetricSignupDuplicate, Name: "authcore_signup_duplicate_total", Help: "Signups rejected because the email is taken."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Password steps that passed and issued a code."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed password steps."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Login attempts refused because the account is locked."},
	{ID: authcore.MetricLockoutTriggered, Name: "authcore_lockout_triggered_total", Help: "Accounts locked after repeated failures."},
	{ID: authcore.MetricCodeIssued, Name: "authcore_code_issued_total", Help: "Verification codes issued."},
	{ID: authcore.MetricCodeSuccess, Name: "authcore_code_success_total", Help: "Verification codes accepted."},
	{ID: authcore.MetricCodeFailure, Name: "authcore_code_failure_total", Help: "Verification codes rejected."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Access tokens minted from refresh tokens."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetConfirmSuccess, Name: "authcore_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: authcore.MetricPasswordResetConfirmFailure, Name: "authcore_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Requests denied by a throttle."},
	{ID: authcore.MetricMailFailure, Name: "authcore_mail_failure_total", Help: "Transactional mails that could not be sent."},
	{ID: authcore.MetricAuthenticateFailure, Name: "authcore_authenticate_failure_total", Help: "Access tokens rejected."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Access token verification latency."},
}

// HistogramBounds are the Prometheus "le" labels matching
// authcore.HistogramBucketBounds.
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

// HistogramBoundSuffix is the attribute-safe form of HistogramBounds.
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

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
