package flows

import (
	"context"
	"strings"
)

type VerifyResult struct {
	Account      AccountRecord
	AccessToken  string
	RefreshToken string
	State        State
}

type VerifyMetrics struct {
	CodeSuccess  int
	CodeFailure  int
	CodeIssued   int
	RateLimitHit int
}

type VerifyEvents struct {
	CodeVerify  string
	CodeResend  string
	RateLimited string
}

type VerifyErrors struct {
	EngineNotReady error
	Validation     error
	CodeInvalid    error
}

type VerifyDeps struct {
	ClientIPFromContext func(context.Context) string
	CheckLimiter        Limiter
	MapLimiterError     func(error) error
	WithReasons         func(error, []string) error

	IsVerificationCode func(string) bool
	IsCodeRejected     func(error) bool

	GetAccountByID func(context.Context, string) (AccountRecord, error)
	IsNotFound     func(error) bool
	IssueAccess    func(AccountRecord) (string, error)
	IssueRefresh   func(AccountRecord) (string, error)
	ResetLockout   func(context.Context, string) error
	RecordSignIn   func(context.Context, string) error

	Code  CodeDeps
	Hooks Hooks

	Metrics VerifyMetrics
	Events  VerifyEvents
	Errors  VerifyErrors
}

// RunVerifyCode completes a login or signup. A wrong code leaves the stored
// code in place so the caller may retry until it expires.
func RunVerifyCode(ctx context.Context, accountID, code string, deps VerifyDeps) (*VerifyResult, error) {
	normalizeVerifyDeps(&deps)
	h := deps.Hooks

	if deps.GetAccountByID == nil ||
		deps.IssueAccess == nil ||
		deps.IssueRefresh == nil ||
		deps.Code.ConsumeCode == nil ||
		deps.Code.HashCode == nil {
		return nil, deps.Errors.EngineNotReady
	}

	accountID = strings.TrimSpace(accountID)
	code = strings.TrimSpace(code)

	var reasons []string
	if accountID == "" {
		reasons = append(reasons, ReasonUserIDRequired)
	}
	if !deps.IsVerificationCode(code) {
		reasons = append(reasons, ReasonCodeFormat)
	}
	if len(reasons) > 0 {
		h.MetricInc(deps.Metrics.CodeFailure)
		return nil, deps.WithReasons(deps.Errors.Validation, reasons)
	}

	state := StateCodePending

	err := deps.Code.ConsumeCode(ctx, accountID, deps.Code.HashCode(code), deps.Code.Now(), deps.Code.TTL, deps.Code.MaxAttempts)
	if err != nil {
		if !deps.IsCodeRejected(err) {
			return nil, err
		}
		h.Debug(ctx, "verification code rejected", "account_id", accountID, "reason", err)
		h.MetricInc(deps.Metrics.CodeFailure)
		h.EmitAudit(ctx, deps.Events.CodeVerify, false, accountID, deps.Errors.CodeInvalid, func() map[string]string {
			return map[string]string{"reason": err.Error()}
		})
		return nil, deps.Errors.CodeInvalid
	}

	account, err := deps.GetAccountByID(ctx, accountID)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, err
		}
		h.MetricInc(deps.Metrics.CodeFailure)
		return nil, deps.Errors.CodeInvalid
	}
	if account.Disabled {
		h.MetricInc(deps.Metrics.CodeFailure)
		h.EmitAudit(ctx, deps.Events.CodeVerify, false, account.ID, deps.Errors.CodeInvalid, func() map[string]string {
			return map[string]string{"reason": "account_disabled"}
		})
		return nil, deps.Errors.CodeInvalid
	}

	access, err := deps.IssueAccess(account)
	if err != nil {
		return nil, err
	}
	refresh, err := deps.IssueRefresh(account)
	if err != nil {
		return nil, err
	}

	// The code is already spent; bookkeeping failures must not fail the login.
	if deps.ResetLockout != nil {
		if err := deps.ResetLockout(ctx, account.ID); err != nil {
			h.Warn(ctx, "lockout reset after verification failed", "account_id", account.ID, "error", err)
		}
	}
	if deps.RecordSignIn != nil {
		if err := deps.RecordSignIn(ctx, account.ID); err != nil {
			h.Warn(ctx, "record sign-in failed", "account_id", account.ID, "error", err)
		}
	}

	if state, err = state.Next(StateAuthenticated); err != nil {
		return nil, err
	}
	h.MetricInc(deps.Metrics.CodeSuccess)
	h.EmitAudit(ctx, deps.Events.CodeVerify, true, account.ID, nil, nil)

	return &VerifyResult{
		Account:      account,
		AccessToken:  access,
		RefreshToken: refresh,
		State:        state,
	}, nil
}

// RunResendCode replaces the outstanding code of an existing, enabled
// account. Unknown and disabled accounts get the same error as a bad code.
func RunResendCode(ctx context.Context, accountID string, deps VerifyDeps) error {
	normalizeVerifyDeps(&deps)
	h := deps.Hooks

	if deps.GetAccountByID == nil || !deps.Code.ready() {
		return deps.Errors.EngineNotReady
	}

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return deps.WithReasons(deps.Errors.Validation, []string{ReasonUserIDRequired})
	}

	if deps.CheckLimiter != nil {
		if err := deps.CheckLimiter(ctx, accountID, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			h.MetricInc(deps.Metrics.RateLimitHit)
			h.EmitAudit(ctx, deps.Events.RateLimited, false, accountID, mapped, func() map[string]string {
				return map[string]string{"operation": "resend_code"}
			})
			return mapped
		}
	}

	account, err := deps.GetAccountByID(ctx, accountID)
	if err != nil {
		if !deps.IsNotFound(err) {
			return err
		}
		h.EmitAudit(ctx, deps.Events.CodeResend, false, "", deps.Errors.CodeInvalid, func() map[string]string {
			return map[string]string{"reason": "unknown_account"}
		})
		return deps.Errors.CodeInvalid
	}
	if account.Disabled {
		h.EmitAudit(ctx, deps.Events.CodeResend, false, account.ID, deps.Errors.CodeInvalid, func() map[string]string {
			return map[string]string{"reason": "account_disabled"}
		})
		return deps.Errors.CodeInvalid
	}

	if _, err := StateCodePending.Next(StateCodePending); err != nil {
		return err
	}
	if err := issueCode(ctx, account, deps.Code); err != nil {
		h.EmitAudit(ctx, deps.Events.CodeResend, false, account.ID, err, func() map[string]string {
			return map[string]string{"reason": "code_delivery_failed"}
		})
		return err
	}
	h.MetricInc(deps.Metrics.CodeIssued)
	h.EmitAudit(ctx, deps.Events.CodeResend, true, account.ID, nil, nil)
	return nil
}

func normalizeVerifyDeps(deps *VerifyDeps) {
	deps.Hooks.normalize()
	deps.Code.normalize()
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.WithReasons == nil {
		deps.WithReasons = func(err error, _ []string) error { return err }
	}
	if deps.IsVerificationCode == nil {
		deps.IsVerificationCode = func(code string) bool { return len(code) == 6 }
	}
	if deps.IsCodeRejected == nil {
		deps.IsCodeRejected = func(error) bool { return false }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
}
