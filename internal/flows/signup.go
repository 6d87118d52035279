package flows

import (
	"context"
)

type SignupRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type SignupResult struct {
	AccountID string
	Email     string
	State     State
}

type SignupMetrics struct {
	SignupSuccess   int
	SignupFailure   int
	SignupDuplicate int
	RateLimitHit    int
	CodeIssued      int
}

type SignupEvents struct {
	Signup      string
	RateLimited string
}

type SignupErrors struct {
	EngineNotReady error
	Validation     error
	PasswordPolicy error
	EmailTaken     error
}

type SignupDeps struct {
	DefaultRole string

	ClientIPFromContext func(context.Context) string
	CheckLimiter        Limiter
	MapLimiterError     func(error) error

	ValidateStrength func(string) []string
	WithReasons      func(error, []string) error
	HashPassword     func(string) (string, error)
	CreateAccount    func(context.Context, AccountCreateInput) (AccountRecord, error)
	IsEmailTaken     func(error) bool

	Code  CodeDeps
	Hooks Hooks

	Metrics SignupMetrics
	Events  SignupEvents
	Errors  SignupErrors
}

// RunSignup creates an account and mails its first verification code. The
// caller lands in CODE_PENDING and completes through RunVerifyCode.
func RunSignup(ctx context.Context, req SignupRequest, deps SignupDeps) (*SignupResult, error) {
	normalizeSignupDeps(&deps)
	h := deps.Hooks

	if deps.ValidateStrength == nil || deps.HashPassword == nil || deps.CreateAccount == nil || !deps.Code.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	req, reasons := normalizeSignup(req)
	if deps.CheckLimiter != nil {
		if err := deps.CheckLimiter(ctx, req.Email, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			h.MetricInc(deps.Metrics.RateLimitHit)
			h.EmitAudit(ctx, deps.Events.RateLimited, false, "", mapped, func() map[string]string {
				return map[string]string{"operation": "signup"}
			})
			return nil, mapped
		}
	}

	if len(reasons) > 0 {
		h.MetricInc(deps.Metrics.SignupFailure)
		h.EmitAudit(ctx, deps.Events.Signup, false, "", deps.Errors.Validation, func() map[string]string {
			return map[string]string{"reason": "invalid_input"}
		})
		return nil, deps.WithReasons(deps.Errors.Validation, reasons)
	}
	if weak := deps.ValidateStrength(req.Password); len(weak) > 0 {
		h.MetricInc(deps.Metrics.SignupFailure)
		h.EmitAudit(ctx, deps.Events.Signup, false, "", deps.Errors.PasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "password_policy"}
		})
		return nil, deps.WithReasons(deps.Errors.PasswordPolicy, weak)
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		h.MetricInc(deps.Metrics.SignupFailure)
		return nil, err
	}
	req.Password = ""

	account, err := deps.CreateAccount(ctx, AccountCreateInput{
		Email:        req.Email,
		PasswordHash: hash,
		Role:         deps.DefaultRole,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if err != nil {
		if deps.IsEmailTaken(err) {
			h.MetricInc(deps.Metrics.SignupDuplicate)
			h.EmitAudit(ctx, deps.Events.Signup, false, "", deps.Errors.EmailTaken, func() map[string]string {
				return map[string]string{"reason": "email_taken"}
			})
			return nil, deps.Errors.EmailTaken
		}
		h.MetricInc(deps.Metrics.SignupFailure)
		h.EmitAudit(ctx, deps.Events.Signup, false, "", err, func() map[string]string {
			return map[string]string{"reason": "create_failed"}
		})
		return nil, err
	}

	state, err := StateAnonymous.Next(StateCodePending)
	if err != nil {
		return nil, err
	}
	if err := issueCode(ctx, account, deps.Code); err != nil {
		h.MetricInc(deps.Metrics.SignupFailure)
		h.EmitAudit(ctx, deps.Events.Signup, false, account.ID, err, func() map[string]string {
			return map[string]string{"reason": "code_delivery_failed"}
		})
		return nil, err
	}
	h.MetricInc(deps.Metrics.CodeIssued)
	h.MetricInc(deps.Metrics.SignupSuccess)
	h.EmitAudit(ctx, deps.Events.Signup, true, account.ID, nil, nil)

	return &SignupResult{
		AccountID: account.ID,
		Email:     account.Email,
		State:     state,
	}, nil
}

func normalizeSignupDeps(deps *SignupDeps) {
	deps.Hooks.normalize()
	deps.Code.normalize()
	if deps.DefaultRole == "" {
		deps.DefaultRole = "user"
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.WithReasons == nil {
		deps.WithReasons = func(err error, _ []string) error { return err }
	}
	if deps.IsEmailTaken == nil {
		deps.IsEmailTaken = func(error) bool { return false }
	}
}
