package flows

import (
	"context"
	"time"
)

type LoginResult struct {
	AccountID            string
	RequiresVerification bool
	State                State
}

type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginLocked      int
	LockoutTriggered int
	RateLimitHit     int
	CodeIssued       int
}

type LoginEvents struct {
	Login       string
	Lockout     string
	RateLimited string
}

type LoginErrors struct {
	EngineNotReady     error
	Validation         error
	InvalidCredentials error
	AccountDisabled    error
	AccountLocked      error
}

// LockoutStatus is the tracker state after a recorded failure.
type LockoutStatus struct {
	Failures    int
	LockedUntil time.Time
	Locked      bool
}

type LoginDeps struct {
	UpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string
	CheckLimiter        Limiter
	MapLimiterError     func(error) error
	WithReasons         func(error, []string) error

	GetAccountByEmail  func(context.Context, string) (AccountRecord, error)
	IsNotFound         func(error) bool
	VerifyPassword     func(password, hash string) (bool, error)
	DummyVerify        func(password string)
	NeedsRehash        func(hash string) bool
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, accountID, hash string) error

	IsLocked      func(context.Context, string) (bool, error)
	RecordFailure func(context.Context, string) (LockoutStatus, error)
	ResetLockout  func(context.Context, string) error

	Code  CodeDeps
	Hooks Hooks

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin performs the password step. On success a fresh verification code
// is mailed and the attempt moves to CODE_PENDING; no tokens are issued here.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)
	h := deps.Hooks

	if deps.GetAccountByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.IsLocked == nil ||
		deps.RecordFailure == nil ||
		deps.ResetLockout == nil ||
		!deps.Code.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if deps.CheckLimiter != nil {
		if err := deps.CheckLimiter(ctx, email, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			h.MetricInc(deps.Metrics.RateLimitHit)
			h.EmitAudit(ctx, deps.Events.RateLimited, false, "", mapped, func() map[string]string {
				return map[string]string{"operation": "login"}
			})
			return nil, mapped
		}
	}

	var missing []string
	if email == "" {
		missing = append(missing, ReasonEmailRequired)
	}
	if password == "" {
		missing = append(missing, ReasonPasswordRequired)
	}
	if len(missing) > 0 {
		h.MetricInc(deps.Metrics.LoginFailure)
		return nil, deps.WithReasons(deps.Errors.Validation, missing)
	}

	state, err := StateAnonymous.Next(StatePasswordPending)
	if err != nil {
		return nil, err
	}

	account, err := deps.GetAccountByEmail(ctx, email)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, err
		}
		// Keep the timing of unknown emails close to a real compare.
		deps.DummyVerify(password)
		h.MetricInc(deps.Metrics.LoginFailure)
		h.EmitAudit(ctx, deps.Events.Login, false, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "unknown_email"}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	if account.Disabled {
		h.MetricInc(deps.Metrics.LoginFailure)
		h.EmitAudit(ctx, deps.Events.Login, false, account.ID, deps.Errors.AccountDisabled, func() map[string]string {
			return map[string]string{"reason": "account_disabled"}
		})
		return nil, deps.Errors.AccountDisabled
	}

	locked, err := deps.IsLocked(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		h.MetricInc(deps.Metrics.LoginLocked)
		h.MetricInc(deps.Metrics.LoginFailure)
		h.EmitAudit(ctx, deps.Events.Login, false, account.ID, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{"reason": "account_locked"}
		})
		return nil, deps.Errors.AccountLocked
	}

	ok, err := deps.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		h.Warn(ctx, "password verification failed", "account_id", account.ID, "error", err)
	}
	if err != nil || !ok {
		status, recErr := deps.RecordFailure(ctx, account.ID)
		if recErr != nil {
			return nil, recErr
		}
		if status.Locked {
			h.MetricInc(deps.Metrics.LockoutTriggered)
			h.EmitAudit(ctx, deps.Events.Lockout, true, account.ID, nil, func() map[string]string {
				return map[string]string{
					"failures":     itoa(status.Failures),
					"locked_until": status.LockedUntil.UTC().Format(time.RFC3339),
				}
			})
		}
		h.MetricInc(deps.Metrics.LoginFailure)
		h.EmitAudit(ctx, deps.Events.Login, false, account.ID, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason":   "password_mismatch",
				"failures": itoa(status.Failures),
			}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	if err := deps.ResetLockout(ctx, account.ID); err != nil {
		return nil, err
	}

	if deps.UpgradeOnLogin && deps.NeedsRehash != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if deps.NeedsRehash(account.PasswordHash) {
			if upgraded, err := deps.HashPassword(password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, account.ID, upgraded); err != nil {
					h.Warn(ctx, "password hash upgrade update failed", "account_id", account.ID, "error", err)
				}
			} else {
				h.Warn(ctx, "password hash upgrade generation failed", "account_id", account.ID, "error", err)
			}
		}
	}
	password = ""

	if state, err = state.Next(StateCodePending); err != nil {
		return nil, err
	}
	if err := issueCode(ctx, account, deps.Code); err != nil {
		h.EmitAudit(ctx, deps.Events.Login, false, account.ID, err, func() map[string]string {
			return map[string]string{"reason": "code_delivery_failed"}
		})
		return nil, err
	}
	h.MetricInc(deps.Metrics.CodeIssued)
	h.MetricInc(deps.Metrics.LoginSuccess)
	h.EmitAudit(ctx, deps.Events.Login, true, account.ID, nil, func() map[string]string {
		return map[string]string{"step": "password"}
	})

	return &LoginResult{
		AccountID:            account.ID,
		RequiresVerification: true,
		State:                state,
	}, nil
}

func normalizeLoginDeps(deps *LoginDeps) {
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
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}
}
