package flows

import (
	"context"
	"time"
)

type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
	RateLimitHit                int
	MailFailure                 int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
	RateLimited          string
}

type PasswordResetErrors struct {
	EngineNotReady    error
	Validation        error
	PasswordPolicy    error
	ResetTokenInvalid error
}

type PasswordResetDeps struct {
	ResetTTL time.Duration

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string
	CheckRequestLimiter Limiter
	CheckConfirmLimiter Limiter
	MapLimiterError     func(error) error
	WithReasons         func(error, []string) error

	GetAccountByEmail  func(context.Context, string) (AccountRecord, error)
	GetAccountByID     func(context.Context, string) (AccountRecord, error)
	IsNotFound         func(error) bool
	ValidateStrength   func(string) []string
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, accountID, hash string) error

	NewResetToken  func() (string, error)
	HashResetToken func(string) (string, error)
	SaveReset      func(ctx context.Context, accountID, digest string, expiresAt time.Time, ttl time.Duration) error
	RedeemReset    func(ctx context.Context, digest string, now time.Time) (string, error)
	ClearReset     func(ctx context.Context, accountID, digest string) (bool, error)
	IsResetMissing func(error) bool
	SendResetLink  func(ctx context.Context, account AccountRecord, token string) error

	Hooks Hooks

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset mails a reset link to a known, enabled account.
// Unknown emails return nil so the response does not reveal registration, and
// mail failures are recorded but not surfaced for the same reason.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	h := deps.Hooks

	if deps.GetAccountByEmail == nil ||
		deps.NewResetToken == nil ||
		deps.HashResetToken == nil ||
		deps.SaveReset == nil ||
		deps.SendResetLink == nil {
		return deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if reasons := EmailReasons(email); len(reasons) > 0 {
		return deps.WithReasons(deps.Errors.Validation, reasons)
	}

	if deps.CheckRequestLimiter != nil {
		if err := deps.CheckRequestLimiter(ctx, email, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			h.MetricInc(deps.Metrics.RateLimitHit)
			h.EmitAudit(ctx, deps.Events.RateLimited, false, "", mapped, func() map[string]string {
				return map[string]string{"operation": "password_reset_request"}
			})
			return mapped
		}
	}

	account, err := deps.GetAccountByEmail(ctx, email)
	if err != nil {
		if !deps.IsNotFound(err) {
			return err
		}
		h.MetricInc(deps.Metrics.PasswordResetRequest)
		h.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, "", nil, func() map[string]string {
			return map[string]string{"enumeration_safe": "true"}
		})
		return nil
	}
	if account.Disabled {
		h.MetricInc(deps.Metrics.PasswordResetRequest)
		h.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, account.ID, nil, func() map[string]string {
			return map[string]string{"enumeration_safe": "true", "reason": "account_disabled"}
		})
		return nil
	}

	token, err := deps.NewResetToken()
	if err != nil {
		return err
	}
	digest, err := deps.HashResetToken(token)
	if err != nil {
		return err
	}
	now := deps.Now()
	if err := deps.SaveReset(ctx, account.ID, digest, now.Add(deps.ResetTTL), deps.ResetTTL); err != nil {
		h.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, account.ID, err, nil)
		return err
	}

	if err := deps.SendResetLink(ctx, account, token); err != nil {
		h.MetricInc(deps.Metrics.MailFailure)
		h.Warn(ctx, "password reset mail failed", "account_id", account.ID, "error", err)
		h.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, account.ID, err, func() map[string]string {
			return map[string]string{"reason": "mail_failed"}
		})
		return nil
	}

	h.MetricInc(deps.Metrics.PasswordResetRequest)
	h.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, account.ID, nil, nil)
	return nil
}

// RunConfirmPasswordReset redeems token and sets a new password. A password
// that fails the strength policy leaves the token redeemable. The token is
// claimed by clearing it before the new hash is stored, so concurrent
// confirms with one token succeed at most once.
func RunConfirmPasswordReset(ctx context.Context, token, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	h := deps.Hooks

	if deps.HashResetToken == nil ||
		deps.RedeemReset == nil ||
		deps.ClearReset == nil ||
		deps.GetAccountByID == nil ||
		deps.ValidateStrength == nil ||
		deps.HashPassword == nil ||
		deps.UpdatePasswordHash == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(accountID string, err error, reason string) error {
		h.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		h.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, accountID, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	if token == "" {
		return fail("", deps.WithReasons(deps.Errors.Validation, []string{ReasonTokenRequired}), "missing_token")
	}
	digest, err := deps.HashResetToken(token)
	if err != nil {
		return fail("", deps.Errors.ResetTokenInvalid, "malformed_token")
	}

	if deps.CheckConfirmLimiter != nil {
		if err := deps.CheckConfirmLimiter(ctx, "", deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			h.MetricInc(deps.Metrics.RateLimitHit)
			h.EmitAudit(ctx, deps.Events.RateLimited, false, "", mapped, func() map[string]string {
				return map[string]string{"operation": "password_reset_confirm"}
			})
			return mapped
		}
	}

	accountID, err := deps.RedeemReset(ctx, digest, deps.Now())
	if err != nil {
		if deps.IsResetMissing(err) {
			return fail("", deps.Errors.ResetTokenInvalid, "unknown_or_expired")
		}
		return err
	}

	if weak := deps.ValidateStrength(newPassword); len(weak) > 0 {
		return fail(accountID, deps.WithReasons(deps.Errors.PasswordPolicy, weak), "password_policy")
	}

	account, err := deps.GetAccountByID(ctx, accountID)
	if err != nil {
		if !deps.IsNotFound(err) {
			return err
		}
		return fail(accountID, deps.Errors.ResetTokenInvalid, "unknown_account")
	}
	if account.Disabled {
		return fail(account.ID, deps.Errors.ResetTokenInvalid, "account_disabled")
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return err
	}
	newPassword = ""

	// Only the caller that removes the record may write the new hash.
	removed, err := deps.ClearReset(ctx, account.ID, digest)
	if err != nil {
		return fail(account.ID, err, "clear_failed")
	}
	if !removed {
		return fail(account.ID, deps.Errors.ResetTokenInvalid, "already_redeemed")
	}
	if err := deps.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return fail(account.ID, err, "update_hash_failed")
	}

	h.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	h.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, account.ID, nil, nil)
	return nil
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	deps.Hooks.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ResetTTL <= 0 {
		deps.ResetTTL = time.Hour
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
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.IsResetMissing == nil {
		deps.IsResetMissing = func(error) bool { return false }
	}
}
