package authcore

import (
	"context"
	"errors"

	"github.com/zuzu-app/authcore/internal"
	internalflows "github.com/zuzu-app/authcore/internal/flows"
	"github.com/zuzu-app/authcore/internal/stores"
)

// RequestPasswordReset mails a single-use reset link to email. The result is
// the same whether or not the email belongs to an account.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := internalflows.RunRequestPasswordReset(ctx, email, e.passwordResetFlowDeps()); err != nil {
		return e.finish(ctx, "password_reset_request", err)
	}
	return nil
}

// ConfirmPasswordReset redeems token and stores newPassword. A password that
// fails the strength policy returns [ErrPasswordPolicy] and leaves token
// usable until it expires.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := internalflows.RunConfirmPasswordReset(ctx, token, newPassword, e.passwordResetFlowDeps()); err != nil {
		return e.finish(ctx, "password_reset_confirm", err)
	}
	return nil
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	return internalflows.PasswordResetDeps{
		ResetTTL:            e.config.PasswordReset.TokenTTL,
		Now:                 e.now,
		ClientIPFromContext: clientIPFromContext,
		CheckRequestLimiter: e.resetThrottle.Check,
		CheckConfirmLimiter: e.resetConfirmThrottle.Check,
		MapLimiterError:     mapLimiterError,
		WithReasons:         withReasons,
		GetAccountByEmail:   e.getAccountByEmail,
		GetAccountByID:      e.getAccountByID,
		IsNotFound:          isAccountNotFound,
		ValidateStrength:    strengthReasons,
		HashPassword:        e.hasher.Hash,
		UpdatePasswordHash:  e.accounts.UpdatePasswordHash,
		NewResetToken:       internal.NewResetToken,
		HashResetToken:      internal.HashResetToken,
		SaveReset:           e.resets.Save,
		RedeemReset:         e.resets.Redeem,
		ClearReset:          e.resets.Clear,
		IsResetMissing: func(err error) bool {
			return errors.Is(err, stores.ErrResetNotFound)
		},
		SendResetLink: e.sendResetLink,
		Hooks:         e.flowHooks(),
		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
			RateLimitHit:                int(MetricRateLimitHit),
			MailFailure:                 int(MetricMailFailure),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
			RateLimited:          auditEventRateLimited,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:    ErrEngineNotReady,
			Validation:        ErrValidation,
			PasswordPolicy:    ErrPasswordPolicy,
			ResetTokenInvalid: ErrResetTokenInvalid,
		},
	}
}
