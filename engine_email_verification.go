package authcore

import (
	"context"
	"errors"

	"github.com/zuzu-app/authcore/internal"
	internalflows "github.com/zuzu-app/authcore/internal/flows"
	"github.com/zuzu-app/authcore/internal/stores"
)

// VerifyCode consumes the emailed code of accountID and issues an access and
// a refresh token. A malformed code returns [ErrValidation]; a wrong, expired
// or already used code returns [ErrCodeInvalid].
func (e *Engine) VerifyCode(ctx context.Context, accountID, code string) (*VerifyResult, error) {
	res, err := internalflows.RunVerifyCode(ctx, accountID, code, e.verifyFlowDeps())
	if err != nil {
		return nil, e.finish(ctx, "verify_code", err)
	}
	return &VerifyResult{
		Account:      fromAccountRecord(res.Account),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		State:        res.State,
	}, nil
}

// ResendCode replaces the outstanding code of accountID with a fresh one and
// mails it. The previous code stops working.
func (e *Engine) ResendCode(ctx context.Context, accountID string) error {
	if err := internalflows.RunResendCode(ctx, accountID, e.verifyFlowDeps()); err != nil {
		return e.finish(ctx, "resend_code", err)
	}
	return nil
}

func (e *Engine) verifyFlowDeps() internalflows.VerifyDeps {
	return internalflows.VerifyDeps{
		ClientIPFromContext: clientIPFromContext,
		CheckLimiter:        e.resendThrottle.Check,
		MapLimiterError:     mapLimiterError,
		WithReasons:         withReasons,
		IsVerificationCode:  internal.IsVerificationCode,
		IsCodeRejected:      isCodeRejected,
		GetAccountByID:      e.getAccountByID,
		IsNotFound:          isAccountNotFound,
		IssueAccess: func(account internalflows.AccountRecord) (string, error) {
			return e.tokens.IssueAccess(account.ID, account.Email, account.Role)
		},
		IssueRefresh: func(account internalflows.AccountRecord) (string, error) {
			return e.tokens.IssueRefresh(account.ID)
		},
		ResetLockout: e.lockout.Reset,
		RecordSignIn: func(ctx context.Context, accountID string) error {
			return e.accounts.RecordSignIn(ctx, accountID, e.now().UTC())
		},
		Code:  e.codeDeps(),
		Hooks: e.flowHooks(),
		Metrics: internalflows.VerifyMetrics{
			CodeSuccess:  int(MetricCodeSuccess),
			CodeFailure:  int(MetricCodeFailure),
			CodeIssued:   int(MetricCodeIssued),
			RateLimitHit: int(MetricRateLimitHit),
		},
		Events: internalflows.VerifyEvents{
			CodeVerify:  auditEventCodeVerify,
			CodeResend:  auditEventCodeResend,
			RateLimited: auditEventRateLimited,
		},
		Errors: internalflows.VerifyErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrValidation,
			CodeInvalid:    ErrCodeInvalid,
		},
	}
}

func isCodeRejected(err error) bool {
	return errors.Is(err, stores.ErrCodeNotFound) ||
		errors.Is(err, stores.ErrCodeExpired) ||
		errors.Is(err, stores.ErrCodeMismatch) ||
		errors.Is(err, stores.ErrCodeAttemptsExceeded)
}
