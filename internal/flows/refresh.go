package flows

import (
	"context"
	"time"
)

type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
}

type RefreshEvents struct {
	Refresh string
}

type RefreshErrors struct {
	EngineNotReady error
	RefreshInvalid error
}

type RefreshDeps struct {
	// VerifyRefresh returns the token subject.
	VerifyRefresh  func(string) (string, error)
	Reason         func(error) error
	GetAccountByID func(context.Context, string) (AccountRecord, error)
	IsNotFound     func(error) bool
	IssueAccess    func(AccountRecord) (string, time.Time, error)

	Hooks Hooks

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh mints a new access token from a refresh token. The refresh token
// itself is not rotated.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*RefreshResult, error) {
	normalizeRefreshDeps(&deps)
	h := deps.Hooks

	if deps.VerifyRefresh == nil || deps.GetAccountByID == nil || deps.IssueAccess == nil {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func(accountID, reason string) (*RefreshResult, error) {
		h.MetricInc(deps.Metrics.RefreshFailure)
		h.EmitAudit(ctx, deps.Events.Refresh, false, accountID, deps.Errors.RefreshInvalid, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return nil, deps.Errors.RefreshInvalid
	}

	if refreshToken == "" {
		return fail("", "missing_token")
	}

	subject, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		h.Debug(ctx, "refresh token rejected", "reason", deps.Reason(err))
		return fail("", "invalid_token")
	}

	account, err := deps.GetAccountByID(ctx, subject)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, err
		}
		return fail(subject, "unknown_account")
	}
	if account.Disabled {
		return fail(account.ID, "account_disabled")
	}

	access, expiresAt, err := deps.IssueAccess(account)
	if err != nil {
		return nil, err
	}

	h.MetricInc(deps.Metrics.RefreshSuccess)
	h.EmitAudit(ctx, deps.Events.Refresh, true, account.ID, nil, nil)
	return &RefreshResult{AccessToken: access, ExpiresAt: expiresAt}, nil
}

func normalizeRefreshDeps(deps *RefreshDeps) {
	deps.Hooks.normalize()
	if deps.Reason == nil {
		deps.Reason = func(err error) error { return err }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
}
