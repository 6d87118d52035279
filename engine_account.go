package authcore

import (
	"context"
	"errors"
	"strings"

	internalflows "github.com/zuzu-app/authcore/internal/flows"
	"github.com/zuzu-app/authcore/password"
)

// Signup creates an account and mails its first verification code.
//
// Validation failures return [ErrValidation] or [ErrPasswordPolicy] with the
// violated rules in Reasons. A taken email returns [ErrEmailTaken].
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	res, err := internalflows.RunSignup(ctx, internalflows.SignupRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, e.signupFlowDeps())
	if err != nil {
		return nil, e.finish(ctx, "signup", err)
	}
	return &SignupResult{
		AccountID: res.AccountID,
		Email:     res.Email,
		State:     res.State,
	}, nil
}

// CurrentUser loads the account behind an authenticated principal. Unknown
// and disabled accounts return [ErrUnauthorized].
func (e *Engine) CurrentUser(ctx context.Context, accountID string) (*Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrUnauthorized
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if isAccountNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, e.finish(ctx, "current_user", err)
	}
	if account.Disabled {
		return nil, ErrUnauthorized
	}
	return &account, nil
}

func (e *Engine) signupFlowDeps() internalflows.SignupDeps {
	return internalflows.SignupDeps{
		DefaultRole:         DefaultRole,
		ClientIPFromContext: clientIPFromContext,
		CheckLimiter:        e.signupThrottle.Check,
		MapLimiterError:     mapLimiterError,
		ValidateStrength:    strengthReasons,
		WithReasons:         withReasons,
		HashPassword:        e.hasher.Hash,
		CreateAccount: func(ctx context.Context, in internalflows.AccountCreateInput) (internalflows.AccountRecord, error) {
			account, err := e.accounts.Create(ctx, CreateAccountInput{
				Email:        in.Email,
				PasswordHash: in.PasswordHash,
				Role:         in.Role,
				FirstName:    in.FirstName,
				LastName:     in.LastName,
			})
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return toAccountRecord(account), nil
		},
		IsEmailTaken: func(err error) bool {
			return errors.Is(err, ErrEmailTaken)
		},
		Code:  e.codeDeps(),
		Hooks: e.flowHooks(),
		Metrics: internalflows.SignupMetrics{
			SignupSuccess:   int(MetricSignupSuccess),
			SignupFailure:   int(MetricSignupFailure),
			SignupDuplicate: int(MetricSignupDuplicate),
			RateLimitHit:    int(MetricRateLimitHit),
			CodeIssued:      int(MetricCodeIssued),
		},
		Events: internalflows.SignupEvents{
			Signup:      auditEventSignup,
			RateLimited: auditEventRateLimited,
		},
		Errors: internalflows.SignupErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrValidation,
			PasswordPolicy: ErrPasswordPolicy,
			EmailTaken:     ErrEmailTaken,
		},
	}
}

func (e *Engine) getAccountByEmail(ctx context.Context, email string) (internalflows.AccountRecord, error) {
	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		return internalflows.AccountRecord{}, err
	}
	return toAccountRecord(account), nil
}

func (e *Engine) getAccountByID(ctx context.Context, id string) (internalflows.AccountRecord, error) {
	account, err := e.accounts.GetByID(ctx, id)
	if err != nil {
		return internalflows.AccountRecord{}, err
	}
	return toAccountRecord(account), nil
}

func strengthReasons(pw string) []string {
	return password.ValidateStrength(pw).Reasons
}

func toAccountRecord(a Account) internalflows.AccountRecord {
	return internalflows.AccountRecord{
		ID:           a.ID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Disabled:     a.Disabled,
		LastSignInAt: a.LastSignInAt,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccountRecord(r internalflows.AccountRecord) Account {
	return Account{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Disabled:     r.Disabled,
		LastSignInAt: r.LastSignInAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
