package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zuzu-app/authcore/internal"
	internalaudit "github.com/zuzu-app/authcore/internal/audit"
	internalflows "github.com/zuzu-app/authcore/internal/flows"
	"github.com/zuzu-app/authcore/internal/limiters"
	"github.com/zuzu-app/authcore/internal/rate"
	"github.com/zuzu-app/authcore/internal/stores"
	"github.com/zuzu-app/authcore/jwt"
	"github.com/zuzu-app/authcore/password"
)

// Engine runs the signup, login, code, refresh and password reset flows.
//
// An Engine is built once by [Builder.Build] and is safe for concurrent use.
// Call [Engine.Close] on shutdown to drain pending audit events.
type Engine struct {
	config   Config
	logger   *slog.Logger
	now      func() time.Time
	redis    redis.UniversalClient
	accounts AccountStore
	mailer   Mailer
	mails    *mailTemplates

	hasher  *password.Bcrypt
	tokens  *jwt.Manager
	limiter *rate.Limiter
	lockout *limiters.LockoutTracker
	codes   *stores.VerificationCodeStore
	resets  *stores.ResetTokenStore

	signupThrottle       *limiters.Throttle
	loginThrottle        *limiters.Throttle
	resendThrottle       *limiters.Throttle
	resetThrottle        *limiters.Throttle
	resetConfirmThrottle *limiters.Throttle

	audit   *internalaudit.Dispatcher
	metrics *Metrics
}

// Close drains the audit queue. It blocks until every buffered event has
// reached the sink.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Shutdown is Close bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.Shutdown(ctx)
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login checks email and password. On success a verification code is mailed
// and the caller continues with [Engine.VerifyCode]; no tokens are issued.
//
// Unknown emails, wrong passwords, disabled and locked accounts all carry
// the public message "invalid credentials".
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	res, err := internalflows.RunLogin(ctx, email, password, e.loginFlowDeps())
	if err != nil {
		return nil, e.finish(ctx, "login", err)
	}
	return &LoginResult{
		AccountID:            res.AccountID,
		RequiresVerification: res.RequiresVerification,
		State:                res.State,
	}, nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// is returned to nobody and stays valid until it expires.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	res, err := internalflows.RunRefresh(ctx, refreshToken, e.refreshFlowDeps())
	if err != nil {
		return nil, e.finish(ctx, "refresh", err)
	}
	return &RefreshResult{AccessToken: res.AccessToken, ExpiresAt: res.ExpiresAt}, nil
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		UpgradeOnLogin:      e.config.Password.UpgradeOnLogin,
		ClientIPFromContext: clientIPFromContext,
		CheckLimiter:        e.loginThrottle.Check,
		MapLimiterError:     mapLimiterError,
		WithReasons:         withReasons,
		GetAccountByEmail:   e.getAccountByEmail,
		IsNotFound:          isAccountNotFound,
		VerifyPassword:      e.hasher.Verify,
		DummyVerify:         e.dummyVerify,
		NeedsRehash:         e.hasher.NeedsRehash,
		HashPassword:        e.hasher.Hash,
		UpdatePasswordHash:  e.accounts.UpdatePasswordHash,
		IsLocked:            e.lockout.IsLocked,
		RecordFailure: func(ctx context.Context, accountID string) (internalflows.LockoutStatus, error) {
			st, err := e.lockout.RecordFailure(ctx, accountID)
			if err != nil {
				return internalflows.LockoutStatus{}, err
			}
			return internalflows.LockoutStatus{
				Failures:    st.Failures,
				LockedUntil: st.LockedUntil,
				Locked:      st.Locked(e.now()),
			}, nil
		},
		ResetLockout: e.lockout.Reset,
		Code:         e.codeDeps(),
		Hooks:        e.flowHooks(),
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginLocked:      int(MetricLoginLocked),
			LockoutTriggered: int(MetricLockoutTriggered),
			RateLimitHit:     int(MetricRateLimitHit),
			CodeIssued:       int(MetricCodeIssued),
		},
		Events: internalflows.LoginEvents{
			Login:       auditEventLogin,
			Lockout:     auditEventLockout,
			RateLimited: auditEventRateLimited,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			Validation:         ErrValidation,
			InvalidCredentials: ErrInvalidCredentials,
			AccountDisabled:    ErrAccountDisabled,
			AccountLocked:      ErrAccountLocked,
		},
	}
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	return internalflows.RefreshDeps{
		VerifyRefresh: func(token string) (string, error) {
			claims, err := e.tokens.VerifyRefresh(token)
			if err != nil {
				return "", err
			}
			return claims.Subject, nil
		},
		Reason:         jwt.Reason,
		GetAccountByID: e.getAccountByID,
		IsNotFound:     isAccountNotFound,
		IssueAccess: func(account internalflows.AccountRecord) (string, time.Time, error) {
			token, err := e.tokens.IssueAccess(account.ID, account.Email, account.Role)
			if err != nil {
				return "", time.Time{}, err
			}
			return token, e.now().Add(e.tokens.AccessTTL()), nil
		},
		Hooks: e.flowHooks(),
		Metrics: internalflows.RefreshMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
		},
		Events: internalflows.RefreshEvents{
			Refresh: auditEventRefresh,
		},
		Errors: internalflows.RefreshErrors{
			EngineNotReady: ErrEngineNotReady,
			RefreshInvalid: ErrRefreshInvalid,
		},
	}
}

// codeDeps wires the verification code store and mailer shared by signup,
// login and resend.
func (e *Engine) codeDeps() internalflows.CodeDeps {
	return internalflows.CodeDeps{
		TTL:         e.config.Verification.CodeTTL,
		MaxAttempts: e.config.Verification.MaxAttempts,
		Now:         e.now,
		NewCode:     internal.NewVerificationCode,
		HashCode:    internal.HashCode,
		SaveCode:    e.codes.Save,
		ConsumeCode: e.codes.Consume,
		SendCode:    e.sendCode,
	}
}

func (e *Engine) flowHooks() internalflows.Hooks {
	return internalflows.Hooks{
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Warn: func(ctx context.Context, msg string, args ...any) {
			e.logger.WarnContext(ctx, msg, args...)
		},
		Debug: func(ctx context.Context, msg string, args ...any) {
			e.logger.DebugContext(ctx, msg, args...)
		},
	}
}

// dummyVerify spends one bcrypt comparison so unknown emails take as long as
// wrong passwords.
func (e *Engine) dummyVerify(password string) {
	_, _ = e.hasher.Verify(password, e.hasher.DummyHash())
}

// finish converts err into an *Error. Anything that is not already one is
// logged with its cause and surfaced as [ErrInternal].
func (e *Engine) finish(ctx context.Context, op string, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	e.logger.ErrorContext(ctx, "operation failed", "op", op, "error", err)
	return ErrInternal.WithCause(err)
}

func mapLimiterError(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrRateLimited.WithRetryAfter(rate.RetryAfter(err))
	}
	return ErrInternal.WithCause(err)
}

func withReasons(err error, reasons []string) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.WithReasons(reasons)
	}
	return err
}

func isAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
