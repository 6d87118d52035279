package authcore

import (
	"context"
	"strings"
	"time"

	"github.com/zuzu-app/authcore/jwt"
)

// Authenticate verifies an access token locally and returns its principal.
// It touches neither Redis nor the account store. Every failure is
// [ErrUnauthorized].
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrUnauthorized
	}

	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		e.logger.DebugContext(ctx, "access token rejected", "reason", jwt.Reason(err))
		return nil, ErrUnauthorized.WithCause(err)
	}

	p := &Principal{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// HealthStatus reports backend reachability.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health pings Redis.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.redis == nil {
		return HealthStatus{}
	}

	start := time.Now()
	err := e.redis.Ping(ctx).Err()
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   time.Since(start),
	}
}

// LoginFailures returns the consecutive failed password attempts recorded
// for accountID and, when locked, the time the lock lifts.
func (e *Engine) LoginFailures(ctx context.Context, accountID string) (int, time.Time, error) {
	st, err := e.lockout.Status(ctx, accountID)
	if err != nil {
		return 0, time.Time{}, e.finish(ctx, "login_failures", err)
	}
	if !st.Locked(e.now()) {
		return st.Failures, time.Time{}, nil
	}
	return st.Failures, st.LockedUntil, nil
}
