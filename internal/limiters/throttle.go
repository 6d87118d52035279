package limiters

import (
	"context"
	"strings"
	"time"

	"github.com/zuzu-app/authcore/internal/rate"
)

// ThrottleConfig bounds how often one operation may run per identifier and
// per client IP inside a fixed window. Zero limits disable that dimension.
type ThrottleConfig struct {
	MaxPerIdentifier int
	MaxPerIP         int
	Window           time.Duration
}

// Throttle applies a [ThrottleConfig] to one named operation such as
// "signup" or "reset_request".
type Throttle struct {
	limiter *rate.Limiter
	name    string
	config  ThrottleConfig
}

// NewThrottle binds cfg to the operation name.
func NewThrottle(limiter *rate.Limiter, name string, cfg ThrottleConfig) *Throttle {
	return &Throttle{limiter: limiter, name: name, config: cfg}
}

// Check counts one attempt for identifier and ip. It returns a
// [*rate.LimitError] when either budget is exhausted, or a wrapped
// [rate.ErrRedisUnavailable].
func (t *Throttle) Check(ctx context.Context, identifier, ip string) error {
	if t == nil || t.limiter == nil {
		return nil
	}

	if identifier != "" && t.config.MaxPerIdentifier > 0 {
		if err := t.hit(ctx, "id:"+strings.ToLower(identifier), t.config.MaxPerIdentifier); err != nil {
			return err
		}
	}
	if ip != "" && t.config.MaxPerIP > 0 {
		if err := t.hit(ctx, "ip:"+ip, t.config.MaxPerIP); err != nil {
			return err
		}
	}
	return nil
}

func (t *Throttle) hit(ctx context.Context, key string, limit int) error {
	d, err := t.limiter.Hit(ctx, "thr:"+t.name+":"+key, limit, t.config.Window)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &rate.LimitError{RetryAfter: d.RetryAfter}
	}
	return nil
}
