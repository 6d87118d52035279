package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zuzu-app/authcore/internal/rate"
)

func TestThrottlePerIdentifier(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	th := NewThrottle(rate.New(rdb, ""), "resend", ThrottleConfig{MaxPerIdentifier: 2, Window: time.Minute})

	for i := 0; i < 2; i++ {
		if err := th.Check(ctx, "u1", ""); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	err := th.Check(ctx, "u1", "")
	if !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ra := rate.RetryAfter(err); ra <= 0 || ra > time.Minute {
		t.Fatalf("expected retry-after within window, got %v", ra)
	}

	if err := th.Check(ctx, "u2", ""); err != nil {
		t.Fatalf("expected other identifier unaffected, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := th.Check(ctx, "u1", ""); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestThrottlePerIP(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	th := NewThrottle(rate.New(rdb, ""), "signup", ThrottleConfig{MaxPerIP: 1, Window: time.Minute})

	if err := th.Check(ctx, "a@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := th.Check(ctx, "b@example.com", "10.0.0.1"); !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("expected per-IP limit, got %v", err)
	}
	if err := th.Check(ctx, "b@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("expected other IP unaffected, got %v", err)
	}
}

func TestThrottleIdentifierIsCaseInsensitive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	th := NewThrottle(rate.New(rdb, ""), "reset_request", ThrottleConfig{MaxPerIdentifier: 1, Window: time.Minute})

	if err := th.Check(ctx, "Alice@Example.com", ""); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := th.Check(ctx, "alice@example.com", ""); !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("expected shared budget across case, got %v", err)
	}
}

func TestThrottleDisabled(t *testing.T) {
	var th *Throttle
	if err := th.Check(context.Background(), "x", "y"); err != nil {
		t.Fatalf("expected nil throttle to allow, got %v", err)
	}
}
