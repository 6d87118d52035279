package limiters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestTracker(t *testing.T) (*miniredis.Miniredis, *LockoutTracker, *testClock) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	tracker := NewLockoutTracker(rdb, LockoutConfig{Threshold: 5, Duration: 15 * time.Minute}, clock.Now)
	return mr, tracker, clock
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	mr, tracker, clock := newTestTracker(t)
	defer mr.Close()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		state, err := tracker.RecordFailure(ctx, "bob")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if state.Failures != i || state.Locked(clock.Now()) {
			t.Fatalf("after %d failures expected unlocked count %d, got %+v", i, i, state)
		}
	}

	locked, err := tracker.IsLocked(ctx, "bob")
	if err != nil || locked {
		t.Fatalf("expected unlocked after 4 failures, locked=%v err=%v", locked, err)
	}

	state, err := tracker.RecordFailure(ctx, "bob")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if state.Failures != 5 || !state.Locked(clock.Now()) {
		t.Fatalf("expected lock on 5th failure, got %+v", state)
	}
	if want := clock.Now().Add(15 * time.Minute); !state.LockedUntil.Equal(want) {
		t.Fatalf("expected lock until %v, got %v", want, state.LockedUntil)
	}

	locked, err = tracker.IsLocked(ctx, "bob")
	if err != nil || !locked {
		t.Fatalf("expected locked, locked=%v err=%v", locked, err)
	}
}

func TestLockoutLazyExpiry(t *testing.T) {
	mr, tracker, clock := newTestTracker(t)
	defer mr.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := tracker.RecordFailure(ctx, "bob"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	clock.Advance(15*time.Minute - time.Second)
	if locked, _ := tracker.IsLocked(ctx, "bob"); !locked {
		t.Fatal("expected lock to hold 1s before window end")
	}

	clock.Advance(time.Second)
	locked, err := tracker.IsLocked(ctx, "bob")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if locked {
		t.Fatal("expected lock to lapse at window end")
	}
	if mr.Exists("lock:bob") {
		t.Fatal("expected expired lock record to be deleted on read")
	}

	state, err := tracker.RecordFailure(ctx, "bob")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if state.Failures != 1 || state.Locked(clock.Now()) {
		t.Fatalf("expected a fresh count after expiry, got %+v", state)
	}
}

func TestLockoutExpiredLockClearedByRecordFailure(t *testing.T) {
	mr, tracker, clock := newTestTracker(t)
	defer mr.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := tracker.RecordFailure(ctx, "bob"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	clock.Advance(16 * time.Minute)

	state, err := tracker.RecordFailure(ctx, "bob")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if state.Failures != 1 {
		t.Fatalf("expected count to restart at 1, got %d", state.Failures)
	}
}

func TestLockoutReset(t *testing.T) {
	mr, tracker, _ := newTestTracker(t)
	defer mr.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tracker.RecordFailure(ctx, "bob"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	if err := tracker.Reset(ctx, "bob"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	state, err := tracker.Status(ctx, "bob")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state.Failures != 0 || !state.LockedUntil.IsZero() {
		t.Fatalf("expected cleared state, got %+v", state)
	}
}

func TestLockoutConcurrentFailuresAreCountedExactly(t *testing.T) {
	mr, tracker, clock := newTestTracker(t)
	defer mr.Close()
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.RecordFailure(ctx, "carol"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	state, err := tracker.Status(ctx, "carol")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state.Failures != workers {
		t.Fatalf("expected %d failures, got %d", workers, state.Failures)
	}
	if !state.Locked(clock.Now()) {
		t.Fatal("expected account locked")
	}
}

func TestLockoutUnavailableBackend(t *testing.T) {
	mr, tracker, _ := newTestTracker(t)
	mr.Close()

	if _, err := tracker.RecordFailure(context.Background(), "bob"); err == nil {
		t.Fatal("expected backend error")
	}
}

func TestLockoutNilTrackerIsNoOp(t *testing.T) {
	var tracker *LockoutTracker
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx, "bob"); err != nil {
		t.Fatalf("expected nil-safe RecordFailure, got %v", err)
	}
	if locked, err := tracker.IsLocked(ctx, "bob"); err != nil || locked {
		t.Fatalf("expected nil-safe IsLocked, locked=%v err=%v", locked, err)
	}
	if err := tracker.Reset(ctx, "bob"); err != nil {
		t.Fatalf("expected nil-safe Reset, got %v", err)
	}
}
