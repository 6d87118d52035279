// Package limiters provides domain-specific limiters built on Redis.
//
// # Limiters
//
//   - [LockoutTracker]: per-account consecutive password failure counter with a
//     timed lock (default 5 failures, 15 minutes). Lock expiry is lazy: the
//     read that observes an elapsed lock deletes it.
//   - [Throttle]: per-identifier + per-IP fixed-window budget for one named
//     operation (signup, resend code, reset request, reset confirm), built on
//     internal/rate.
//
// All limiters are nil-safe: calling any method on a nil receiver is a no-op.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
