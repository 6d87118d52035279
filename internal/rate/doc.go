// Package rate provides the Redis-backed fixed-window counter used by request
// throttles and HTTP rate limiting.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Rejected hits
// report the remaining window as RetryAfter. Keys written by authcore:
//
//	rl:thr:{operation}:id:{identifier}   engine throttles (internal/limiters)
//	rl:thr:{operation}:ip:{ip}
//	rl:http:{route}:ip:{ip}              HTTP limits (middleware)
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authcore module.
package rate
