// Package stores provides Redis-backed, short-lived record stores for the
// emailed verification code and the password-reset token.
//
// # Design
//
// Only digests are persisted. The verification code store validates and
// deletes in one Lua script, so a replayed correct code fails. The reset store
// keeps one live token per account and uses WATCH/MULTI optimistic
// transactions with bounded retry on contention for overwrite, expiry cleanup
// and clear. Expiry is decided from the stored timestamps against the caller's
// clock; Redis key TTLs are housekeeping only.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// challenge records. It does NOT generate codes or tokens, enforce rate limits,
// or make authentication decisions. Those belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
