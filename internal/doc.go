// Package internal contains helper utilities that are intentionally private to authcore:
// verification code and reset token generation and their digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: service configuration loading for cmd/authd
//   - flows: pure-function flow orchestrators for every Engine operation
//   - limiters: account lockout and per-operation throttles
//   - rate: core Redis-backed fixed-window rate limit primitives
//   - stores: Redis stores for verification codes and reset tokens
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
