// Package authcore implements the zuzu account authentication flows: email
// and password signup, two-step login with an emailed six-digit code,
// stateless JWT access and refresh tokens, account lockout, and password
// reset by emailed link.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces [AccountStore] and [Mailer], and the tagged
// [Error] values every operation returns. Flow orchestration, Redis-backed
// lockout counters, verification codes, reset tokens, rate limiting, and
// audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or key layouts in its public API.
//   - Log or audit passwords, codes, raw reset tokens, or JWTs.
//   - Import any sub-package that re-imports authcore (accountstore, mail,
//     middleware and httpapi depend on authcore, never the reverse).
//
// # Performance contract
//
// Authenticate is the hot path. It verifies the access token locally and
// touches neither Redis nor the account store. Login, VerifyCode and the
// reset flows make a bounded number of Redis round-trips per call.
package authcore
