// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunSignup, RunLogin, RunVerifyCode, RunRefresh, etc.)
// accepts a typed dependency struct and walks the login state machine
// ANONYMOUS → PASSWORD_PENDING → CODE_PENDING → AUTHENTICATED. Dependencies
// are plain function fields so tests can substitute in-memory fakes.
//
// # Architecture boundaries
//
// Flow functions decide ordering and which failures map to which public
// error. They coordinate the account store, password hasher, lockout tracker,
// code and reset stores, token manager, mailer, audit and metrics. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
