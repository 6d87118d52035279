// Package password implements password hashing, verification, and the
// password strength policy.
//
// # Hashing
//
// [Bcrypt] wraps golang.org/x/crypto/bcrypt with a configurable cost (12 by
// default). [Bcrypt.NeedsRehash] reports hashes produced at a different cost so
// the caller can re-hash on the next successful login.
//
// # Policy
//
// [ValidateStrength] checks length, upper-case, lower-case, digit, and symbol
// rules and returns every violated rule, not only the first.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
