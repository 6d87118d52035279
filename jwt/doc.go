// Package jwt issues and verifies HS256 access and refresh tokens with separate
// signing secrets, a fixed issuer and audience, and a kind claim. Verification
// failures are deliberately indistinguishable to callers.
package jwt
