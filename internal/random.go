package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
)

const (
	// ResetTokenBytes is the entropy of a raw password-reset token (256 bits).
	ResetTokenBytes = 32

	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// NewVerificationCode returns a uniformly random six-digit code in
// [100000, 999999].
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}
	return big.NewInt(0).Add(n, big.NewInt(codeMin)).String(), nil
}

// IsVerificationCode reports whether code is exactly six ASCII digits.
func IsVerificationCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// HashCode returns the hex SHA-256 digest of a verification code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// NewResetToken returns a base64url-encoded 256-bit random token.
func NewResetToken() (string, error) {
	var raw [ResetTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashResetToken decodes a raw reset token and returns the hex SHA-256 digest
// of its bytes. Tokens of the wrong shape are rejected before any lookup.
func HashResetToken(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	if len(raw) != ResetTokenBytes {
		return "", errors.New("invalid reset token size")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
