package password

import (
	"strings"
)

// MinLength is the shortest password the strength policy accepts.
const MinLength = 8

// Symbols lists the characters that satisfy the symbol rule.
const Symbols = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

// Violation messages, reported in this order.
const (
	ReasonTooShort = "Password must be at least 8 characters long"
	ReasonNoUpper  = "Password must contain at least one uppercase letter"
	ReasonNoLower  = "Password must contain at least one lowercase letter"
	ReasonNoDigit  = "Password must contain at least one number"
	ReasonNoSymbol = "Password must contain at least one special character"
	ReasonTooLong  = "Password must be at most 72 bytes long"
)

// StrengthResult is the outcome of [ValidateStrength].
type StrengthResult struct {
	Valid   bool
	Reasons []string
}

// ValidateStrength evaluates every rule of the password policy and reports all
// violated rules. Reasons is empty exactly when Valid is true. The letter and
// digit rules count ASCII characters only; other runes still add to the
// length.
func ValidateStrength(password string) StrengthResult {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	length := 0
	for _, r := range password {
		length++
		switch {
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case 'a' <= r && r <= 'z':
			hasLower = true
		case '0' <= r && r <= '9':
			hasDigit = true
		case strings.ContainsRune(Symbols, r):
			hasSymbol = true
		}
	}

	var reasons []string
	if length < MinLength {
		reasons = append(reasons, ReasonTooShort)
	}
	if !hasUpper {
		reasons = append(reasons, ReasonNoUpper)
	}
	if !hasLower {
		reasons = append(reasons, ReasonNoLower)
	}
	if !hasDigit {
		reasons = append(reasons, ReasonNoDigit)
	}
	if !hasSymbol {
		reasons = append(reasons, ReasonNoSymbol)
	}
	if len(password) > MaxPasswordBytes {
		reasons = append(reasons, ReasonTooLong)
	}

	return StrengthResult{Valid: len(reasons) == 0, Reasons: reasons}
}
