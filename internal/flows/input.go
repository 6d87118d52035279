package flows

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLength = 254
	maxNameLength  = 100
)

// Input validation reasons.
const (
	ReasonEmailRequired     = "email is required"
	ReasonEmailInvalid      = "email is invalid"
	ReasonPasswordRequired  = "password is required"
	ReasonFirstNameRequired = "first name is required"
	ReasonLastNameRequired  = "last name is required"
	ReasonNameTooLong       = "names must be at most 100 characters"
	ReasonUserIDRequired    = "user id is required"
	ReasonCodeFormat        = "code must be 6 digits"
	ReasonTokenRequired     = "token is required"
)

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailReasons returns the violated rules for an already normalized email.
func EmailReasons(email string) []string {
	if email == "" {
		return []string{ReasonEmailRequired}
	}
	if len(email) > maxEmailLength {
		return []string{ReasonEmailInvalid}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return []string{ReasonEmailInvalid}
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return []string{ReasonEmailInvalid}
	}
	return nil
}

func normalizeSignup(req SignupRequest) (SignupRequest, []string) {
	req.Email = NormalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	reasons := EmailReasons(req.Email)
	if req.FirstName == "" {
		reasons = append(reasons, ReasonFirstNameRequired)
	}
	if req.LastName == "" {
		reasons = append(reasons, ReasonLastNameRequired)
	}
	if utf8.RuneCountInString(req.FirstName) > maxNameLength || utf8.RuneCountInString(req.LastName) > maxNameLength {
		reasons = append(reasons, ReasonNameTooLong)
	}
	return req, reasons
}
