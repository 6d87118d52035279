package authcore

import (
	"errors"
	"time"
)

// Kind classifies an [Error]. The set is closed; transports switch over it
// exhaustively to pick a response status.
type Kind uint8

const (
	// KindInternal covers unclassified failures. Details are logged, never shown.
	KindInternal Kind = iota
	// KindValidation reports bad input or a password-policy violation.
	KindValidation
	// KindAuthentication reports bad credentials, a bad or expired token or
	// code, or a locked or disabled account.
	KindAuthentication
	// KindForbidden reports a role-authorization failure.
	KindForbidden
	// KindNotFound reports a lookup miss inside a flow.
	KindNotFound
	// KindRateLimit reports an exhausted request budget.
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "internal"
	}
}

// Error is the tagged error value returned by [Engine] operations.
//
// Message is safe to show to callers. Code is stable and matched by
// errors.Is, so a sentinel such as [ErrAccountLocked] still matches after
// [Error.WithCause] or [Error.WithReasons] produced a copy.
type Error struct {
	kind       Kind
	code       string
	message    string
	reasons    []string
	retryAfter time.Duration
	cause      error
}

func newError(kind Kind, code, message string) *Error {
	return &Error{kind: kind, code: code, message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.code + ": " + e.cause.Error()
	}
	return e.code
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the stable machine-readable code.
func (e *Error) Code() string { return e.code }

// Message returns the public message.
func (e *Error) Message() string { return e.message }

// Reasons returns the violated rules attached to a validation error.
func (e *Error) Reasons() []string {
	if len(e.reasons) == 0 {
		return nil
	}
	out := make([]string, len(e.reasons))
	copy(out, e.reasons)
	return out
}

// RetryAfter returns the wait attached to a rate-limit error.
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

// Operational reports whether the error is an expected, recoverable outcome.
// Only [KindInternal] is not.
func (e *Error) Operational() bool { return e.kind != KindInternal }

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	out := *e
	out.cause = cause
	return &out
}

// WithReasons returns a copy of e carrying reasons.
func (e *Error) WithReasons(reasons []string) *Error {
	out := *e
	out.reasons = append([]string(nil), reasons...)
	return &out
}

// WithRetryAfter returns a copy of e carrying a retry hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	out := *e
	out.retryAfter = d
	return &out
}

// KindOf classifies err. Errors that are not *Error are [KindInternal].
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// AsError returns the *Error in err's chain, or wraps err as an internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

var (
	// ErrInternal is the generic internal failure.
	ErrInternal = newError(KindInternal, "internal", "internal server error")
	// ErrEngineNotReady reports a zero or partially built Engine.
	ErrEngineNotReady = newError(KindInternal, "engine_not_ready", "internal server error")

	// ErrValidation reports malformed input.
	ErrValidation = newError(KindValidation, "validation_failed", "validation failed")
	// ErrPasswordPolicy reports a password that violates the strength policy.
	// The violated rules are available through [Error.Reasons].
	ErrPasswordPolicy = newError(KindValidation, "password_policy", "password does not meet requirements")
	// ErrEmailTaken reports a signup for an email that already has an account.
	ErrEmailTaken = newError(KindValidation, "email_taken", "unable to create account with the provided details")

	// ErrInvalidCredentials reports a wrong email or password.
	ErrInvalidCredentials = newError(KindAuthentication, "invalid_credentials", "invalid credentials")
	// ErrAccountLocked reports a login against a locked account.
	ErrAccountLocked = newError(KindAuthentication, "account_locked", "invalid credentials")
	// ErrAccountDisabled reports a login against a disabled account.
	ErrAccountDisabled = newError(KindAuthentication, "account_disabled", "invalid credentials")
	// ErrCodeInvalid reports a missing, wrong, expired or replayed verification code.
	ErrCodeInvalid = newError(KindAuthentication, "code_invalid", "invalid or expired code")
	// ErrUnauthorized reports a missing or invalid access token.
	ErrUnauthorized = newError(KindAuthentication, "unauthorized", "authentication required")
	// ErrRefreshInvalid reports a missing or invalid refresh token.
	ErrRefreshInvalid = newError(KindAuthentication, "refresh_invalid", "authentication required")
	// ErrResetTokenInvalid reports an unknown, expired or spent reset token.
	ErrResetTokenInvalid = newError(KindAuthentication, "reset_token_invalid", "invalid or expired reset token")

	// ErrForbidden reports an authenticated caller without the required role.
	ErrForbidden = newError(KindForbidden, "forbidden", "forbidden")

	// ErrAccountNotFound is returned by [AccountStore] lookups that miss.
	ErrAccountNotFound = newError(KindNotFound, "account_not_found", "not found")

	// ErrRateLimited reports an exhausted request budget.
	ErrRateLimited = newError(KindRateLimit, "rate_limited", "too many requests")
)
