package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/zuzu-app/authcore"
)

// ErrorHandler renders a rejected request. err is always an *authcore.Error.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

func orDefault(h ErrorHandler) ErrorHandler {
	if h != nil {
		return h
	}
	return plainError
}

// plainError is used when no ErrorHandler is configured.
func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	e := authcore.AsError(err)
	status := http.StatusInternalServerError
	switch e.Kind() {
	case authcore.KindValidation:
		status = http.StatusBadRequest
	case authcore.KindAuthentication:
		status = http.StatusUnauthorized
	case authcore.KindForbidden:
		status = http.StatusForbidden
	case authcore.KindNotFound:
		status = http.StatusNotFound
	case authcore.KindRateLimit:
		status = http.StatusTooManyRequests
		if d := e.RetryAfter(); d > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(d)))
		}
	case authcore.KindInternal:
	}
	http.Error(w, e.Message(), status)
}

// RetryAfterSeconds rounds d up to whole seconds for the Retry-After header.
// The result is at least 1.
func RetryAfterSeconds(d time.Duration) int {
	n := int(d / time.Second)
	if d%time.Second != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}
