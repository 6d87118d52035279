package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/zuzu-app/authcore"
	"github.com/zuzu-app/authcore/middleware"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorData struct {
	Code   string   `json:"code"`
	Errors []string `json:"errors,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	h.writeJSON(w, r, status, envelope{Success: true, Message: message, Data: data})
}

// writeError renders err. Internal errors are logged with their cause and
// shown as a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := authcore.AsError(err)

	var status int
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
		w.Header().Set("Retry-After", strconv.Itoa(middleware.RetryAfterSeconds(e.RetryAfter())))
	case authcore.KindInternal:
		status = http.StatusInternalServerError
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"code", e.Code(),
			"error", e,
		)
	default:
		status = http.StatusInternalServerError
	}

	h.writeJSON(w, r, status, envelope{
		Success: false,
		Message: e.Message(),
		Data:    errorData{Code: publicCode(e), Errors: e.Reasons()},
	})
}

// publicCode hides which credential check failed: every error sharing the
// "invalid credentials" message reports the same code.
func publicCode(e *authcore.Error) string {
	if e.Kind() == authcore.KindAuthentication && e.Message() == authcore.ErrInvalidCredentials.Message() {
		return authcore.ErrInvalidCredentials.Code()
	}
	return e.Code()
}

// decode reads a JSON body into dst. Malformed bodies are validation errors.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return authcore.ErrValidation.WithReasons([]string{"request body is required"})
		case errors.As(err, &tooLarge):
			return authcore.ErrValidation.WithReasons([]string{"request body is too large"})
		default:
			return authcore.ErrValidation.WithReasons([]string{"request body must be valid JSON"})
		}
	}
	return nil
}
