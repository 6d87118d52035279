package authcore

import (
	"context"
	"errors"
	"io"
	"log/slog"

	internalaudit "github.com/zuzu-app/authcore/internal/audit"
)

// AuditEvent is one security-relevant record emitted by the [Engine].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs audit events through a *slog.Logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink returns a [SlogSink]. A nil logger uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

const (
	auditEventSignup               = "signup"
	auditEventLogin                = "login"
	auditEventLockout              = "lockout"
	auditEventCodeVerify           = "code_verify"
	auditEventCodeResend           = "code_resend"
	auditEventRefresh              = "refresh"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventRateLimited          = "rate_limited"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = auditErrorCode(err)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal_error"
}
