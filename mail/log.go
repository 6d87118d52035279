package mail

import (
	"context"
	"log/slog"
	"sync"
)

// LogMailer logs every message instead of sending it.
type LogMailer struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Message
	keep int
}

// Message is one message accepted by [LogMailer].
type Message struct {
	To      string
	Subject string
	HTML    string
}

// NewLogMailer returns a mailer that logs to logger (slog.Default when nil)
// and remembers the last keep messages for [LogMailer.Sent].
func NewLogMailer(logger *slog.Logger, keep int) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	if keep < 0 {
		keep = 0
	}
	return &LogMailer{logger: logger.With("component", "mail"), keep: keep}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "mail sent", "to", to, "subject", subject, "body", html)

	if m.keep == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Message{To: to, Subject: subject, HTML: html})
	if len(m.sent) > m.keep {
		m.sent = append([]Message(nil), m.sent[len(m.sent)-m.keep:]...)
	}
	return nil
}

// Sent returns a copy of the remembered messages, oldest first.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
