package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrSendFailed wraps SMTP delivery failures.
var ErrSendFailed = errors.New("mail: send failed")

// SMTPConfig describes the relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends one message per call over a fresh SMTP connection.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(ctx context.Context, msg *gomail.Msg) error
}

// NewSMTPMailer validates cfg and returns a mailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mail: SMTP host must not be empty")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail: From address must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	m := &SMTPMailer{cfg: cfg}
	m.send = m.dialAndSend
	return m, nil
}

// Send delivers an HTML message. The body is quoted-printable encoded. It
// returns when the relay accepted the message, the relay failed, or ctx
// ended; Timeout bounds the dial and every read and write.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("%w: header contains newline", ErrSendFailed)
	}

	msg, err := m.newMessage(to, subject, html)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func (m *SMTPMailer) newMessage(to, subject, html string) (*gomail.Msg, error) {
	msg := gomail.NewMsg(gomail.WithEncoding(gomail.EncodingQP), gomail.WithCharset(gomail.CharsetUTF8))
	if err := msg.From(m.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, html)
	return msg, nil
}

func (m *SMTPMailer) newClient() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTimeout(m.cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	return gomail.NewClient(m.cfg.Host, opts...)
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	client, err := m.newClient()
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}
