package authcore

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"

	internalflows "github.com/zuzu-app/authcore/internal/flows"
)

const codeMailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<p>Hello {{.Name}},</p>
<p>Your verification code is:</p>
<p style="font-size: 24px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
<p>The code expires in {{.Minutes}} minutes. If you did not try to sign in, you can ignore this email.</p>
</body>
</html>`

const resetMailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<p>Hello {{.Name}},</p>
<p>We received a request to reset your password. Use the link below to choose a new one:</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires in {{.Minutes}} minutes and can be used once. If you did not request a reset, you can ignore this email.</p>
</body>
</html>`

type mailTemplates struct {
	code  *template.Template
	reset *template.Template
}

func newMailTemplates() (*mailTemplates, error) {
	code, err := template.New("code").Parse(codeMailTemplate)
	if err != nil {
		return nil, err
	}
	reset, err := template.New("reset").Parse(resetMailTemplate)
	if err != nil {
		return nil, err
	}
	return &mailTemplates{code: code, reset: reset}, nil
}

func (e *Engine) sendCode(ctx context.Context, account internalflows.AccountRecord, code string) error {
	var body bytes.Buffer
	err := e.mails.code.Execute(&body, map[string]any{
		"Name":    displayName(account),
		"Code":    code,
		"Minutes": int(e.config.Verification.CodeTTL.Minutes()),
	})
	if err != nil {
		return err
	}

	if err := e.mailer.Send(ctx, account.Email, e.config.Verification.Subject, body.String()); err != nil {
		e.metricInc(MetricMailFailure)
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}

func (e *Engine) sendResetLink(ctx context.Context, account internalflows.AccountRecord, token string) error {
	link, err := resetLink(e.config.PasswordReset.LinkBaseURL, token)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	err = e.mails.reset.Execute(&body, map[string]any{
		"Name":    displayName(account),
		"Link":    link,
		"Minutes": int(e.config.PasswordReset.TokenTTL.Minutes()),
	})
	if err != nil {
		return err
	}

	return e.mailer.Send(ctx, account.Email, e.config.PasswordReset.Subject, body.String())
}

// resetLink appends token to base as the "token" query parameter.
func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse reset link base: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func displayName(account internalflows.AccountRecord) string {
	if account.FirstName != "" {
		return account.FirstName
	}
	return account.Email
}
