package flows

import (
	"context"
	"strconv"
	"time"
)

// AccountRecord mirrors the root Account so flows stay free of the authcore
// import.
type AccountRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
	Disabled     bool
	LastSignInAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AccountCreateInput struct {
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
}

// AuditFunc emits one audit event. meta is evaluated lazily so disabled
// audit pays nothing.
type AuditFunc func(ctx context.Context, event string, success bool, accountID string, err error, meta func() map[string]string)

// Hooks groups the observability callbacks shared by every flow.
type Hooks struct {
	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(ctx context.Context, msg string, args ...any)
	Debug     func(ctx context.Context, msg string, args ...any)
}

func (h *Hooks) normalize() {
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if h.Warn == nil {
		h.Warn = func(context.Context, string, ...any) {}
	}
	if h.Debug == nil {
		h.Debug = func(context.Context, string, ...any) {}
	}
}

// Limiter checks one named request budget. It returns nil while the budget
// holds and a limiter error once it is exhausted.
type Limiter func(ctx context.Context, identifier, ip string) error

// CodeDeps issues and consumes the emailed verification code.
type CodeDeps struct {
	TTL         time.Duration
	MaxAttempts int

	Now         func() time.Time
	NewCode     func() (string, error)
	HashCode    func(string) string
	SaveCode    func(ctx context.Context, accountID, digest string, issuedAt time.Time, ttl time.Duration) error
	ConsumeCode func(ctx context.Context, accountID, digest string, now time.Time, ttl time.Duration, maxAttempts int) error
	SendCode    func(ctx context.Context, account AccountRecord, code string) error
}

func (c *CodeDeps) ready() bool {
	return c.NewCode != nil && c.HashCode != nil && c.SaveCode != nil && c.SendCode != nil
}

func (c *CodeDeps) normalize() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
}

// issueCode stores a fresh code for account, replacing any prior one, and
// mails it. A mail failure leaves the stored code valid.
func issueCode(ctx context.Context, account AccountRecord, c CodeDeps) error {
	code, err := c.NewCode()
	if err != nil {
		return err
	}
	if err := c.SaveCode(ctx, account.ID, c.HashCode(code), c.Now(), c.TTL); err != nil {
		return err
	}
	return c.SendCode(ctx, account, code)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
