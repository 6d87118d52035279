package authcore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryAccounts is a map-backed AccountStore.
type memoryAccounts struct {
	mu      sync.Mutex
	byID    map[string]Account
	byEmail map[string]string
	now     func() time.Time

	getByIDCalls int
}

func newMemoryAccounts(now func() time.Time) *memoryAccounts {
	return &memoryAccounts{
		byID:    map[string]Account{},
		byEmail: map[string]string{},
		now:     now,
	}
}

func (m *memoryAccounts) GetByEmail(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return m.byID[id], nil
}

func (m *memoryAccounts) GetByID(_ context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++
	a, ok := m.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryAccounts) Create(_ context.Context, in CreateAccountInput) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(in.Email)
	if _, ok := m.byEmail[email]; ok {
		return Account{}, ErrEmailTaken
	}
	now := m.now()
	a := Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byID[a.ID] = a
	m.byEmail[email] = a.ID
	return a, nil
}

func (m *memoryAccounts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = m.now()
	m.byID[id] = a
	return nil
}

func (m *memoryAccounts) RecordSignIn(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.LastSignInAt = &at
	m.byID[id] = a
	return nil
}

func (m *memoryAccounts) disable(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.byID[id]
	a.Disabled = true
	m.byID[id] = a
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

var (
	mailCodePattern  = regexp.MustCompile(`letter-spacing: 4px;">(\d{6})<`)
	mailTokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)
)

func (m *captureMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp: connection refused")
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *captureMailer) count(to string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.To == to {
			n++
		}
	}
	return n
}

func (m *captureMailer) last(t *testing.T, to string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i]
		}
	}
	t.Fatalf("no mail sent to %s", to)
	return sentMail{}
}

func (m *captureMailer) lastCode(t *testing.T, to string) string {
	t.Helper()
	match := mailCodePattern.FindStringSubmatch(m.last(t, to).HTML)
	if match == nil {
		t.Fatalf("no verification code in mail to %s", to)
	}
	return match[1]
}

func (m *captureMailer) lastResetToken(t *testing.T, to string) string {
	t.Helper()
	match := mailTokenPattern.FindStringSubmatch(m.last(t, to).HTML)
	if match == nil {
		t.Fatalf("no reset token in mail to %s", to)
	}
	return match[1]
}

type testEngine struct {
	*Engine
	mr       *miniredis.Miniredis
	clock    *fakeClock
	accounts *memoryAccounts
	mailer   *captureMailer
}

func newTestEngine(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEngine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	accounts := newMemoryAccounts(clock.Now)
	mailer := &captureMailer{}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithMailer(mailer).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		Engine:   engine,
		mr:       mr,
		clock:    clock,
		accounts: accounts,
		mailer:   mailer,
	}
}

// signupAndVerify registers email and completes the first code step.
func (te *testEngine) signupAndVerify(t *testing.T, email, password string) *VerifyResult {
	t.Helper()

	ctx := context.Background()
	res, err := te.Signup(ctx, SignupRequest{
		Email:     email,
		Password:  password,
		FirstName: "Test",
		LastName:  "User",
	})
	if err != nil {
		t.Fatalf("Signup(%s) failed: %v", email, err)
	}
	verified, err := te.VerifyCode(ctx, res.AccountID, te.mailer.lastCode(t, res.Email))
	if err != nil {
		t.Fatalf("VerifyCode(%s) failed: %v", email, err)
	}
	return verified
}
