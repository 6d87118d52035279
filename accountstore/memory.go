package accountstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zuzu-app/authcore"
)

// Memory is a map-backed account store. The zero value is not usable; call
// [NewMemory].
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]authcore.Account
	byEmail map[string]string
	now     func() time.Time
}

// NewMemory returns an empty store. A nil clock defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		byID:    make(map[string]authcore.Account),
		byEmail: make(map[string]string),
		now:     now,
	}
}

func (m *Memory) GetByEmail(_ context.Context, email string) (authcore.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return authcore.Account{}, authcore.ErrAccountNotFound
	}
	return copyAccount(m.byID[id]), nil
}

func (m *Memory) GetByID(_ context.Context, id string) (authcore.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return authcore.Account{}, authcore.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (m *Memory) Create(_ context.Context, in authcore.CreateAccountInput) (authcore.Account, error) {
	email := normalizeEmail(in.Email)
	role := in.Role
	if role == "" {
		role = authcore.DefaultRole
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[email]; ok {
		return authcore.Account{}, authcore.ErrEmailTaken
	}

	now := m.now().UTC()
	a := authcore.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byID[a.ID] = a
	m.byEmail[email] = a.ID
	return copyAccount(a), nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	return m.update(id, func(a *authcore.Account) {
		a.PasswordHash = passwordHash
	})
}

func (m *Memory) RecordSignIn(_ context.Context, id string, at time.Time) error {
	at = at.UTC()
	return m.update(id, func(a *authcore.Account) {
		a.LastSignInAt = &at
	})
}

// SetDisabled enables or disables an account. Disabled accounts cannot log
// in, verify codes, refresh or reset their password.
func (m *Memory) SetDisabled(_ context.Context, id string, disabled bool) error {
	return m.update(id, func(a *authcore.Account) {
		a.Disabled = disabled
	})
}

// Len reports the number of stored accounts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *Memory) update(id string, fn func(*authcore.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	fn(&a)
	a.UpdatedAt = m.now().UTC()
	m.byID[id] = a
	return nil
}

func copyAccount(a authcore.Account) authcore.Account {
	if a.LastSignInAt != nil {
		at := *a.LastSignInAt
		a.LastSignInAt = &at
	}
	return a
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
