package authcore

import (
	"context"
	"time"

	"github.com/zuzu-app/authcore/internal/flows"
)

// DefaultRole is assigned to accounts created through [Engine.Signup].
const DefaultRole = "user"

// Account is the identity record owned by the [AccountStore].
//
// The engine reads every field but only ever writes PasswordHash and
// LastSignInAt.
type Account struct {
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

// CreateAccountInput is passed to [AccountStore.Create]. Email is already
// normalized and PasswordHash already computed.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
}

// AccountStore is the external record store.
//
// Lookups that miss return [ErrAccountNotFound]. Create returns
// [ErrEmailTaken] when the normalized email already exists. Implementations
// must be safe for concurrent use.
//
//	Implementations: accountstore.Memory, accountstore.SQL
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, input CreateAccountInput) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	RecordSignIn(ctx context.Context, id string, at time.Time) error
}

// Mailer is the one-shot transactional email sender.
//
//	Implementations: mail.SMTPMailer, mail.LogMailer
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// State is the position of one login attempt in the session state machine.
type State = flows.State

const (
	StateAnonymous       = flows.StateAnonymous
	StatePasswordPending = flows.StatePasswordPending
	StateCodePending     = flows.StateCodePending
	StateAuthenticated   = flows.StateAuthenticated
)

// SignupRequest carries the fields of a signup form.
type SignupRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SignupResult is returned by [Engine.Signup]. The new account still has to
// complete [Engine.VerifyCode].
type SignupResult struct {
	AccountID string
	Email     string
	State     State
}

// LoginResult is returned by [Engine.Login] after the password step.
type LoginResult struct {
	AccountID            string
	RequiresVerification bool
	State                State
}

// VerifyResult is returned by [Engine.VerifyCode] on success.
type VerifyResult struct {
	Account      Account
	AccessToken  string
	RefreshToken string
	State        State
}

// RefreshResult is returned by [Engine.Refresh]. The refresh token is not
// rotated.
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Principal is the identity carried by a verified access token.
type Principal struct {
	AccountID string
	Email     string
	Role      string
	ExpiresAt time.Time
}
