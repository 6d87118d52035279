package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	// KindAccess marks short-lived tokens presented on every request.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived tokens exchanged for new access tokens.
	KindRefresh Kind = "refresh"
)

const (
	// DefaultAccessTTL is the access token lifetime used when Config.AccessTTL is zero.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the refresh token lifetime used when Config.RefreshTTL is zero.
	DefaultRefreshTTL = 24 * time.Hour

	minSecretBytes = 32
)

// ErrTokenInvalid is the only error returned by verification. The cause is
// recoverable with [Reason] for internal logging.
var ErrTokenInvalid = errors.New("invalid token")

// Config defines signing secrets and token policy.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
	Now           func() time.Time
}

// Claims is the payload of both token kinds. Email and Role are empty on
// refresh tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Kind  Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 tokens.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

type verifyError struct {
	cause error
}

func (e *verifyError) Error() string { return ErrTokenInvalid.Error() }

func (e *verifyError) Is(target error) bool { return target == ErrTokenInvalid }

func (e *verifyError) Unwrap() error { return e.cause }

// Reason returns the underlying verification failure wrapped in err, or nil.
func Reason(err error) error {
	var ve *verifyError
	if errors.As(err, &ve) {
		return ve.cause
	}
	return nil
}

// NewManager validates cfg and returns a Manager. Secrets must be at least 32
// bytes and must differ so a refresh token can never verify as an access token.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < minSecretBytes {
		return nil, errors.New("access secret must be at least 32 bytes")
	}
	if len(cfg.RefreshSecret) < minSecretBytes {
		return nil, errors.New("refresh secret must be at least 32 bytes")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)
	return &Manager{config: cfg}, nil
}

// AccessTTL reports the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess signs an access token for subject carrying email and role.
func (m *Manager) IssueAccess(subject, email, role string) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	return m.sign(KindAccess, Claims{Email: email, Role: role}, subject, m.config.AccessTTL, m.config.AccessSecret)
}

// IssueRefresh signs a refresh token for subject.
func (m *Manager) IssueRefresh(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	return m.sign(KindRefresh, Claims{}, subject, m.config.RefreshTTL, m.config.RefreshSecret)
}

// VerifyAccess checks signature, algorithm, issuer, audience, expiry, subject
// and kind of an access token. Every failure is [ErrTokenInvalid].
func (m *Manager) VerifyAccess(token string) (*Claims, error) {
	return m.verify(token, KindAccess, m.config.AccessSecret)
}

// VerifyRefresh is the refresh-token counterpart of [Manager.VerifyAccess].
func (m *Manager) VerifyRefresh(token string) (*Claims, error) {
	return m.verify(token, KindRefresh, m.config.RefreshSecret)
}

func (m *Manager) sign(kind Kind, claims Claims, subject string, ttl time.Duration, secret []byte) (string, error) {
	now := m.config.Now()
	claims.Kind = kind
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    m.config.Issuer,
		Audience:  jwt.ClaimStrings{m.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (m *Manager) verify(token string, kind Kind, secret []byte) (*Claims, error) {
	if token == "" {
		return nil, &verifyError{cause: errors.New("empty token")}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return nil, &verifyError{cause: err}
	}
	if !parsed.Valid {
		return nil, &verifyError{cause: jwt.ErrTokenInvalidClaims}
	}
	if claims.Subject == "" {
		return nil, &verifyError{cause: errors.New("missing subject")}
	}
	if claims.Kind != kind {
		return nil, &verifyError{cause: fmt.Errorf("unexpected token kind %q", claims.Kind)}
	}
	return claims, nil
}
