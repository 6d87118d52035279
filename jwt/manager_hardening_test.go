package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessSecret  = []byte("test-access-secret-0123456789abcdef")
	testRefreshSecret = []byte("test-refresh-secret-0123456789abcdef")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "zuzu-auth",
		Audience:      "zuzu-app",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "short access secret", cfg: Config{AccessSecret: []byte("short"), RefreshSecret: testRefreshSecret, Issuer: "i", Audience: "a"}},
		{name: "short refresh secret", cfg: Config{AccessSecret: testAccessSecret, RefreshSecret: []byte("short"), Issuer: "i", Audience: "a"}},
		{name: "shared secret", cfg: Config{AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret, Issuer: "i", Audience: "a"}},
		{name: "missing issuer", cfg: Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, Audience: "a"}},
		{name: "missing audience", cfg: Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, Issuer: "i"}},
		{name: "negative ttl", cfg: Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, Issuer: "i", Audience: "a", AccessTTL: -time.Second}},
		{name: "excess leeway", cfg: Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, Issuer: "i", Audience: "a", Leeway: time.Hour}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestIssueAndVerifyAccess(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	token, err := m.IssueAccess("u1", "alice@example.com", "user")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	claims, err := m.VerifyAccess(token)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "alice@example.com" || claims.Role != "user" || claims.Kind != KindAccess {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if got := claims.ExpiresAt.Time.Sub(clock.now); got != 15*time.Minute {
		t.Fatalf("expected 15m access lifetime, got %v", got)
	}
}

func TestIssueAndVerifyRefresh(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	token, err := m.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	claims, err := m.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if claims.Subject != "u1" || claims.Kind != KindRefresh || claims.Email != "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if got := claims.ExpiresAt.Time.Sub(clock.now); got != 24*time.Hour {
		t.Fatalf("expected 24h refresh lifetime, got %v", got)
	}
}

func TestAccessExpiryBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	token, err := m.IssueAccess("u1", "alice@example.com", "user")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	issued := clock.now
	clock.now = issued.Add(15*time.Minute - time.Second)
	if _, err := m.VerifyAccess(token); err != nil {
		t.Fatalf("expected token valid 1s before expiry: %v", err)
	}

	clock.now = issued.Add(15*time.Minute + time.Second)
	if _, err := m.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid 1s after expiry, got %v", err)
	}
	if !errors.Is(Reason(err), gjwt.ErrTokenExpired) {
		t.Fatalf("expected expiry reason, got %v", Reason(err))
	}
}

func TestKindsAreNotInterchangeable(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	access, err := m.IssueAccess("u1", "alice@example.com", "user")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	refresh, err := m.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if _, err := m.VerifyRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access token rejected as refresh, got %v", err)
	}
	if _, err := m.VerifyAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token rejected as access, got %v", err)
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	sign := func(method gjwt.SigningMethod, key interface{}, claims Claims) string {
		t.Helper()
		tok, err := gjwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return tok
	}
	base := func() Claims {
		return Claims{
			Kind: KindAccess,
			RegisteredClaims: gjwt.RegisteredClaims{
				Subject:   "u1",
				Issuer:    "zuzu-auth",
				Audience:  gjwt.ClaimStrings{"zuzu-app"},
				ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
			},
		}
	}

	wrongIssuer := base()
	wrongIssuer.Issuer = "someone-else"
	wrongAudience := base()
	wrongAudience.Audience = gjwt.ClaimStrings{"other-app"}
	noSubject := base()
	noSubject.Subject = ""
	noExpiry := base()
	noExpiry.ExpiresAt = nil

	tests := map[string]string{
		"wrong secret":   sign(gjwt.SigningMethodHS256, []byte("another-secret-0123456789abcdefghij"), base()),
		"wrong issuer":   sign(gjwt.SigningMethodHS256, testAccessSecret, wrongIssuer),
		"wrong audience": sign(gjwt.SigningMethodHS256, testAccessSecret, wrongAudience),
		"no subject":     sign(gjwt.SigningMethodHS256, testAccessSecret, noSubject),
		"no expiry":      sign(gjwt.SigningMethodHS256, testAccessSecret, noExpiry),
		"hs384":          sign(gjwt.SigningMethodHS384, testAccessSecret, base()),
		"none":           sign(gjwt.SigningMethodNone, gjwt.UnsafeAllowNoneSignatureType, base()),
		"garbage":        "not.a.jwt",
		"empty":          "",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			claims, err := m.VerifyAccess(token)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Fatalf("expected ErrTokenInvalid, got %v", err)
			}
			if claims != nil {
				t.Fatal("expected nil claims on failure")
			}
			if err.Error() != "invalid token" {
				t.Fatalf("expected opaque message, got %q", err.Error())
			}
		})
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	m := newTestManager(t, &fakeClock{now: time.Now()})

	if _, err := m.IssueAccess("", "a@example.com", "user"); err == nil || !strings.Contains(err.Error(), "subject") {
		t.Fatalf("expected subject error, got %v", err)
	}
	if _, err := m.IssueRefresh(""); err == nil {
		t.Fatal("expected subject error for refresh")
	}
}
