package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zuzu-app/authcore"
	"github.com/zuzu-app/authcore/accountstore"
	"github.com/zuzu-app/authcore/mail"
	"github.com/zuzu-app/authcore/middleware"
)

const (
	alicePassword = "Password123!"
	bobPassword   = "Tr0ub4dor&3"
)

var (
	codePattern  = regexp.MustCompile(`letter-spacing: 4px;">(\d{6})<`)
	tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t        *testing.T
	router   *mux.Router
	engine   *authcore.Engine
	accounts *accountstore.Memory
	mailer   *mail.LogMailer
	clock    *clock
	mr       *miniredis.Miniredis
	rdb      *redis.Client
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdef-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdef-012345678")
	cfg.Password.Cost = 4
	cfg.Audit.Enabled = false

	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	accounts := accountstore.NewMemory(c.Now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := mail.NewLogMailer(logger, 50)

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithMailer(mailer).
		WithLogger(logger).
		WithClock(c.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	opts := Options{Logger: logger}
	if mutate != nil {
		mutate(&opts)
	}
	if opts.Redis == nil && opts.RateLimits != (RateLimits{}) {
		opts.Redis = rdb
	}

	return &harness{
		t:        t,
		router:   NewRouter(engine, opts),
		engine:   engine,
		accounts: accounts,
		mailer:   mailer,
		clock:    c,
		mr:       mr,
		rdb:      rdb,
	}
}

type response struct {
	Status  int
	Header  http.Header
	Cookies map[string]*http.Cookie
	Body    struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
}

func (r *response) data(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.Body.Data, &out))
	return out
}

func (h *harness) do(method, path string, body any, cookies ...*http.Cookie) *response {
	h.t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.10:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)

	res := &response{Status: rr.Code, Header: rr.Header(), Cookies: map[string]*http.Cookie{}}
	for _, c := range rr.Result().Cookies() {
		res.Cookies[c.Name] = c
	}
	if rr.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(rr.Body.Bytes(), &res.Body), rr.Body.String())
	}
	return res
}

func (h *harness) lastMail(to string) mail.Message {
	h.t.Helper()
	sent := h.mailer.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].To == to {
			return sent[i]
		}
	}
	h.t.Fatalf("no mail sent to %s", to)
	return mail.Message{}
}

func (h *harness) lastCode(to string) string {
	h.t.Helper()
	m := codePattern.FindStringSubmatch(h.lastMail(to).HTML)
	require.NotNil(h.t, m, "no code in mail")
	return m[1]
}

func (h *harness) signupAndVerify(email, password string) (string, *response) {
	h.t.Helper()
	res := h.do(http.MethodPost, "/auth/signup", map[string]string{
		"email": email, "password": password, "firstName": "Test", "lastName": "User",
	})
	require.Equal(h.t, http.StatusCreated, res.Status)
	userID := res.data(h.t)["userId"].(string)

	res = h.do(http.MethodPost, "/auth/verify-code", map[string]string{"userId": userID, "code": h.lastCode(email)})
	require.Equal(h.t, http.StatusOK, res.Status)
	return userID, res
}

func TestAliceSignupEndToEnd(t *testing.T) {
	h := newHarness(t, nil)

	res := h.do(http.MethodPost, "/auth/signup", map[string]string{
		"email":     "alice@example.com",
		"password":  alicePassword,
		"firstName": "Alice",
		"lastName":  "Liddell",
	})
	require.Equal(t, http.StatusCreated, res.Status)
	assert.True(t, res.Body.Success)
	data := res.data(t)
	userID, _ := data["userId"].(string)
	require.NotEmpty(t, userID)
	assert.Equal(t, "alice@example.com", data["email"])
	assert.Empty(t, res.Cookies, "signup must not set token cookies")

	code := h.lastCode("alice@example.com")
	res = h.do(http.MethodPost, "/auth/verify-code", map[string]string{"userId": userID, "code": code})
	require.Equal(t, http.StatusOK, res.Status)
	data = res.data(t)
	user := data["user"].(map[string]any)
	assert.Equal(t, userID, user["id"])
	assert.Equal(t, "Alice", user["firstName"])
	assert.Equal(t, "user", user["role"])
	assert.NotEmpty(t, data["accessToken"])

	access := res.Cookies[middleware.AccessCookie]
	refresh := res.Cookies[RefreshCookie]
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	for _, c := range []*http.Cookie{access, refresh} {
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.Equal(t, 86400, c.MaxAge)
		assert.Equal(t, "/", c.Path)
		assert.False(t, c.Secure)
	}

	res = h.do(http.MethodGet, "/auth/me", nil, access)
	require.Equal(t, http.StatusOK, res.Status)
	me := res.data(t)
	assert.Equal(t, "alice@example.com", me["email"])
	assert.NotEmpty(t, me["lastSignInAt"])

	// Replaying the code fails.
	res = h.do(http.MethodPost, "/auth/verify-code", map[string]string{"userId": userID, "code": code})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "invalid or expired code", res.Body.Message)
}

func TestSignupValidationErrorsListReasons(t *testing.T) {
	h := newHarness(t, nil)

	res := h.do(http.MethodPost, "/auth/signup", map[string]string{
		"email": "weak@example.com", "password": "password", "firstName": "W", "lastName": "K",
	})
	require.Equal(t, http.StatusBadRequest, res.Status)
	assert.False(t, res.Body.Success)
	data := res.data(t)
	assert.Equal(t, "password_policy", data["code"])
	assert.ElementsMatch(t, []any{
		"Password must contain at least one uppercase letter",
		"Password must contain at least one number",
		"Password must contain at least one special character",
	}, data["errors"])

	res = h.do(http.MethodPost, "/auth/signup", nil)
	require.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, []any{"request body is required"}, res.data(t)["errors"])
}

func TestSignupDuplicateEmail(t *testing.T) {
	h := newHarness(t, nil)
	h.signupAndVerify("dup@example.com", alicePassword)

	res := h.do(http.MethodPost, "/auth/signup", map[string]string{
		"email": "DUP@example.com", "password": alicePassword, "firstName": "D", "lastName": "U",
	})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "email_taken", res.data(t)["code"])
}

func TestBobLockoutEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.signupAndVerify("bob@example.com", bobPassword)

	for i := 0; i < 5; i++ {
		res := h.do(http.MethodPost, "/auth/login", map[string]string{"email": "bob@example.com", "password": "wrong"})
		require.Equal(t, http.StatusUnauthorized, res.Status, "attempt %d", i+1)
		assert.Equal(t, "invalid credentials", res.Body.Message)
	}

	res := h.do(http.MethodPost, "/auth/login", map[string]string{"email": "bob@example.com", "password": bobPassword})
	require.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "invalid credentials", res.Body.Message)
	assert.Equal(t, "invalid_credentials", res.data(t)["code"])

	h.clock.Advance(15*time.Minute + time.Second)

	res = h.do(http.MethodPost, "/auth/login", map[string]string{"email": "bob@example.com", "password": bobPassword})
	require.Equal(t, http.StatusOK, res.Status)
	data := res.data(t)
	assert.Equal(t, true, data["requiresVerification"])
	assert.Empty(t, res.Cookies, "login must not issue tokens")

	userID := data["userId"].(string)
	res = h.do(http.MethodPost, "/auth/verify-code", map[string]string{"userId": userID, "code": h.lastCode("bob@example.com")})
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestRefreshKeepsRefreshCookie(t *testing.T) {
	h := newHarness(t, nil)
	_, verified := h.signupAndVerify("carol@example.com", alicePassword)
	refresh := verified.Cookies[RefreshCookie]

	res := h.do(http.MethodPost, "/auth/refresh-token", nil, refresh)
	require.Equal(t, http.StatusOK, res.Status)
	assert.NotEmpty(t, res.data(t)["accessToken"])
	require.NotNil(t, res.Cookies[middleware.AccessCookie])
	assert.Nil(t, res.Cookies[RefreshCookie])

	res = h.do(http.MethodPost, "/auth/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	res = h.do(http.MethodPost, "/auth/refresh-token", nil, verified.Cookies[middleware.AccessCookie])
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestMeRequiresToken(t *testing.T) {
	h := newHarness(t, nil)
	_, verified := h.signupAndVerify("dave@example.com", alicePassword)

	res := h.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "authentication required", res.Body.Message)

	res = h.do(http.MethodGet, "/auth/me", nil, &http.Cookie{Name: middleware.AccessCookie, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	h.clock.Advance(16 * time.Minute)
	res = h.do(http.MethodGet, "/auth/me", nil, verified.Cookies[middleware.AccessCookie])
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestLogoutClearsCookies(t *testing.T) {
	h := newHarness(t, nil)

	res := h.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.True(t, res.Body.Success)
	for _, name := range []string{middleware.AccessCookie, RefreshCookie} {
		c := res.Cookies[name]
		require.NotNil(t, c, name)
		assert.Equal(t, "", c.Value)
		assert.Less(t, c.MaxAge, 0)
	}
}

func TestResendCode(t *testing.T) {
	h := newHarness(t, nil)

	res := h.do(http.MethodPost, "/auth/signup", map[string]string{
		"email": "erin@example.com", "password": alicePassword, "firstName": "E", "lastName": "R",
	})
	require.Equal(t, http.StatusCreated, res.Status)
	userID := res.data(t)["userId"].(string)
	first := h.lastCode("erin@example.com")

	res = h.do(http.MethodPost, "/auth/resend-code", map[string]string{"userId": userID})
	require.Equal(t, http.StatusOK, res.Status)
	second := h.lastCode("erin@example.com")

	if first != second {
		res = h.do(http.MethodPost, "/auth/verify-code", map[string]string{"userId": userID, "code": first})
		assert.Equal(t, http.StatusUnauthorized, res.Status)
	}
	res = h.do(http.MethodPost, "/auth/verify-code", map[string]string{"userId": userID, "code": second})
	assert.Equal(t, http.StatusOK, res.Status)

	res = h.do(http.MethodPost, "/auth/resend-code", map[string]string{"userId": "no-such-user"})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestPasswordResetEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.signupAndVerify("frank@example.com", alicePassword)

	known := h.do(http.MethodPost, "/auth/password-reset-request", map[string]string{"email": "frank@example.com"})
	unknown := h.do(http.MethodPost, "/auth/password-reset-request", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, known.Status)
	assert.Equal(t, known.Status, unknown.Status)
	assert.Equal(t, known.Body, unknown.Body)

	m := tokenPattern.FindStringSubmatch(h.lastMail("frank@example.com").HTML)
	require.NotNil(t, m)
	token := m[1]

	res := h.do(http.MethodPost, "/auth/password-reset-confirm", map[string]string{"token": token, "password": "weak"})
	require.Equal(t, http.StatusBadRequest, res.Status)

	res = h.do(http.MethodPost, "/auth/password-reset-confirm", map[string]string{"token": token, "password": "NewPassw0rd!"})
	require.Equal(t, http.StatusOK, res.Status)

	res = h.do(http.MethodPost, "/auth/password-reset-confirm", map[string]string{"token": token, "password": "NewPassw0rd!"})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "invalid or expired reset token", res.Body.Message)

	res = h.do(http.MethodPost, "/auth/login", map[string]string{"email": "frank@example.com", "password": "NewPassw0rd!"})
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestHTTPRateLimitReturnsRetryAfter(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.RateLimits = RateLimits{Login: Limit{Limit: 2, Window: time.Minute}}
	})

	body := map[string]string{"email": "nobody@example.com", "password": "x"}
	for i := 0; i < 2; i++ {
		res := h.do(http.MethodPost, "/auth/login", body)
		assert.Equal(t, http.StatusUnauthorized, res.Status)
	}
	res := h.do(http.MethodPost, "/auth/login", body)
	require.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "60", res.Header.Get("Retry-After"))
	assert.Equal(t, "too many requests", res.Body.Message)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"message":"metrics"}`))
		})
	})

	res := h.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "ok", res.data(t)["status"])

	res = h.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "metrics", res.Body.Message)

	h.mr.Close()
	res = h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, "degraded", res.data(t)["status"])
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, nil)
	res := h.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.False(t, res.Body.Success)
}

func TestWriteErrorStatusByKind(t *testing.T) {
	h := &Handler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{authcore.ErrValidation, http.StatusBadRequest, "validation_failed"},
		{authcore.ErrAccountDisabled, http.StatusUnauthorized, "invalid_credentials"},
		{authcore.ErrCodeInvalid, http.StatusUnauthorized, "code_invalid"},
		{authcore.ErrForbidden, http.StatusForbidden, "forbidden"},
		{authcore.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
		{authcore.ErrRateLimited.WithRetryAfter(90 * time.Second), http.StatusTooManyRequests, "rate_limited"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rr.Code)
			var body struct {
				Success bool      `json:"success"`
				Message string    `json:"message"`
				Data    errorData `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Data.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body.Message)
				assert.NotContains(t, rr.Body.String(), "unexpected EOF")
			}
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, "90", rr.Header().Get("Retry-After"))
			}
		})
	}
}
