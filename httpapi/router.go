package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/zuzu-app/authcore"
	"github.com/zuzu-app/authcore/middleware"
)

// Engine is the part of *authcore.Engine the routes call.
type Engine interface {
	Signup(ctx context.Context, req authcore.SignupRequest) (*authcore.SignupResult, error)
	Login(ctx context.Context, email, password string) (*authcore.LoginResult, error)
	VerifyCode(ctx context.Context, accountID, code string) (*authcore.VerifyResult, error)
	ResendCode(ctx context.Context, accountID string) error
	Refresh(ctx context.Context, refreshToken string) (*authcore.RefreshResult, error)
	Authenticate(ctx context.Context, accessToken string) (*authcore.Principal, error)
	CurrentUser(ctx context.Context, accountID string) (*authcore.Account, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	Health(ctx context.Context) authcore.HealthStatus
}

// Limit is one per-IP request budget. A zero Limit disables it.
type Limit struct {
	Limit  int
	Window time.Duration
}

// RateLimits are the per-route HTTP budgets applied in front of the engine's
// own throttles.
type RateLimits struct {
	Signup       Limit
	Login        Limit
	VerifyCode   Limit
	ResendCode   Limit
	Refresh      Limit
	ResetRequest Limit
	ResetConfirm Limit
}

// DefaultRateLimits returns conservative per-IP budgets.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Signup:       Limit{Limit: 10, Window: time.Minute},
		Login:        Limit{Limit: 20, Window: time.Minute},
		VerifyCode:   Limit{Limit: 20, Window: time.Minute},
		ResendCode:   Limit{Limit: 5, Window: time.Minute},
		Refresh:      Limit{Limit: 60, Window: time.Minute},
		ResetRequest: Limit{Limit: 5, Window: time.Minute},
		ResetConfirm: Limit{Limit: 10, Window: time.Minute},
	}
}

// Options configures [NewRouter].
type Options struct {
	Logger *slog.Logger
	// SecureCookies sets the Secure attribute; enable it in production.
	SecureCookies bool
	// CookieMaxAge defaults to 24h.
	CookieMaxAge time.Duration
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	// Redis backs the HTTP rate limits. Nil disables them.
	Redis      redis.UniversalClient
	RateLimits RateLimits
	// Metrics is served on GET /metrics when set.
	Metrics http.Handler
}

// Handler holds the route handlers.
type Handler struct {
	engine Engine
	logger *slog.Logger
	opts   Options
}

// NewRouter builds the HTTP surface for engine.
func NewRouter(engine Engine, opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = 24 * time.Hour
	}
	h := &Handler{engine: engine, logger: opts.Logger, opts: opts}

	r := mux.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
		middleware.Recovery(opts.Logger, h.writeError),
		middleware.ClientInfo(opts.TrustProxy),
	)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h.writeJSON(w, req, http.StatusNotFound, envelope{Message: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h.writeJSON(w, req, http.StatusMethodNotAllowed, envelope{Message: "method not allowed"})
	})

	limit := func(name string, l Limit, next http.HandlerFunc) http.Handler {
		return middleware.RateLimit(opts.Redis, middleware.RateLimitConfig{
			Name:       name,
			Limit:      l.Limit,
			Window:     l.Window,
			TrustProxy: opts.TrustProxy,
		}, opts.Logger, h.writeError)(next)
	}
	rl := opts.RateLimits

	auth := r.PathPrefix("/auth").Subrouter()
	auth.Handle("/signup", limit("signup", rl.Signup, h.Signup)).Methods(http.MethodPost)
	auth.Handle("/login", limit("login", rl.Login, h.Login)).Methods(http.MethodPost)
	auth.Handle("/verify-code", limit("verify_code", rl.VerifyCode, h.VerifyCode)).Methods(http.MethodPost)
	auth.Handle("/resend-code", limit("resend_code", rl.ResendCode, h.ResendCode)).Methods(http.MethodPost)
	auth.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	auth.Handle("/refresh-token", limit("refresh", rl.Refresh, h.Refresh)).Methods(http.MethodPost)
	auth.Handle("/me", middleware.Guard(engine, h.writeError)(http.HandlerFunc(h.Me))).Methods(http.MethodGet)
	auth.Handle("/password-reset-request", limit("reset_request", rl.ResetRequest, h.RequestPasswordReset)).Methods(http.MethodPost)
	auth.Handle("/password-reset-confirm", limit("reset_confirm", rl.ResetConfirm, h.ConfirmPasswordReset)).Methods(http.MethodPost)

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	return r
}
