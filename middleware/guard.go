package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zuzu-app/authcore"
)

// AccessCookie is the cookie carrying the access token.
const AccessCookie = "accessToken"

// Authenticator verifies access tokens. *authcore.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*authcore.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [Guard] or [Optional].
func PrincipalFromContext(ctx context.Context) (*authcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authcore.Principal)
	return p, ok && p != nil
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *authcore.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard rejects requests without a valid access token.
func Guard(auth Authenticator, onError ErrorHandler) func(http.Handler) http.Handler {
	onError = orDefault(onError)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				onError(w, r, authcore.ErrUnauthorized)
				return
			}

			token, ok := AccessToken(r)
			if !ok {
				onError(w, r, authcore.ErrUnauthorized)
				return
			}

			p, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				onError(w, r, authcore.AsError(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Optional attaches the principal when the request carries a valid access
// token. Missing or invalid tokens are ignored.
func Optional(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth != nil {
				if token, ok := AccessToken(r); ok {
					if p, err := auth.Authenticate(r.Context(), token); err == nil {
						r = r.WithContext(WithPrincipal(r.Context(), p))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits principals whose role is one of roles.
func RequireRole(onError ErrorHandler, roles ...string) func(http.Handler) http.Handler {
	onError = orDefault(onError)
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				onError(w, r, authcore.ErrUnauthorized)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				onError(w, r, authcore.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessToken extracts the access token from the accessToken cookie, falling
// back to an Authorization bearer header.
func AccessToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
