package httpapi

import (
	"net/http"
	"time"

	"github.com/zuzu-app/authcore"
	"github.com/zuzu-app/authcore/middleware"
)

// RefreshCookie is the cookie carrying the refresh token.
const RefreshCookie = "refreshToken"

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyCodeRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

type resendCodeRequest struct {
	UserID string `json:"userId"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type userView struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Role         string     `json:"role"`
	LastSignInAt *time.Time `json:"lastSignInAt,omitempty"`
}

func toUserView(a authcore.Account) userView {
	return userView{
		ID:           a.ID,
		Email:        a.Email,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Role:         a.Role,
		LastSignInAt: a.LastSignInAt,
	}
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.engine.Signup(r.Context(), authcore.SignupRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.ok(w, r, http.StatusCreated, "Account created. Check your email for the verification code.", map[string]any{
		"userId": res.AccountID,
		"email":  res.Email,
	})
}

// Login handles POST /auth/login. No tokens are issued until the emailed
// code is verified.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.ok(w, r, http.StatusOK, "Verification code sent.", map[string]any{
		"userId":               res.AccountID,
		"requiresVerification": res.RequiresVerification,
	})
}

// VerifyCode handles POST /auth/verify-code and sets both token cookies.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.engine.VerifyCode(r.Context(), req.UserID, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setCookie(w, middleware.AccessCookie, res.AccessToken)
	h.setCookie(w, RefreshCookie, res.RefreshToken)
	h.ok(w, r, http.StatusOK, "Signed in.", map[string]any{
		"user":        toUserView(res.Account),
		"accessToken": res.AccessToken,
	})
}

// ResendCode handles POST /auth/resend-code.
func (h *Handler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req resendCodeRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.engine.ResendCode(r.Context(), req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, "Verification code sent.", nil)
}

// Logout handles POST /auth/logout. It always succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.AccessCookie)
	h.clearCookie(w, RefreshCookie)
	h.ok(w, r, http.StatusOK, "Logged out.", nil)
}

// Refresh handles POST /auth/refresh-token. Only the access cookie is
// replaced.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(RefreshCookie); err == nil {
		token = c.Value
	}

	res, err := h.engine.Refresh(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setCookie(w, middleware.AccessCookie, res.AccessToken)
	h.ok(w, r, http.StatusOK, "Token refreshed.", map[string]any{
		"accessToken": res.AccessToken,
	})
}

// Me handles GET /auth/me behind [middleware.Guard].
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, authcore.ErrUnauthorized)
		return
	}

	account, err := h.engine.CurrentUser(r.Context(), p.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, "", toUserView(*account))
}

// RequestPasswordReset handles POST /auth/password-reset-request. Known and
// unknown emails get the same response.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, "If an account exists for that email, a reset link has been sent.", nil)
}

// ConfirmPasswordReset handles POST /auth/password-reset-confirm.
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.engine.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, "Password has been reset.", nil)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Health(r.Context())
	data := map[string]any{
		"status":         "ok",
		"redis":          st.RedisAvailable,
		"redisLatencyMs": st.RedisLatency.Milliseconds(),
	}
	if !st.RedisAvailable {
		data["status"] = "degraded"
		h.writeJSON(w, r, http.StatusServiceUnavailable, envelope{Success: false, Message: "redis unavailable", Data: data})
		return
	}
	h.ok(w, r, http.StatusOK, "", data)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.opts.CookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
