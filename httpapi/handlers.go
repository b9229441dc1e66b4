package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adminsuite/authkit"
	"github.com/adminsuite/authkit/middleware"
)

// Handler exposes the auth service over JSON/HTTP. Token material moves
// through HttpOnly cookies for browser clients; non-browser clients may
// instead use the Authorization header and request-body tokens, and both
// styles are accepted everywhere.
type Handler struct {
	svc        *authkit.Service
	cookies    CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewHandler(svc *authkit.Service, cfg authkit.Config, cookies CookieConfig) *Handler {
	return &Handler{
		svc:        svc,
		cookies:    cookies,
		accessTTL:  cfg.Token.AccessTTL,
		refreshTTL: cfg.Token.RefreshTTL,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid request body", nil)
		return
	}

	user, err := h.svc.Register(requestContext(r), authkit.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusCreated, map[string]any{"user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid request body", nil)
		return
	}

	out, err := h.svc.Login(requestContext(r), authkit.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		DeviceID: req.DeviceID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	switch out.Status {
	case authkit.LoginOK:
		setAuthCookies(w, h.cookies, out.Tokens, out.CSRFToken, h.accessTTL, h.refreshTTL)
		respond(w, http.StatusOK, map[string]any{
			"user":      out.User,
			"tokens":    out.Tokens,
			"csrfToken": out.CSRFToken,
			"sessionId": out.SessionID,
		})
	case authkit.LoginLocked:
		respondLocked(w, &authkit.LockedError{Until: out.LockedUntil})
	case authkit.LoginDeactivated:
		respondError(w, http.StatusForbidden, CodeUserDeactivated, "account is deactivated", nil)
	default:
		respondError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password", nil)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshToken prefers the cookie and falls back to the JSON body so
// non-browser clients can refresh too.
func refreshToken(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookie); err == nil && c.Value != "" {
		return c.Value
	}
	var req refreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return req.RefreshToken
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := refreshToken(r)
	if raw == "" {
		respondError(w, http.StatusUnauthorized, CodeInvalidToken, "refresh token required", nil)
		return
	}

	res, err := h.svc.Refresh(requestContext(r), raw)
	if err != nil {
		clearAuthCookies(w, h.cookies)
		respondServiceError(w, err)
		return
	}

	setAuthCookies(w, h.cookies, res.Tokens, res.CSRFToken, h.accessTTL, h.refreshTTL)
	respond(w, http.StatusOK, map[string]any{
		"user":      res.User,
		"tokens":    res.Tokens,
		"csrfToken": res.CSRFToken,
		"sessionId": res.SessionID,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(requestContext(r), refreshToken(r)); err != nil {
		respondServiceError(w, err)
		return
	}
	clearAuthCookies(w, h.cookies)
	respond(w, http.StatusOK, map[string]any{"loggedOut": true})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid request body", nil)
		return
	}

	if err := h.svc.ForgotPassword(requestContext(r), req.Email); err != nil {
		respondServiceError(w, err)
		return
	}
	// Same answer whether or not the account exists.
	respond(w, http.StatusOK, map[string]any{
		"message": "if the email exists, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid request body", nil)
		return
	}

	if err := h.svc.ResetPassword(requestContext(r), req.Token, req.NewPassword); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"message": "password has been reset"})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid request body", nil)
		return
	}

	user, err := h.svc.VerifyEmail(requestContext(r), req.Token)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeInvalidToken, "authentication required", nil)
		return
	}
	if err := h.svc.RequestEmailVerification(requestContext(r), user.ID); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"message": "verification email sent"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeInvalidToken, "authentication required", nil)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid request body", nil)
		return
	}

	if err := h.svc.ChangePassword(requestContext(r), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"message": "password changed"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeInvalidToken, "authentication required", nil)
		return
	}
	respond(w, http.StatusOK, map[string]any{"user": user.Public()})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeInvalidToken, "authentication required", nil)
		return
	}

	sessions, err := h.svc.ListSessions(requestContext(r), user.ID, cookieValue(r, RefreshCookie))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeInvalidToken, "authentication required", nil)
		return
	}

	if err := h.svc.RevokeSession(requestContext(r), user.ID, chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handler) handleRevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeInvalidToken, "authentication required", nil)
		return
	}

	// Bearer clients carry no refresh cookie; the access token's session
	// claim still identifies which session must survive.
	removed, err := h.svc.RevokeOtherSessions(requestContext(r), id.User.ID, cookieValue(r, RefreshCookie), id.Claims.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"revoked": removed})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// requestContext decorates the request context with the caller's IP and
// user agent so sessions and audit events carry them. RealIP middleware
// has already folded X-Forwarded-For into RemoteAddr by this point.
func requestContext(r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ctx := authkit.WithClientIP(r.Context(), ip)
	return authkit.WithUserAgent(ctx, r.UserAgent())
}
