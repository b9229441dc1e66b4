package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/adminsuite/authkit"
	"github.com/adminsuite/authkit/middleware"
)

// csrfExemptPaths lists the endpoints reachable without a CSRF proof: the
// flows that establish or tear down auth state with their own secrets,
// plus webhooks and health, which never ride on cookies.
var csrfExemptPaths = []string{
	"/auth/register",
	"/auth/login",
	"/auth/refresh",
	"/auth/logout",
	"/auth/forgot-password",
	"/auth/reset-password",
	"/auth/verify-email",
	"/health",
	"/webhooks/",
}

// NewRouter wires the full API surface.
func NewRouter(svc *authkit.Service, cfg authkit.Config, cookies CookieConfig) *chi.Mux {
	h := NewHandler(svc, cfg, cookies)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CSRF(middleware.CSRFConfig{ExemptPaths: csrfExemptPaths}))

	r.Get("/health", h.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.handleLogout)
		r.Post("/forgot-password", h.handleForgotPassword)
		r.Post("/reset-password", h.handleResetPassword)
		r.Post("/verify-email", h.handleVerifyEmail)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(svc))

		r.Get("/auth/me", h.handleMe)
		r.Post("/auth/change-password", h.handleChangePassword)
		r.Post("/auth/resend-verification", h.handleResendVerification)

		r.Route("/auth/sessions", func(r chi.Router) {
			r.Get("/", h.handleListSessions)
			r.Delete("/others", h.handleRevokeOtherSessions)
			r.Delete("/{sessionID}", h.handleRevokeSession)
		})
	})

	return r
}
