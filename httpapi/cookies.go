package httpapi

import (
	"net/http"
	"time"

	"github.com/adminsuite/authkit"
	"github.com/adminsuite/authkit/middleware"
)

// RefreshCookie carries the refresh token, scoped to the refresh and
// logout endpoints by path.
const RefreshCookie = "refreshToken"

// CookieConfig controls the auth cookies the API sets.
type CookieConfig struct {
	// Secure marks cookies Secure; leave false only for local HTTP dev.
	Secure bool
	// Domain is optional; empty scopes cookies to the serving host.
	Domain string
	// RefreshPath scopes the refresh cookie. Defaults to "/auth".
	RefreshPath string
}

func (c CookieConfig) refreshPath() string {
	if c.RefreshPath == "" {
		return "/auth"
	}
	return c.RefreshPath
}

// setAuthCookies installs the three cookies of a login or refresh: the
// HttpOnly token pair plus the script-readable CSRF token for the
// double-submit check.
func setAuthCookies(w http.ResponseWriter, cfg CookieConfig, tokens authkit.TokenPair, csrfToken string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessCookie,
		Value:    tokens.AccessToken,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    tokens.RefreshToken,
		Path:     cfg.refreshPath(),
		Domain:   cfg.Domain,
		MaxAge:   int(refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookie,
		Value:    csrfToken,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(accessTTL.Seconds()),
		HttpOnly: false,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, c := range []http.Cookie{
		{Name: middleware.AccessCookie, Path: "/"},
		{Name: RefreshCookie, Path: cfg.refreshPath()},
		{Name: middleware.CSRFCookie, Path: "/"},
	} {
		c.Domain = cfg.Domain
		c.MaxAge = -1
		c.HttpOnly = c.Name != middleware.CSRFCookie
		c.Secure = cfg.Secure
		http.SetCookie(w, &c)
	}
}
