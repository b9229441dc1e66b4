package middleware

import (
	"net/http"
	"strings"

	"github.com/adminsuite/authkit/csrf"
)

// CSRFCookie is the double-submit cookie carrying the expected token.
const CSRFCookie = "csrfToken"

// csrfHeaders are checked in order; the first non-empty value wins.
var csrfHeaders = []string{"X-CSRF-Token", "X-XSRF-Token", "CSRF-Token"}

// CSRFConfig controls the CSRF filter.
type CSRFConfig struct {
	// ExemptPaths skip the check entirely. An entry ending in "/" matches
	// as a prefix, anything else matches exactly.
	ExemptPaths []string
}

// CSRF returns middleware enforcing the double-submit pattern: mutating
// requests must carry the csrfToken cookie and echo it in a header (or a
// _csrf form field). Safe methods and exempt paths pass through untouched.
// An absent cookie and an absent or mismatched echo are all the same 403;
// the response never reveals which side failed.
//
// The check is skipped only when the request carries neither auth cookie,
// since a client on pure header auth presents no ambient credential a
// cross-site request could ride on.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) || exemptPath(cfg.ExemptPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if !usesCookieAuth(r) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CSRFCookie)
			if err != nil || !csrf.Equal(cookie.Value, submittedToken(r)) {
				writeError(w, http.StatusForbidden, "CSRF_MISMATCH", "CSRF token missing or invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// usesCookieAuth reports whether the request rides on any cookie the
// browser attaches automatically.
func usesCookieAuth(r *http.Request) bool {
	for _, name := range []string{AccessCookie, CSRFCookie} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return true
		}
	}
	return false
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func exemptPath(exempt []string, path string) bool {
	for _, e := range exempt {
		if strings.HasSuffix(e, "/") {
			if strings.HasPrefix(path, e) {
				return true
			}
			continue
		}
		if path == e {
			return true
		}
	}
	return false
}

func submittedToken(r *http.Request) string {
	for _, h := range csrfHeaders {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return r.PostFormValue("_csrf")
}
