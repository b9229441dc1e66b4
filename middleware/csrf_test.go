package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/adminsuite/authkit/csrf"
)

func csrfHandler() http.Handler {
	return CSRF(CSRFConfig{ExemptPaths: []string{"/auth/login", "/webhooks/"}})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
}

func newCSRFToken(t *testing.T) string {
	t.Helper()
	tok, err := csrf.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	return tok
}

func TestCSRFSafeMethodsPass(t *testing.T) {
	h := csrfHandler()
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req := httptest.NewRequest(method, "/api/thing", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: newCSRFToken(t)})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s: status = %d, want 204", method, rec.Code)
		}
	}
}

func TestCSRFHeaderMatch(t *testing.T) {
	h := csrfHandler()
	tok := newCSRFToken(t)

	for _, header := range []string{"X-CSRF-Token", "X-XSRF-Token", "CSRF-Token"} {
		req := httptest.NewRequest(http.MethodPost, "/api/thing", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: tok})
		req.Header.Set(header, tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s: status = %d, want 204", header, rec.Code)
		}
	}
}

func TestCSRFFormFieldMatch(t *testing.T) {
	h := csrfHandler()
	tok := newCSRFToken(t)

	req := httptest.NewRequest(http.MethodPost, "/api/thing", strings.NewReader("_csrf="+tok))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: tok})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestCSRFMismatchRejected(t *testing.T) {
	h := csrfHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/thing", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: newCSRFToken(t)})
	req.Header.Set("X-CSRF-Token", newCSRFToken(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCSRFMissingHeaderRejected(t *testing.T) {
	h := csrfHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/thing", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: newCSRFToken(t)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCSRFBearerOnlyClientPasses(t *testing.T) {
	// No auth cookies at all means no ambient credential, so header-auth
	// clients are not forced through the double-submit dance.
	h := csrfHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/thing", nil)
	req.Header.Set("Authorization", "Bearer some-access-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestCSRFCookieAuthWithoutTokenRejected(t *testing.T) {
	// A client holding the access cookie is on cookie auth. Mutations
	// without the CSRF cookie, or without its echo, must stop here.
	h := csrfHandler()

	cases := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no csrf cookie, no header", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "jwt"})
		}},
		{"no csrf cookie, header only", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "jwt"})
			r.Header.Set("X-CSRF-Token", "anything")
		}},
		{"empty csrf cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "jwt"})
			r.AddCookie(&http.Cookie{Name: CSRFCookie, Value: ""})
		}},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/thing", nil)
		tc.setup(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: status = %d, want 403", tc.name, rec.Code)
		}
	}
}

func TestCSRFExemptions(t *testing.T) {
	h := csrfHandler()

	cases := []struct {
		path string
		want int
	}{
		{"/auth/login", http.StatusNoContent},        // exact match
		{"/auth/login/extra", http.StatusForbidden},  // exact means exact
		{"/webhooks/stripe", http.StatusNoContent},   // prefix match
		{"/webhooks/github/x", http.StatusNoContent}, // deep prefix match
		{"/api/thing", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, tc.path, nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: newCSRFToken(t)})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.path, rec.Code, tc.want)
		}
	}
}
