// Package httpapi serves the auth service as a JSON API over chi. All
// responses share one envelope: {"success": true, "data": ...} or
// {"success": false, "error": {"code", "message", "details"}}.
//
// Browser clients get the token pair in HttpOnly cookies plus a readable
// CSRF cookie for the double-submit check; API clients can use the
// Authorization header and body tokens instead. Both work against every
// endpoint.
package httpapi
