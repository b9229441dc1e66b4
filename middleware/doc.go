// Package middleware exposes the HTTP adapters for authkit: a request
// guard that authenticates access tokens and a CSRF filter for the
// cookie-based flows.
//
// The guards translate HTTP semantics into Service calls and inject the
// authenticated user into the request context. They make no auth
// decisions themselves; pass or reject comes from the Service.
package middleware
