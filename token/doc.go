// Package token signs and verifies the compact access/refresh token pair.
//
// Both token kinds share a payload shape but carry an explicit purpose
// claim, so a leaked refresh token can never be replayed as an access token.
// Expiry and invalidity are distinct failure kinds because callers respond
// differently: expired prompts a refresh, invalid forces a re-login.
package token
