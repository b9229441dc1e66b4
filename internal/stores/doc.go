// Package stores implements the expiring single-use token records behind
// the password-reset and email-verification flows.
package stores
