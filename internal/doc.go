// Package internal holds helpers shared by the authkit packages that are
// not part of the public API: token material generation and hashing.
package internal
