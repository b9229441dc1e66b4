// Package session implements the per-device session registry backing
// refresh-token rotation, "list my sessions", and targeted revocation.
//
// Multiple concurrent sessions per user are the normal case: the registry
// is a set keyed by session ID, not a singleton per account. Rotation of a
// session's refresh identifier is a compare-and-swap executed server-side
// in Redis, which is what makes stale-token replay detectable.
package session
