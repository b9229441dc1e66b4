// Package limiters holds the brute-force defenses that gate login:
// currently the per-account progressive lockout tracker.
package limiters
