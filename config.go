package authkit

import (
	"errors"
	"time"

	"github.com/adminsuite/authkit/password"
	"github.com/adminsuite/authkit/token"
)

// Config is the full service configuration. It is read at Build time and
// treated as immutable afterwards.
type Config struct {
	Token             token.Config
	Password          password.Config
	Lockout           LockoutConfig
	Session           SessionConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Audit             AuditConfig
	Sweep             SweepConfig
}

// LockoutConfig tunes the progressive account lockout.
type LockoutConfig struct {
	// Threshold is the consecutive-failure count that locks the account.
	Threshold int
	// Window is both the failure-counting window and the lock duration.
	Window time.Duration
}

// SessionConfig tunes the session registry. Session lifetime follows the
// refresh-token TTL.
type SessionConfig struct {
	// RedisPrefix namespaces all session keys.
	RedisPrefix string
}

// PasswordResetConfig tunes the forgot/reset flow.
type PasswordResetConfig struct {
	// TTL is the reset token lifetime.
	TTL time.Duration
	// MinResponseTime is the floor applied to ForgotPassword so that the
	// found and not-found paths expose the same latency profile.
	MinResponseTime time.Duration
}

// EmailVerificationConfig tunes the verification flow.
type EmailVerificationConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AuditConfig tunes the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled bool
	// BufferSize is the event channel capacity.
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is
	// full. Dropped counts are observable via Service.AuditDropped.
	DropIfFull bool
}

// SweepConfig tunes the background pruner of stale session-index entries.
// A zero Interval disables the sweeper.
type SweepConfig struct {
	Interval time.Duration
}

// DefaultConfig returns production-leaning defaults. The token signing
// secret must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    14 * 24 * time.Hour,
			SigningMethod: token.MethodHS256,
			Leeway:        30 * time.Second,
		},
		Password: password.DefaultConfig(),
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    15 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix: "ak",
		},
		PasswordReset: PasswordResetConfig{
			TTL:             time.Hour,
			MinResponseTime: 150 * time.Millisecond,
		},
		EmailVerification: EmailVerificationConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Sweep: SweepConfig{
			Interval: time.Hour,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Lockout.Threshold < 1 {
		return errors.New("lockout threshold must be at least 1")
	}
	if cfg.Lockout.Window <= 0 {
		return errors.New("lockout window must be positive")
	}
	if cfg.PasswordReset.TTL <= 0 {
		return errors.New("password reset TTL must be positive")
	}
	if cfg.PasswordReset.MinResponseTime < 0 {
		return errors.New("password reset minimum response time must not be negative")
	}
	if cfg.EmailVerification.Enabled && cfg.EmailVerification.TTL <= 0 {
		return errors.New("email verification TTL must be positive")
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be at least 1")
	}
	if cfg.Sweep.Interval < 0 {
		return errors.New("sweep interval must not be negative")
	}
	return nil
}
