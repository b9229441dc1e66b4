package authkit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotReady is returned when the Service is used before Build
	// completed, or after Close.
	ErrNotReady = errors.New("auth service not ready")

	// ErrInvalidCredentials is deliberately ambiguous: the email may be
	// unknown, the password wrong, or the account inactive. Callers must
	// not learn which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is the base error matched by errors.Is for the
	// *LockedError returned while an account is in the locked state.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountDeactivated is returned when a known, authenticated
	// principal belongs to a deactivated account.
	ErrAccountDeactivated = errors.New("account deactivated")

	// ErrAccountExists is returned by Register on an email conflict.
	ErrAccountExists = errors.New("account already exists")

	// ErrUserNotFound is the UserStore contract error for a missing user.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEmail is the UserStore contract error for a unique-email
	// violation on create.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrTokenExpired mirrors token.ErrExpired at the service boundary:
	// the credential was genuine but its lifetime has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid mirrors token.ErrInvalid: malformed, mis-signed, or
	// wrong-purpose credentials.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrRefreshReuse is returned when a refresh token that was already
	// rotated away is presented again. The session is revoked as a side
	// effect.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrSessionNotFound covers lookups and revocations of sessions that
	// do not exist or are not owned by the caller.
	ErrSessionNotFound = errors.New("session not found")

	// ErrResetTokenInvalid covers every password-reset token failure:
	// malformed, expired, consumed, or wrong secret.
	ErrResetTokenInvalid = errors.New("reset token invalid")

	// ErrVerificationInvalid is the email-verification analogue of
	// ErrResetTokenInvalid.
	ErrVerificationInvalid = errors.New("verification token invalid")

	// ErrValidation is the base error matched by errors.Is for
	// *ValidationError values.
	ErrValidation = errors.New("validation failed")

	// ErrBackendUnavailable wraps infrastructure failures (Redis, user
	// store) that are not the caller's fault.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
)

// ValidationError reports a local-input problem with field-level detail.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidField(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// LockedError carries the unlock metadata for an account in the locked
// state. errors.Is(err, ErrAccountLocked) matches it.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// MinutesRemaining returns the whole minutes until unlock, rounded up and
// never below 1 while the lock holds.
func (e *LockedError) MinutesRemaining() int {
	remaining := time.Until(e.Until)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}
