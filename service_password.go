package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adminsuite/authkit/internal"
	"github.com/adminsuite/authkit/internal/stores"
)

// ChangePassword re-verifies the caller's current password before storing
// the new hash. A mismatch is an authentication failure, not an internal
// one. Neither password value is ever audited or logged.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if s == nil {
		return ErrNotReady
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		s.emitAudit(ctx, ActionPasswordChanged, false, userID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := s.users.Update(ctx, userID, UserUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := s.lockout.Reset(ctx, user.Email); err != nil {
		s.warnf("lockout reset after password change failed: %v", err)
	}

	s.emitAudit(ctx, ActionPasswordChanged, true, userID, "", nil, nil)
	return nil
}

// ForgotPassword starts the reset flow. It answers identically whether or
// not the email exists, and takes at least MinResponseTime either way, so
// neither the response body nor its latency leaks account existence. The
// token itself travels only through the Mailer.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if s == nil {
		return ErrNotReady
	}

	started := time.Now()
	defer func() {
		if remaining := s.config.PasswordReset.MinResponseTime - time.Since(started); remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
			}
		}
	}()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Deliberately indistinguishable from the success path.
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !user.Active {
		return nil
	}

	tok, err := internal.NewOneTimeToken()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := s.resets.Save(ctx, tok.ID, user.ID, tok.SecretSHA, s.config.PasswordReset.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, tok.Encoded); err != nil {
		s.warnf("password reset delivery to %s failed: %v", user.ID, err)
	}

	s.emitAudit(ctx, ActionPasswordResetRequest, true, user.ID, "", nil, map[string]string{
		"email": email,
	})
	return nil
}

// ResetPassword consumes a reset token and stores the new password. The
// token is validated and deleted in one atomic step, so a token submitted
// twice concurrently changes the password at most once. All sessions of
// the account are revoked afterwards, so a stolen session does not
// survive the reset.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if s == nil {
		return ErrNotReady
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	id, secretSHA, err := internal.ParseOneTimeToken(resetToken)
	if err != nil {
		return ErrResetTokenInvalid
	}

	userID, err := s.resets.Consume(ctx, id, secretSHA)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) || errors.Is(err, stores.ErrSecretMismatch) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := s.users.Update(ctx, userID, UserUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := s.lockout.Reset(ctx, user.Email); err != nil {
		s.warnf("lockout reset after password reset failed: %v", err)
	}
	if _, err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		s.warnf("session revocation after password reset failed: %v", err)
	}

	s.emitAudit(ctx, ActionPasswordReset, true, userID, "", nil, nil)
	return nil
}
