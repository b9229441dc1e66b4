package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/adminsuite/authkit/internal"
	"github.com/adminsuite/authkit/internal/stores"
)

// issueVerification mints a single-use verification token for the user and
// hands it to the Mailer. Failures here are reported to the caller but do
// not undo whatever state change prompted the issue.
func (s *Service) issueVerification(ctx context.Context, user *UserRecord) error {
	tok, err := internal.NewOneTimeToken()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := s.verifies.Save(ctx, tok.ID, user.ID, tok.SecretSHA, s.config.EmailVerification.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := s.mailer.SendVerification(ctx, user.Email, tok.Encoded); err != nil {
		s.warnf("verification delivery to %s failed: %v", user.ID, err)
	}
	return nil
}

// RequestEmailVerification re-sends a verification token. Already verified
// accounts get a no-op success rather than an error so the endpoint stays
// idempotent for impatient clients.
func (s *Service) RequestEmailVerification(ctx context.Context, userID string) error {
	if s == nil {
		return ErrNotReady
	}
	if !s.config.EmailVerification.Enabled {
		return nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.EmailVerified {
		return nil
	}
	return s.issueVerification(ctx, user)
}

// VerifyEmail consumes a verification token and marks the account verified.
// Like password reset tokens, consumption is atomic: a token presented
// twice verifies at most once and the second caller gets an error.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) (*PublicUser, error) {
	if s == nil {
		return nil, ErrNotReady
	}

	id, secretSHA, err := internal.ParseOneTimeToken(verificationToken)
	if err != nil {
		return nil, ErrVerificationInvalid
	}

	userID, err := s.verifies.Consume(ctx, id, secretSHA)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) || errors.Is(err, stores.ErrSecretMismatch) {
			return nil, ErrVerificationInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrVerificationInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if !user.EmailVerified {
		verified := true
		if err := s.users.Update(ctx, userID, UserUpdate{EmailVerified: &verified}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		user.EmailVerified = true
	}

	s.emitAudit(ctx, ActionEmailVerified, true, userID, "", nil, nil)
	pub := user.Public()
	return &pub, nil
}
