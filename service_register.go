package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Register creates a new account. The email is case-folded before the
// uniqueness check; a store-level conflict (including a registration race)
// surfaces as ErrAccountExists. The returned projection never includes the
// password hash.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*PublicUser, error) {
	if s == nil {
		return nil, ErrNotReady
	}

	email := normalizeEmail(input.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	now := time.Now()
	user := &UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         input.Name,
		Role:         "user",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The store is the authority on uniqueness; losing the race is a
		// conflict, not a failure.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if s.config.EmailVerification.Enabled {
		if err := s.issueVerification(ctx, user); err != nil {
			s.warnf("verification issue for %s failed: %v", user.ID, err)
		}
	}

	s.emitAudit(ctx, ActionRegister, true, user.ID, "", nil, map[string]string{
		"email": email,
	})

	public := user.Public()
	return &public, nil
}
