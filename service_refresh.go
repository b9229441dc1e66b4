package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/adminsuite/authkit/internal"
	"github.com/adminsuite/authkit/session"
	"github.com/adminsuite/authkit/token"
	"github.com/google/uuid"
)

// Refresh rotates a refresh token: the presented token is consumed and a
// fresh pair plus a fresh CSRF token are issued against the same session.
//
// Rotation is a compare-and-swap on the session's refresh identifier, so
// of N concurrent calls carrying the same stale token exactly one wins.
// A token whose identifier was already rotated away is treated as replay:
// the whole session is revoked and ErrRefreshReuse is returned.
//
// The account is re-loaded on every refresh; a deactivated account is cut
// off mid-session with ErrAccountDeactivated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if s == nil {
		return nil, ErrNotReady
	}

	claims, err := s.codec.Verify(refreshToken, token.PurposeRefresh)
	if err != nil {
		return nil, s.mapTokenError(err)
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !user.Active {
		if derr := s.sessions.Delete(ctx, user.ID, sess.ID); derr != nil {
			s.warnf("session cleanup for deactivated user %s failed: %v", user.ID, derr)
		}
		return nil, ErrAccountDeactivated
	}

	newRefreshID := uuid.NewString()
	refreshTTL := s.codec.TTL(token.PurposeRefresh)
	err = s.sessions.Rotate(ctx,
		sess.ID,
		internal.HashTokenID(claims.ID),
		internal.HashTokenID(newRefreshID),
		refreshTTL,
	)
	switch {
	case errors.Is(err, session.ErrRefreshMismatch):
		// A consumed token came back. Someone holds a stale copy, either
		// an attacker or a client that lost the rotation response; in both
		// cases the session can no longer be trusted.
		if derr := s.sessions.Delete(ctx, user.ID, sess.ID); derr != nil {
			s.warnf("session revoke after refresh reuse failed: %v", derr)
		}
		s.emitAudit(ctx, ActionRefreshReuse, false, user.ID, sess.ID, ErrRefreshReuse, nil)
		return nil, ErrRefreshReuse
	case errors.Is(err, session.ErrNotFound):
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	pair, csrfToken, err := s.signTokenPair(user, sess.DeviceID, sess.ID, newRefreshID)
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, ActionTokenRefresh, true, user.ID, sess.ID, nil, nil)

	return &RefreshResult{
		User:      user.Public(),
		Tokens:    pair,
		CSRFToken: csrfToken,
		SessionID: sess.ID,
	}, nil
}

// Logout invalidates the session tied to the presented refresh token. It
// is idempotent: a missing, expired, or already-revoked token is not an
// error, there is simply nothing left to do.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if s == nil {
		return ErrNotReady
	}
	if refreshToken == "" {
		return nil
	}

	claims, err := s.codec.Verify(refreshToken, token.PurposeRefresh)
	if err != nil {
		return nil
	}

	if err := s.sessions.Delete(ctx, claims.UserID, claims.SessionID); err != nil {
		s.warnf("logout session delete failed: %v", err)
		return nil
	}

	s.emitAudit(ctx, ActionLogout, true, claims.UserID, claims.SessionID, nil, nil)
	return nil
}
