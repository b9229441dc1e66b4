package authkit

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/adminsuite/authkit/internal"
	"github.com/adminsuite/authkit/session"
	"github.com/adminsuite/authkit/token"
)

// ListSessions returns the user's live sessions, newest first. When a
// refresh token is supplied, the session it belongs to is flagged as
// Current so clients can render "this device".
func (s *Service) ListSessions(ctx context.Context, userID, refreshToken string) ([]SessionInfo, error) {
	if s == nil {
		return nil, ErrNotReady
	}

	currentSHA := ""
	if refreshToken != "" {
		if claims, err := s.codec.Verify(refreshToken, token.PurposeRefresh); err == nil {
			currentSHA = internal.HashTokenID(claims.ID)
		}
	}

	sessions, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, SessionInfo{
			ID:         sess.ID,
			DeviceID:   sess.DeviceID,
			UserAgent:  sess.UserAgent,
			IP:         sess.IP,
			CreatedAt:  sess.CreatedAt,
			LastUsedAt: sess.LastUsedAt,
			ExpiresAt:  sess.ExpiresAt,
			Current:    currentSHA != "" && sess.RefreshSHA == currentSHA,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// RevokeSession deletes one of the user's sessions. A session that does
// not exist, or that belongs to someone else, yields the same
// ErrSessionNotFound so the endpoint cannot confirm other accounts'
// session IDs.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if s == nil {
		return ErrNotReady
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}

	if err := s.sessions.Delete(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.emitAudit(ctx, ActionSessionRevoked, true, userID, sessionID, nil, nil)
	return nil
}

// RevokeOtherSessions deletes every session of the user except the
// caller's own, returning how many were removed. The session to keep is
// taken from the supplied refresh token when one verifies, otherwise
// from currentSessionID, which callers fill from the access token's
// session claim. Only when both are empty does every session go.
func (s *Service) RevokeOtherSessions(ctx context.Context, userID, refreshToken, currentSessionID string) (int, error) {
	if s == nil {
		return 0, ErrNotReady
	}

	keepID := currentSessionID
	if refreshToken != "" {
		if claims, err := s.codec.Verify(refreshToken, token.PurposeRefresh); err == nil {
			keepID = claims.SessionID
		}
	}

	var (
		removed int
		err     error
	)
	if keepID == "" {
		removed, err = s.sessions.DeleteAllForUser(ctx, userID)
	} else {
		removed, err = s.sessions.DeleteAllExcept(ctx, userID, keepID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.emitAudit(ctx, ActionSessionsRevoked, true, userID, keepID, nil, map[string]string{
		"revoked": fmt.Sprintf("%d", removed),
	})
	return removed, nil
}
