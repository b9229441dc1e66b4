package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adminsuite/authkit/csrf"
	"github.com/adminsuite/authkit/internal"
	"github.com/adminsuite/authkit/session"
	"github.com/adminsuite/authkit/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Login runs the credential check behind the lockout gate and, on success,
// opens a session and issues the token pair plus a CSRF token.
//
// The outcome is an explicit variant, not an error: lockout and
// deactivation are expected states the transport layer maps to status
// codes. The error return covers infrastructure failures only.
//
// Enumeration resistance: an unknown email, a wrong password, and a wrong
// password on an inactive account all produce the same
// LoginInvalidCredentials variant, and each path pays the same hashing
// cost. Only a caller presenting the correct password learns that the
// account is deactivated.
func (s *Service) Login(ctx context.Context, input LoginInput) (LoginOutcome, error) {
	if s == nil {
		return LoginOutcome{}, ErrNotReady
	}

	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return LoginOutcome{Status: LoginInvalidCredentials}, nil
	}

	// Locked accounts fail before any password work; doing more would
	// leak timing and let an attacker keep the counter warm.
	locked, until, err := s.lockout.Status(ctx, email)
	if err != nil {
		return LoginOutcome{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if locked {
		s.emitAudit(ctx, ActionLoginFailed, false, "", "", &LockedError{Until: until}, map[string]string{
			"email":  email,
			"reason": "account_locked",
		})
		return LoginOutcome{Status: LoginLocked, LockedUntil: until}, nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return LoginOutcome{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	storedHash := s.dummyHash
	if user != nil {
		storedHash = user.PasswordHash
	}

	ok, verr := s.hasher.Verify(input.Password, storedHash)
	if verr != nil {
		return LoginOutcome{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, verr)
	}

	if user == nil || !ok {
		return s.failLogin(ctx, email)
	}

	if !user.Active {
		s.emitAudit(ctx, ActionLoginFailed, false, user.ID, "", ErrAccountDeactivated, map[string]string{
			"email":  email,
			"reason": "account_deactivated",
		})
		return LoginOutcome{Status: LoginDeactivated}, nil
	}

	// Full success from here: only now may the failure counter reset.
	if err := s.lockout.Reset(ctx, email); err != nil {
		return LoginOutcome{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.maybeUpgradeHash(ctx, user, input.Password)

	deviceID := input.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	if err := s.users.Update(ctx, user.ID, UserUpdate{ActiveDeviceID: &deviceID}); err != nil {
		// Bookkeeping only; the login itself stands.
		s.warnf("active device update for %s failed: %v", user.ID, err)
	}

	issued, err := s.openSession(ctx, user, deviceID)
	if err != nil {
		return LoginOutcome{}, err
	}

	s.emitAudit(ctx, ActionLogin, true, user.ID, issued.SessionID, nil, map[string]string{
		"email":    email,
		"deviceId": deviceID,
	})

	return LoginOutcome{
		Status:    LoginOK,
		User:      user.Public(),
		Tokens:    issued.Tokens,
		CSRFToken: issued.CSRFToken,
		SessionID: issued.SessionID,
	}, nil
}

func (s *Service) failLogin(ctx context.Context, email string) (LoginOutcome, error) {
	tripped, until, err := s.lockout.RecordFailure(ctx, email)
	if err != nil {
		return LoginOutcome{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.emitAudit(ctx, ActionLoginFailed, false, "", "", ErrInvalidCredentials, map[string]string{
		"email":  email,
		"reason": "invalid_credentials",
	})

	if tripped {
		return LoginOutcome{Status: LoginLocked, LockedUntil: until}, nil
	}
	return LoginOutcome{Status: LoginInvalidCredentials}, nil
}

func (s *Service) maybeUpgradeHash(ctx context.Context, user *UserRecord, plaintext string) {
	upgrade, err := s.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	newHash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := s.users.Update(ctx, user.ID, UserUpdate{PasswordHash: &newHash}); err != nil {
		s.warnf("password hash upgrade for %s failed: %v", user.ID, err)
	}
}

type issuedSession struct {
	Tokens    TokenPair
	CSRFToken string
	SessionID string
}

// openSession creates the registry entry and signs the paired tokens. The
// refresh token's ID is hashed into the session so rotation can detect
// replay; the registry never stores anything replayable.
func (s *Service) openSession(ctx context.Context, user *UserRecord, deviceID string) (issuedSession, error) {
	sessionID := uuid.NewString()
	refreshID := uuid.NewString()
	now := time.Now()
	refreshTTL := s.codec.TTL(token.PurposeRefresh)

	sess := &session.Session{
		ID:         sessionID,
		UserID:     user.ID,
		DeviceID:   deviceID,
		UserAgent:  userAgentFromContext(ctx),
		IP:         clientIPFromContext(ctx),
		RefreshSHA: internal.HashTokenID(refreshID),
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(refreshTTL),
	}
	if err := s.sessions.Save(ctx, sess, refreshTTL); err != nil {
		return issuedSession{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	pair, csrfToken, err := s.signTokenPair(user, deviceID, sessionID, refreshID)
	if err != nil {
		return issuedSession{}, err
	}
	return issuedSession{Tokens: pair, CSRFToken: csrfToken, SessionID: sessionID}, nil
}

func (s *Service) signTokenPair(user *UserRecord, deviceID, sessionID, refreshID string) (TokenPair, string, error) {
	base := token.Claims{
		UserID:    user.ID,
		Email:     user.Email,
		DeviceID:  deviceID,
		SessionID: sessionID,
	}

	accessClaims := base
	accessClaims.RegisteredClaims = jwt.RegisteredClaims{ID: uuid.NewString()}
	access, err := s.codec.Issue(accessClaims, token.PurposeAccess)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	refreshClaims := base
	refreshClaims.RegisteredClaims = jwt.RegisteredClaims{ID: refreshID}
	refresh, err := s.codec.Issue(refreshClaims, token.PurposeRefresh)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	csrfToken, err := csrf.NewToken()
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, csrfToken, nil
}
