package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/adminsuite/authkit/internal/limiters"
	"github.com/adminsuite/authkit/internal/stores"
	"github.com/adminsuite/authkit/password"
	"github.com/adminsuite/authkit/session"
	"github.com/adminsuite/authkit/token"
)

const minPasswordLength = 8

// Service orchestrates registration, login, token refresh, logout,
// password management, email verification, and session management. It is
// constructed once through the Builder and is safe for concurrent use; it
// holds no per-request mutable state.
type Service struct {
	config   Config
	users    UserStore
	codec    *token.Codec
	hasher   *password.Hasher
	sessions *session.Registry
	lockout  *limiters.Lockout
	resets   *stores.OneTime
	verifies *stores.OneTime
	audit    *auditDispatcher
	mailer   Mailer
	logger   *log.Logger

	// dummyHash levels the timing of login attempts against unknown
	// emails; verification runs against it so the hasher cost is paid
	// either way.
	dummyHash string

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup

	closed bool
	mu     sync.Mutex
}

// Close stops the sweeper and drains the audit dispatcher.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.sweepStop != nil {
		close(s.sweepStop)
		s.sweepWG.Wait()
	}
	s.audit.close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (s *Service) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.droppedCount()
}

// Authenticate verifies an access token and re-loads the account. It is
// the entry point for request middleware: a valid signature alone is not
// enough, the account must still exist and be active.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*UserRecord, *token.Claims, error) {
	if s == nil {
		return nil, nil, ErrNotReady
	}

	claims, err := s.codec.Verify(accessToken, token.PurposeAccess)
	if err != nil {
		return nil, nil, s.mapTokenError(err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !user.Active {
		return nil, nil, ErrAccountDeactivated
	}
	return user, claims, nil
}

func (s *Service) mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

// emitAudit ships one event through the dispatcher. Metadata is redacted
// first; failures inside the sink never propagate.
func (s *Service) emitAudit(ctx context.Context, action string, success bool, userID, sessionID string, opErr error, metadata map[string]string) {
	if s.audit == nil {
		return
	}

	event := AuditEvent{
		Time:      time.Now(),
		Action:    action,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  redactMetadata(metadata),
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	s.audit.emit(ctx, event)
}

func (s *Service) warnf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf("authkit: "+format, args...)
	}
}

// normalizeEmail case-folds and trims. Email uniqueness is enforced by the
// store; this only makes lookups and lockout keys consistent.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return invalidField("email", "must not be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return invalidField("email", "must be a valid email address")
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return invalidField("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	return nil
}

// LogMailer is the default Mailer: it logs that a delivery would happen,
// without the token value.
type LogMailer struct {
	Logger *log.Logger
}

func (m *LogMailer) logf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, email, _ string) error {
	m.logf("authkit: would deliver password reset email to %s", email)
	return nil
}

func (m *LogMailer) SendVerification(_ context.Context, email, _ string) error {
	m.logf("authkit: would deliver verification email to %s", email)
	return nil
}
