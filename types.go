package authkit

import (
	"context"
	"time"
)

// UserRecord is the credential-store view of a user. The persistence layer
// owns the row; the auth core reads it through the UserStore interface and
// never assumes more than these fields.
type UserRecord struct {
	ID             string
	Email          string
	PasswordHash   string
	Name           string
	Role           string
	Active         bool
	EmailVerified  bool
	ActiveDeviceID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PublicUser is the safe projection returned to callers. It never carries
// the password hash.
type PublicUser struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Public returns the safe projection of the record.
func (u *UserRecord) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// UserUpdate is a partial update; nil fields are left untouched.
type UserUpdate struct {
	PasswordHash   *string
	Name           *string
	ActiveDeviceID *string
	EmailVerified  *bool
}

// UserStore is the credential-store collaborator owned by the persistence
// layer. Implementations must treat emails case-insensitively.
//
// FindByEmail and FindByID return ErrUserNotFound for missing users.
// Create returns ErrDuplicateEmail when the unique-email constraint fires;
// the store, not the auth core, is the authority on uniqueness, and a race
// on registration must surface as a conflict rather than a crash.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	Create(ctx context.Context, user *UserRecord) error
	Update(ctx context.Context, id string, update UserUpdate) error
}

// Mailer delivers the secrets of the reset and verification flows. It is
// an external collaborator; delivery failures are logged, never fatal.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
	SendVerification(ctx context.Context, email, token string) error
}

// TokenPair is the access/refresh pair issued at login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterInput carries the register request fields.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput carries the login request fields. DeviceID is optional; a
// fresh one is generated when absent.
type LoginInput struct {
	Email    string
	Password string
	DeviceID string
}

// LoginStatus is the explicit outcome variant of a login attempt. Lockout
// and deactivation are results, not exceptions; the transport boundary maps
// each variant to its status code.
type LoginStatus int

const (
	LoginOK LoginStatus = iota
	LoginInvalidCredentials
	LoginLocked
	LoginDeactivated
)

// LoginOutcome is the full result of a login attempt. Tokens and user are
// populated only for LoginOK; LockedUntil only for LoginLocked.
type LoginOutcome struct {
	Status      LoginStatus
	User        PublicUser
	Tokens      TokenPair
	CSRFToken   string
	SessionID   string
	LockedUntil time.Time
}

// RefreshResult mirrors the success shape of login for the refresh flow.
type RefreshResult struct {
	User      PublicUser
	Tokens    TokenPair
	CSRFToken string
	SessionID string
}

// SessionInfo is one entry of the "active sessions" listing. Current marks
// the session backing the caller's own refresh token, matched by token
// identity rather than device ID, since one device can hold several
// historical sessions.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	UserAgent  string    `json:"userAgent"`
	IP         string    `json:"ip"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}
