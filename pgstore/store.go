package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/adminsuite/authkit"
)

// uniqueViolation is the Postgres error code for unique constraint hits.
const uniqueViolation = "23505"

// Store implements authkit.UserStore over database/sql. Emails are stored
// as given but compared case-insensitively; the citext-free approach keeps
// the schema portable.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, password_hash, name, role, active, email_verified, active_device_id, created_at, updated_at`

func (s *Store) FindByEmail(ctx context.Context, email string) (*authkit.UserRecord, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

func (s *Store) FindByID(ctx context.Context, id string) (*authkit.UserRecord, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) Create(ctx context.Context, user *authkit.UserRecord) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Role,
		user.Active,
		user.EmailVerified,
		nullable(user.ActiveDeviceID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return authkit.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update applies only the fields set on the update, in one statement, and
// always bumps updated_at.
func (s *Store) Update(ctx context.Context, id string, update authkit.UserUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.ActiveDeviceID != nil {
		add("active_device_id", nullable(*update.ActiveDeviceID))
	}
	if update.EmailVerified != nil {
		add("email_verified", *update.EmailVerified)
	}

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $1", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return authkit.ErrUserNotFound
	}
	return nil
}

func (s *Store) scanOne(row *sql.Row) (*authkit.UserRecord, error) {
	var (
		user     authkit.UserRecord
		deviceID sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Role,
		&user.Active,
		&user.EmailVerified,
		&deviceID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authkit.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.ActiveDeviceID = deviceID.String
	return &user, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
