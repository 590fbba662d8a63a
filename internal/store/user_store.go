package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"keygate/internal/errors"
	"keygate/pkg/contracts/domain"
)

// GetUser fetches a user by id. Returns errors.ErrUserNotFound when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, email, is_active, created_at, last_login_at FROM users WHERE id = ?`

	var user domain.User
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.IsActive,
		&user.CreatedAt,
		&lastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	return &user, nil
}

// SaveUser inserts or replaces a user record.
func (s *Store) SaveUser(ctx context.Context, user *domain.User) error {
	query := `INSERT OR REPLACE INTO users (id, email, is_active, created_at, last_login_at) VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.IsActive,
		user.CreatedAt,
		nullableTime(user.LastLoginAt),
	)

	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// SetUserActive flips the user activity flag. The license's own status is
// untouched so unsuspending restores exactly the entitlement the license
// implies.
func (s *Store) SetUserActive(ctx context.Context, id string, active bool) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, errors.ErrUserNotFound
	}

	return s.GetUser(ctx, id)
}

// TouchLastLogin records a login timestamp.
func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch last login: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
