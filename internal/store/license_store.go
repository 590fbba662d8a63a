package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"keygate/internal/errors"
	"keygate/pkg/contracts/domain"
)

const licenseColumns = `id, user_id, type, status, license_key, start_date, expires_at,
	created_at, last_validated_at, stripe_subscription_id, stripe_customer_id,
	paid_amount, currency, is_active, cancellation_reason, cancelled_at, notes`

// LicenseQuery describes a paginated license listing.
type LicenseQuery struct {
	Search   string
	Type     domain.LicenseType
	IsActive *bool
	Page     int
	PageSize int
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLicense(row rowScanner) (*domain.License, error) {
	var l domain.License
	var expiresAt, lastValidatedAt, cancelledAt sql.NullTime
	var stripeSub, stripeCust, cancelReason, notes sql.NullString

	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Type,
		&l.Status,
		&l.LicenseKey,
		&l.StartDate,
		&expiresAt,
		&l.CreatedAt,
		&lastValidatedAt,
		&stripeSub,
		&stripeCust,
		&l.PaidAmount,
		&l.Currency,
		&l.IsActive,
		&cancelReason,
		&cancelledAt,
		&notes,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		l.ExpiresAt = &expiresAt.Time
	}
	if lastValidatedAt.Valid {
		l.LastValidatedAt = &lastValidatedAt.Time
	}
	if cancelledAt.Valid {
		l.CancelledAt = &cancelledAt.Time
	}
	l.StripeSubscriptionID = stripeSub.String
	l.StripeCustomerID = stripeCust.String
	l.CancellationReason = cancelReason.String
	l.Notes = notes.String

	return &l, nil
}

func licenseArgs(l *domain.License) []interface{} {
	return []interface{}{
		l.ID,
		l.UserID,
		string(l.Type),
		string(l.Status),
		l.LicenseKey,
		l.StartDate,
		nullableTime(l.ExpiresAt),
		l.CreatedAt,
		nullableTime(l.LastValidatedAt),
		nullableString(l.StripeSubscriptionID),
		nullableString(l.StripeCustomerID),
		l.PaidAmount,
		l.Currency,
		l.IsActive,
		nullableString(l.CancellationReason),
		nullableTime(l.CancelledAt),
		nullableString(l.Notes),
	}
}

// CreateLicense inserts a new license row. A UNIQUE violation on the
// license key is reported as ErrDuplicateKey so callers can regenerate.
func (s *Store) CreateLicense(ctx context.Context, l *domain.License) error {
	query := `INSERT INTO licenses (` + licenseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, licenseArgs(l)...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: licenses.license_key") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create license: %w", err)
	}

	return nil
}

// ErrDuplicateKey signals a license key collision on insert.
var ErrDuplicateKey = fmt.Errorf("license key already exists")

// GetLicense fetches a license by id. Returns errors.ErrLicenseNotFound
// when absent.
func (s *Store) GetLicense(ctx context.Context, id string) (*domain.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = ?`

	l, err := scanLicense(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}

	return l, nil
}

// GetLicenseByKey fetches a license by its unique key.
func (s *Store) GetLicenseByKey(ctx context.Context, key string) (*domain.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = ?`

	l, err := scanLicense(s.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, errors.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license by key: %w", err)
	}

	return l, nil
}

// ListLicensesByUser returns all licenses owned by a user ordered by most
// recent start date, which is the active-license tie-break order.
func (s *Store) ListLicensesByUser(ctx context.Context, userID string) ([]*domain.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE user_id = ? ORDER BY start_date DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*domain.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}

	return licenses, nil
}

// ListLicenses returns a page of licenses matching the query plus the total
// match count.
func (s *Store) ListLicenses(ctx context.Context, q LicenseQuery) ([]*domain.License, int, error) {
	var conditions []string
	var args []interface{}

	if q.Search != "" {
		conditions = append(conditions, "(license_key LIKE ? OR user_id = ?)")
		args = append(args, "%"+q.Search+"%", q.Search)
	}
	if q.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(q.Type))
	}
	if q.IsActive != nil {
		conditions = append(conditions, "is_active = ?")
		args = append(args, *q.IsActive)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM licenses"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}

	query := `SELECT ` + licenseColumns + ` FROM licenses` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*domain.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, l)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating licenses: %w", err)
	}

	return licenses, total, nil
}

// UpdateLicenseTx applies fn to the current license row inside a single
// transaction. The read and the write happen under the same transaction so
// concurrent mutations against the same license serialize instead of losing
// updates.
func (s *Store) UpdateLicenseTx(ctx context.Context, id string, fn func(*domain.License) error) (*domain.License, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = ?`
	l, err := scanLicense(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read license: %w", err)
	}

	if err := fn(l); err != nil {
		return nil, err
	}

	update := `UPDATE licenses SET
		user_id = ?, type = ?, status = ?, license_key = ?, start_date = ?,
		expires_at = ?, created_at = ?, last_validated_at = ?,
		stripe_subscription_id = ?, stripe_customer_id = ?, paid_amount = ?,
		currency = ?, is_active = ?, cancellation_reason = ?, cancelled_at = ?,
		notes = ?
		WHERE id = ?`

	args := licenseArgs(l)[1:] // all columns except id
	args = append(args, l.ID)
	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return nil, fmt.Errorf("failed to update license: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit license update: %w", err)
	}

	return l, nil
}

// DeleteLicense hard-deletes a license. Payment rows that reference it keep
// their history with the license link nulled, in the same transaction.
func (s *Store) DeleteLicense(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE payments SET license_id = NULL WHERE license_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach payments: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM licenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.ErrLicenseNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit license delete: %w", err)
	}

	s.logger.Info("license deleted",
		slog.String("license_id", id),
	)
	return nil
}

// TouchValidated records a successful remote validation timestamp.
func (s *Store) TouchValidated(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE licenses SET last_validated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch last_validated_at: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.ErrLicenseNotFound
	}
	return nil
}

// ReconcileExpired rewrites stored active statuses to expired where the
// expiry has passed. This is the explicit reconciliation pass; reads always
// derive the effective status instead of trusting the stored value.
func (s *Store) ReconcileExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET status = ? WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(domain.LicenseStatusExpired), string(domain.LicenseStatusActive), now)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile expired licenses: %w", err)
	}
	return res.RowsAffected()
}
