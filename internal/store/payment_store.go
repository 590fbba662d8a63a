package store

import (
	"context"
	"database/sql"
	"fmt"

	"keygate/pkg/contracts/domain"
)

// SavePayment inserts or replaces a payment record.
func (s *Store) SavePayment(ctx context.Context, p *domain.Payment) error {
	query := `INSERT OR REPLACE INTO payments (id, user_id, license_id, amount, currency, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	var licenseID interface{}
	if p.LicenseID != nil {
		licenseID = *p.LicenseID
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		licenseID,
		p.Amount,
		p.Currency,
		p.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}

	return nil
}

// ListPaymentsByUser returns all payments for a user, newest first.
func (s *Store) ListPaymentsByUser(ctx context.Context, userID string) ([]*domain.Payment, error) {
	query := `SELECT id, user_id, license_id, amount, currency, created_at FROM payments WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		var p domain.Payment
		var licenseID sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &licenseID, &p.Amount, &p.Currency, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if licenseID.Valid {
			p.LicenseID = &licenseID.String
		}
		payments = append(payments, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}
