// Package services contains the business logic for keygate: the
// administrator-invoked license mutations and the server-side entitlement
// validation backing the validation surface.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"keygate/internal/config"
	"keygate/internal/errors"
	"keygate/internal/store"
	"keygate/pkg/contracts/domain"
)

// Extension bounds for ExtendLicense.
const (
	MinExtensionDays = 1
	MaxExtensionDays = 365
)

// LicenseService provides business logic for license operations.
type LicenseService interface {
	// Administrative mutations
	CreateLicense(ctx context.Context, req CreateLicenseRequest) (*domain.License, error)
	ExtendLicense(ctx context.Context, licenseID string, days int) (*domain.License, error)
	RevokeLicense(ctx context.Context, licenseID string, reason string) (*domain.License, error)
	DeleteLicense(ctx context.Context, licenseID string) error
	SuspendLicense(ctx context.Context, licenseID string) (*domain.License, error)
	ReactivateLicense(ctx context.Context, licenseID string) (*domain.License, error)
	ReconcileExpired(ctx context.Context) (int64, error)

	// User administration
	CreateUser(ctx context.Context, email string) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	SuspendUser(ctx context.Context, userID string) (*domain.User, error)
	UnsuspendUser(ctx context.Context, userID string) (*domain.User, error)

	// Queries
	GetLicense(ctx context.Context, licenseID string) (*LicenseView, error)
	ListLicenses(ctx context.Context, q store.LicenseQuery) (*ListLicensesResponse, error)

	// Validation surface
	ValidateForUser(ctx context.Context, userID string) (*domain.EntitlementResult, error)
}

// CreateLicenseRequest carries the admin-supplied fields for a new license.
type CreateLicenseRequest struct {
	UserID     string             `json:"user_id" validate:"required"`
	Type       domain.LicenseType `json:"type" validate:"required"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
	PaidAmount float64            `json:"paid_amount,omitempty"`
	Currency   string             `json:"currency,omitempty"`
	Notes      string             `json:"notes,omitempty"`
}

// LicenseView is a license enriched with its derived fields. The stored
// status is never trusted for display; the effective status is recomputed
// at read time.
type LicenseView struct {
	domain.License
	EffectiveStatus domain.LicenseStatus `json:"effective_status"`
	DaysRemaining   int                  `json:"days_remaining"`
}

// ListLicensesResponse is a page of license views.
type ListLicensesResponse struct {
	Items    []*LicenseView `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type licenseService struct {
	store   *store.Store
	cfg     config.LicenseConfig
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewLicenseService creates the license service over the given store.
func NewLicenseService(st *store.Store, cfg config.LicenseConfig, logger *slog.Logger) LicenseService {
	return &licenseService{
		store:   st,
		cfg:     cfg,
		logger:  logger.With(slog.String("service", "license")),
		nowFunc: time.Now,
	}
}

func newLicenseView(l *domain.License, now time.Time) *LicenseView {
	return &LicenseView{
		License:         *l,
		EffectiveStatus: domain.EffectiveStatus(l.Status, l.ExpiresAt, now),
		DaysRemaining:   domain.RemainingDays(l.ExpiresAt, now),
	}
}

// CreateLicense mints a new license: active immediately, kill switch on,
// start date now. Non-lifetime types must carry an expiry; lifetime must
// not.
func (s *licenseService) CreateLicense(ctx context.Context, req CreateLicenseRequest) (*domain.License, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidLicenseType, req.Type)
	}
	if req.Type != domain.LicenseTypeLifetime && req.ExpiresAt == nil {
		return nil, errors.ErrMissingExpiry
	}
	if err := domain.ValidateExpiry(req.Type, req.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidLicenseType, err)
	}

	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	now := s.nowFunc()
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	license := &domain.License{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Type:       req.Type,
		Status:     domain.LicenseStatusActive,
		StartDate:  now,
		ExpiresAt:  req.ExpiresAt,
		CreatedAt:  now,
		PaidAmount: req.PaidAmount,
		Currency:   currency,
		IsActive:   true,
		Notes:      req.Notes,
	}

	// License keys are globally unique; regenerate on the rare collision.
	for attempt := 0; attempt < 5; attempt++ {
		key, err := GenerateLicenseKey(s.cfg.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to generate license key: %w", err)
		}
		license.LicenseKey = key

		err = s.store.CreateLicense(ctx, license)
		if err == nil {
			s.logger.InfoContext(ctx, "license created",
				slog.String("license_id", license.ID),
				slog.String("user_id", license.UserID),
				slog.String("type", string(license.Type)),
			)
			return license, nil
		}
		if err != store.ErrDuplicateKey {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to allocate a unique license key")
}

// ExtendLicense adds days to the expiry. An already-expired license extends
// from now instead of compounding on the stale date, so an extension always
// yields a future expiry. Lifetime licenses have nothing to extend.
func (s *licenseService) ExtendLicense(ctx context.Context, licenseID string, days int) (*domain.License, error) {
	if days < MinExtensionDays || days > MaxExtensionDays {
		return nil, fmt.Errorf("%w: %d", errors.ErrDaysOutOfRange, days)
	}

	now := s.nowFunc()
	updated, err := s.store.UpdateLicenseTx(ctx, licenseID, func(l *domain.License) error {
		if l.Type == domain.LicenseTypeLifetime {
			return errors.ErrLifetimeExtension
		}
		if l.Status == domain.LicenseStatusCancelled {
			return errors.ErrLicenseCancelled
		}

		anchor := now
		if l.ExpiresAt != nil && l.ExpiresAt.After(now) {
			anchor = *l.ExpiresAt
		}
		expiresAt := anchor.AddDate(0, 0, days)
		l.ExpiresAt = &expiresAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "license extended",
		slog.String("license_id", licenseID),
		slog.Int("days", days),
		slog.Time("expires_at", *updated.ExpiresAt),
	)
	return updated, nil
}

// RevokeLicense cancels a license. Cancelled is terminal; revoking an
// already-revoked license is a no-op success so callers can retry safely.
func (s *licenseService) RevokeLicense(ctx context.Context, licenseID string, reason string) (*domain.License, error) {
	now := s.nowFunc()
	updated, err := s.store.UpdateLicenseTx(ctx, licenseID, func(l *domain.License) error {
		if l.Status == domain.LicenseStatusCancelled {
			// Idempotent repeat: leave the original cancellation untouched.
			return nil
		}

		l.Status = domain.LicenseStatusCancelled
		l.IsActive = false
		l.CancelledAt = &now
		if reason != "" {
			l.CancellationReason = reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "license revoked",
		slog.String("license_id", licenseID),
	)
	return updated, nil
}

// DeleteLicense hard-deletes the record. Payment history survives with the
// license link nulled.
func (s *licenseService) DeleteLicense(ctx context.Context, licenseID string) error {
	return s.store.DeleteLicense(ctx, licenseID)
}

// SuspendLicense moves an active license to suspended.
func (s *licenseService) SuspendLicense(ctx context.Context, licenseID string) (*domain.License, error) {
	updated, err := s.store.UpdateLicenseTx(ctx, licenseID, func(l *domain.License) error {
		if !domain.CanTransition(l.Status, domain.LicenseStatusSuspended) {
			return fmt.Errorf("%w: %s -> suspended", errors.ErrInvalidTransition, l.Status)
		}
		l.Status = domain.LicenseStatusSuspended
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "license suspended",
		slog.String("license_id", licenseID),
	)
	return updated, nil
}

// ReactivateLicense returns an expired or suspended license to active.
// Cancelled licenses stay cancelled; a new license must be issued instead.
func (s *licenseService) ReactivateLicense(ctx context.Context, licenseID string) (*domain.License, error) {
	updated, err := s.store.UpdateLicenseTx(ctx, licenseID, func(l *domain.License) error {
		if l.Status == domain.LicenseStatusCancelled {
			return errors.ErrLicenseCancelled
		}
		if !domain.CanTransition(l.Status, domain.LicenseStatusActive) {
			return fmt.Errorf("%w: %s -> active", errors.ErrInvalidTransition, l.Status)
		}
		l.Status = domain.LicenseStatusActive
		l.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "license reactivated",
		slog.String("license_id", licenseID),
	)
	return updated, nil
}

// ReconcileExpired is the explicit pass that rewrites stored active
// statuses whose expiry has passed. Reads never depend on it; the effective
// status is always derived.
func (s *licenseService) ReconcileExpired(ctx context.Context) (int64, error) {
	n, err := s.store.ReconcileExpired(ctx, s.nowFunc())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired licenses reconciled",
			slog.Int64("count", n),
		)
	}
	return n, nil
}

// CreateUser seeds a user account for license ownership.
func (s *licenseService) CreateUser(ctx context.Context, email string) (*domain.User, error) {
	user := &domain.User{
		ID:        uuid.New().String(),
		Email:     email,
		IsActive:  true,
		CreatedAt: s.nowFunc(),
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser fetches a user by id.
func (s *licenseService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.store.GetUser(ctx, userID)
}

// SuspendUser blocks entitlement for every license the user owns without
// touching the licenses themselves.
func (s *licenseService) SuspendUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.SetUserActive(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user suspended", slog.String("user_id", userID))
	return user, nil
}

// UnsuspendUser restores exactly the entitlement the user's licenses imply.
func (s *licenseService) UnsuspendUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.SetUserActive(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user unsuspended", slog.String("user_id", userID))
	return user, nil
}

// GetLicense fetches a license with its derived fields.
func (s *licenseService) GetLicense(ctx context.Context, licenseID string) (*LicenseView, error) {
	l, err := s.store.GetLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	return newLicenseView(l, s.nowFunc()), nil
}

// ListLicenses returns a page of licenses with derived fields per row.
func (s *licenseService) ListLicenses(ctx context.Context, q store.LicenseQuery) (*ListLicensesResponse, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}

	licenses, total, err := s.store.ListLicenses(ctx, q)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	items := make([]*LicenseView, 0, len(licenses))
	for _, l := range licenses {
		items = append(items, newLicenseView(l, now))
	}

	return &ListLicensesResponse{
		Items:    items,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
	}, nil
}
