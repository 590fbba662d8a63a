package testutil

import (
	"time"

	"github.com/google/uuid"

	"keygate/pkg/contracts/domain"
)

// Fixtures builds domain objects for tests. All builders return fresh
// values so tests can mutate them freely.

// NewUser returns an active user.
func NewUser(email string) *domain.User {
	return &domain.User{
		ID:        uuid.New().String(),
		Email:     email,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

// LicenseOption mutates a license fixture.
type LicenseOption func(*domain.License)

// WithStatus overrides the stored status.
func WithStatus(status domain.LicenseStatus) LicenseOption {
	return func(l *domain.License) { l.Status = status }
}

// WithExpiry overrides the expiry timestamp.
func WithExpiry(at time.Time) LicenseOption {
	return func(l *domain.License) { l.ExpiresAt = &at }
}

// WithStartDate overrides the start date.
func WithStartDate(at time.Time) LicenseOption {
	return func(l *domain.License) { l.StartDate = at }
}

// Inactive clears the admin-controlled active flag.
func Inactive() LicenseOption {
	return func(l *domain.License) { l.IsActive = false }
}

// NewLicense returns an active license for userID. Non-lifetime types get
// an expiry 30 days out unless overridden.
func NewLicense(userID string, licenseType domain.LicenseType, opts ...LicenseOption) *domain.License {
	now := time.Now().UTC()
	l := &domain.License{
		ID:         uuid.New().String(),
		UserID:     userID,
		Type:       licenseType,
		Status:     domain.LicenseStatusActive,
		LicenseKey: "KG-" + uuid.New().String()[:12],
		StartDate:  now,
		CreatedAt:  now,
		IsActive:   true,
		Currency:   "USD",
	}
	if licenseType != domain.LicenseTypeLifetime {
		expiry := now.Add(30 * 24 * time.Hour)
		l.ExpiresAt = &expiry
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewExpiredLicense returns a license whose expiry passed ten days ago but
// whose stored status is still active, the shape reconciliation targets.
func NewExpiredLicense(userID string, licenseType domain.LicenseType) *domain.License {
	return NewLicense(userID, licenseType,
		WithExpiry(time.Now().UTC().Add(-10*24*time.Hour)),
		WithStartDate(time.Now().UTC().Add(-40*24*time.Hour)))
}

// NewCancelledLicense returns a revoked license.
func NewCancelledLicense(userID string, licenseType domain.LicenseType) *domain.License {
	cancelledAt := time.Now().UTC().Add(-time.Hour)
	l := NewLicense(userID, licenseType, WithStatus(domain.LicenseStatusCancelled), Inactive())
	l.CancelledAt = &cancelledAt
	l.CancellationReason = "test revocation"
	return l
}

// NewPayment returns a payment attached to licenseID.
func NewPayment(userID, licenseID string) *domain.Payment {
	return &domain.Payment{
		ID:        uuid.New().String(),
		UserID:    userID,
		LicenseID: &licenseID,
		Amount:    49.99,
		Currency:  "USD",
		CreatedAt: time.Now().UTC(),
	}
}
