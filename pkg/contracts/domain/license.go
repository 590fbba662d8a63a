// Package domain contains the core domain models for keygate.
// These types serve as the Single Source of Truth (SSOT) for all layers of
// the application: the store persists them, the services mutate them, and
// the evaluator derives entitlement from them.
package domain

import (
	"fmt"
	"time"
)

// DaysUnlimited is the sentinel returned by RemainingDays for licenses
// without an expiry (lifetime licenses).
const DaysUnlimited = -1

// LicenseType represents the plan class of a license.
type LicenseType string

const (
	LicenseTypeTrial    LicenseType = "trial"
	LicenseTypeMonthly  LicenseType = "monthly"
	LicenseTypeYearly   LicenseType = "yearly"
	LicenseTypeLifetime LicenseType = "lifetime"
)

// Valid reports whether t is a known license type.
func (t LicenseType) Valid() bool {
	switch t {
	case LicenseTypeTrial, LicenseTypeMonthly, LicenseTypeYearly, LicenseTypeLifetime:
		return true
	default:
		return false
	}
}

// LicenseStatus represents the stored state-machine variable of a license.
type LicenseStatus string

const (
	LicenseStatusPending   LicenseStatus = "pending"
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusExpired   LicenseStatus = "expired"
	LicenseStatusCancelled LicenseStatus = "cancelled"
	LicenseStatusSuspended LicenseStatus = "suspended"
)

// Valid reports whether s is a known license status.
func (s LicenseStatus) Valid() bool {
	switch s {
	case LicenseStatusPending, LicenseStatusActive, LicenseStatusExpired,
		LicenseStatusCancelled, LicenseStatusSuspended:
		return true
	default:
		return false
	}
}

// License represents a persisted license record.
type License struct {
	ID                   string        `json:"id" db:"id"`
	UserID               string        `json:"user_id" db:"user_id" validate:"required"`
	Type                 LicenseType   `json:"type" db:"type" validate:"required"`
	Status               LicenseStatus `json:"status" db:"status" validate:"required"`
	LicenseKey           string        `json:"license_key" db:"license_key" validate:"required,min=10"`
	StartDate            time.Time     `json:"start_date" db:"start_date"`
	ExpiresAt            *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	LastValidatedAt      *time.Time    `json:"last_validated_at,omitempty" db:"last_validated_at"`
	StripeSubscriptionID string        `json:"stripe_subscription_id,omitempty" db:"stripe_subscription_id"`
	StripeCustomerID     string        `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	PaidAmount           float64       `json:"paid_amount" db:"paid_amount"`
	Currency             string        `json:"currency" db:"currency"`
	IsActive             bool          `json:"is_active" db:"is_active"`
	CancellationReason   string        `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt          *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	Notes                string        `json:"notes,omitempty" db:"notes"`
}

// User represents an account that owns licenses and payments.
type User struct {
	ID          string     `json:"id" db:"id"`
	Email       string     `json:"email" db:"email" validate:"required,email"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// Payment represents a payment record. The license link is nullable so a
// deleted license detaches its payments instead of destroying payment
// history.
type Payment struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	LicenseID *string   `json:"license_id,omitempty" db:"license_id"`
	Amount    float64   `json:"amount" db:"amount"`
	Currency  string    `json:"currency" db:"currency"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EffectiveStatus computes the admin-visible status of a license. A stored
// Active status reads as Expired once the expiry has passed. The stored
// value is only rewritten by an explicit reconciliation pass, so a
// Cancelled or Suspended override is never lost.
func EffectiveStatus(status LicenseStatus, expiresAt *time.Time, now time.Time) LicenseStatus {
	if status == LicenseStatusActive && expiresAt != nil && !expiresAt.After(now) {
		return LicenseStatusExpired
	}
	return status
}

// RemainingDays computes the whole days left before expiry, rounded up so
// that any partially remaining day counts as one. A nil expiry yields
// DaysUnlimited; a passed expiry yields 0.
func RemainingDays(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return DaysUnlimited
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// RemainingTime computes the duration left before expiry. A nil expiry
// yields zero with unlimited=true; a passed expiry yields zero.
func RemainingTime(expiresAt *time.Time, now time.Time) (remaining time.Duration, unlimited bool) {
	if expiresAt == nil {
		return 0, true
	}
	remaining = expiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, false
}

// Entitled reports whether the license is currently usable: the kill switch
// is on, the stored status is Active, and the expiry (if any) has not
// passed. Evaluated against the supplied wall-clock time, never a cached
// one.
func Entitled(l *License, now time.Time) bool {
	if l == nil || !l.IsActive {
		return false
	}
	if l.Status != LicenseStatusActive {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// ActiveLicense selects the single license surfaced to the client: the
// first entitled license ordered by most-recent start date. Returns nil
// when no license qualifies.
func ActiveLicense(licenses []*License, now time.Time) *License {
	var active *License
	for _, l := range licenses {
		if !Entitled(l, now) {
			continue
		}
		if active == nil || l.StartDate.After(active.StartDate) {
			active = l
		}
	}
	return active
}

// CanTransition reports whether the state machine permits moving a license
// from one stored status to another. Cancelled is terminal; Expired and
// Suspended may return to Active only through an explicit reactivation.
func CanTransition(from, to LicenseStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case LicenseStatusPending:
		return to == LicenseStatusActive || to == LicenseStatusCancelled
	case LicenseStatusActive:
		return to == LicenseStatusExpired || to == LicenseStatusCancelled || to == LicenseStatusSuspended
	case LicenseStatusExpired:
		return to == LicenseStatusActive || to == LicenseStatusCancelled
	case LicenseStatusSuspended:
		return to == LicenseStatusActive || to == LicenseStatusCancelled
	case LicenseStatusCancelled:
		return false
	default:
		return false
	}
}

// ValidateExpiry enforces the type/expiry invariant: lifetime licenses must
// not carry an expiry, every other type must.
func ValidateExpiry(t LicenseType, expiresAt *time.Time) error {
	switch t {
	case LicenseTypeLifetime:
		if expiresAt != nil {
			return fmt.Errorf("lifetime license must not have an expiry date")
		}
	case LicenseTypeTrial, LicenseTypeMonthly, LicenseTypeYearly:
		if expiresAt == nil {
			return fmt.Errorf("%s license requires an expiry date", t)
		}
	default:
		return fmt.Errorf("unknown license type %q", t)
	}
	return nil
}

// EntitlementResult is the outcome of an entitlement evaluation. A denied
// entitlement is a normal result, never an error.
type EntitlementResult struct {
	IsValid       bool       `json:"is_valid"`
	IsExpired     bool       `json:"is_expired"`
	DaysRemaining int        `json:"days_remaining"`
	RemainingTime string     `json:"remaining_time,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	License       *License   `json:"license,omitempty"`
	CheckedAt     time.Time  `json:"checked_at"`
	ValidatedAt   *time.Time `json:"validated_at,omitempty"`
}

// ValidateEntitlementRequest is the validation surface request payload.
type ValidateEntitlementRequest struct {
	UserID string `json:"user_id" validate:"required"`
}
