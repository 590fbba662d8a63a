package services

import (
	"context"
	"log/slog"

	"keygate/internal/errors"
	"keygate/pkg/contracts/domain"
)

// Denial reasons surfaced on an invalid entitlement result. These are
// business outcomes, not errors.
const (
	ReasonUserNotFound   = "user_not_found"
	ReasonUserInactive   = "user_inactive"
	ReasonNoLicense      = "no_license"
	ReasonLicenseExpired = "license_expired"
)

// ValidateForUser answers whether the user is entitled right now and for
// how much longer. A denied entitlement is a normal invalid result; only
// infrastructure failures return an error.
func (s *licenseService) ValidateForUser(ctx context.Context, userID string) (*domain.EntitlementResult, error) {
	now := s.nowFunc()
	result := &domain.EntitlementResult{CheckedAt: now}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if err == errors.ErrUserNotFound {
			result.Reason = ReasonUserNotFound
			return result, nil
		}
		return nil, err
	}

	// A suspended user fails entitlement regardless of license state.
	if !user.IsActive {
		result.Reason = ReasonUserInactive
		return result, nil
	}

	licenses, err := s.store.ListLicensesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	active := domain.ActiveLicense(licenses, now)
	if active == nil {
		// Distinguish "has an expired license" from "never had one" for
		// diagnostics; both are invalid.
		result.Reason = ReasonNoLicense
		for _, l := range licenses {
			if l.IsActive && l.Status == domain.LicenseStatusActive &&
				l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
				result.Reason = ReasonLicenseExpired
				result.IsExpired = true
				result.License = l
				break
			}
		}
		return result, nil
	}

	result.IsValid = true
	result.License = active
	result.DaysRemaining = domain.RemainingDays(active.ExpiresAt, now)
	if remaining, unlimited := domain.RemainingTime(active.ExpiresAt, now); !unlimited {
		result.RemainingTime = remaining.String()
	}

	// A cancelled validation must not apply the cache-marker side effect.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if err := s.store.TouchValidated(ctx, active.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record validation timestamp",
			slog.String("license_id", active.ID),
			slog.String("error", err.Error()),
		)
	} else {
		result.ValidatedAt = &now
		result.License.LastValidatedAt = &now
	}

	return result, nil
}
