package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/shared/testutil"
	"keygate/pkg/contracts/domain"
)

func TestValidateForUser_Valid(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, st)

	expiry := time.Now().UTC().Add(10 * 24 * time.Hour)
	license := testutil.NewLicense(user.ID, domain.LicenseTypeMonthly, testutil.WithExpiry(expiry))
	require.NoError(t, st.CreateLicense(ctx, license))

	result, err := svc.ValidateForUser(ctx, user.ID)
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.False(t, result.IsExpired)
	assert.Equal(t, 10, result.DaysRemaining)
	assert.NotEmpty(t, result.RemainingTime)
	require.NotNil(t, result.License)
	assert.Equal(t, license.ID, result.License.ID)
	require.NotNil(t, result.ValidatedAt)

	// The validation marker is persisted.
	stored, err := st.GetLicense(ctx, license.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastValidatedAt)
}

func TestValidateForUser_LifetimeHasNoRemainingTime(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, st)

	require.NoError(t, st.CreateLicense(ctx, testutil.NewLicense(user.ID, domain.LicenseTypeLifetime)))

	result, err := svc.ValidateForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, domain.DaysUnlimited, result.DaysRemaining)
	assert.Empty(t, result.RemainingTime)
}

func TestValidateForUser_UserNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.ValidateForUser(context.Background(), "missing")
	require.NoError(t, err, "an unknown user is a denial, not an error")
	assert.False(t, result.IsValid)
	assert.Equal(t, ReasonUserNotFound, result.Reason)
}

func TestValidateForUser_SuspendedUserBlocksEntitlement(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, st)

	license := testutil.NewLicense(user.ID, domain.LicenseTypeMonthly)
	require.NoError(t, st.CreateLicense(ctx, license))

	_, err := svc.SuspendUser(ctx, user.ID)
	require.NoError(t, err)

	result, err := svc.ValidateForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, ReasonUserInactive, result.Reason)

	// The license row itself is untouched.
	stored, err := st.GetLicense(ctx, license.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusActive, stored.Status)
	assert.True(t, stored.IsActive)

	// Unsuspending restores exactly the prior entitlement.
	_, err = svc.UnsuspendUser(ctx, user.ID)
	require.NoError(t, err)
	result, err = svc.ValidateForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestValidateForUser_NoLicense(t *testing.T) {
	svc, st := newTestService(t)
	user := seedUser(t, st)

	result, err := svc.ValidateForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, ReasonNoLicense, result.Reason)
}

func TestValidateForUser_ExpiredLicense(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, st)

	require.NoError(t, st.CreateLicense(ctx, testutil.NewExpiredLicense(user.ID, domain.LicenseTypeMonthly)))

	result, err := svc.ValidateForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.True(t, result.IsExpired)
	assert.Equal(t, ReasonLicenseExpired, result.Reason)
	assert.NotNil(t, result.License)
}

func TestValidateForUser_PicksMostRecentEntitledLicense(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, st)

	older := testutil.NewLicense(user.ID, domain.LicenseTypeMonthly,
		testutil.WithStartDate(time.Now().UTC().Add(-48*time.Hour)))
	newer := testutil.NewLicense(user.ID, domain.LicenseTypeYearly,
		testutil.WithStartDate(time.Now().UTC().Add(-time.Hour)))
	require.NoError(t, st.CreateLicense(ctx, older))
	require.NoError(t, st.CreateLicense(ctx, newer))

	result, err := svc.ValidateForUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, result.License)
	assert.Equal(t, newer.ID, result.License.ID)
}

func TestValidateForUser_CancelledContextSkipsMarker(t *testing.T) {
	svc, st := newTestService(t)
	user := seedUser(t, st)

	license := testutil.NewLicense(user.ID, domain.LicenseTypeMonthly)
	require.NoError(t, st.CreateLicense(context.Background(), license))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ValidateForUser(ctx, user.ID)
	require.ErrorIs(t, err, context.Canceled)

	// The cancelled check must not leave a validation marker behind.
	stored, err := st.GetLicense(context.Background(), license.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastValidatedAt)
}
