package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/admission"
	"github.com/scholarmark/scholarmark-api/internal/models"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserFinder struct {
	users map[uuid.UUID]*models.User
	err   error
}

func (s *stubUserFinder) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[id], nil
}

func TestResolvePrincipal(t *testing.T) {
	userID := uuid.New()
	quota := int64(300)
	finder := &stubUserFinder{users: map[uuid.UUID]*models.User{
		userID: {
			ID:               userID,
			SubscriptionTier: "premium",
			CustomQuota:      &quota,
			IsActive:         true,
		},
	}}

	accounts := NewAccountService(finder, nil)

	principal, err := accounts.ResolvePrincipal(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, tierpolicy.TierPremium, principal.Tier)
	require.NotNil(t, principal.CustomQuota)
	assert.Equal(t, int64(300), *principal.CustomQuota)
}

func TestResolvePrincipalFailsClosedOnLookupError(t *testing.T) {
	finder := &stubUserFinder{err: errors.New("connection refused")}
	accounts := NewAccountService(finder, nil)

	_, err := accounts.ResolvePrincipal(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, admission.ErrEntitlementResolution)
}

func TestResolvePrincipalFailsClosedOnUnknownUser(t *testing.T) {
	finder := &stubUserFinder{users: map[uuid.UUID]*models.User{}}
	accounts := NewAccountService(finder, nil)

	_, err := accounts.ResolvePrincipal(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, admission.ErrEntitlementResolution)
}

func TestResolvePrincipalFailsClosedOnInactiveUser(t *testing.T) {
	userID := uuid.New()
	finder := &stubUserFinder{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, SubscriptionTier: "basic", IsActive: false},
	}}
	accounts := NewAccountService(finder, nil)

	_, err := accounts.ResolvePrincipal(context.Background(), userID)
	assert.ErrorIs(t, err, admission.ErrEntitlementResolution)
}

func TestResolvePrincipalFailsClosedOnCorruptTier(t *testing.T) {
	// A default-tier fallback could under- or over-grant quota, so a bad
	// stored value rejects instead
	userID := uuid.New()
	finder := &stubUserFinder{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, SubscriptionTier: "platinum", IsActive: true},
	}}
	accounts := NewAccountService(finder, nil)

	_, err := accounts.ResolvePrincipal(context.Background(), userID)
	assert.ErrorIs(t, err, admission.ErrEntitlementResolution)
}
