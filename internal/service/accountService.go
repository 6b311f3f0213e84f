package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/admission"
	"github.com/scholarmark/scholarmark-api/internal/models"
	"github.com/scholarmark/scholarmark-api/internal/storage"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
)

const principalCacheTTL = 5 * time.Minute

// Cached projection of the account fields admission cares about
type cachedPrincipal struct {
	Tier        string `json:"tier"`
	CustomQuota *int64 `json:"custom_quota,omitempty"`
}

// AccountService resolves the admission principal for a user. The database
// lookup is fronted by a short-lived redis cache so the admission path
// never holds a ledger lock across I/O.
type AccountService struct {
	users UserFinder
	redis *storage.RedisClient
}

// UserFinder is what AccountService needs from the user repository.
// Satisfied by *repository.UserRepository; tests substitute a stub.
type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

func NewAccountService(users UserFinder, redis *storage.RedisClient) *AccountService {
	return &AccountService{
		users: users,
		redis: redis,
	}
}

// ResolvePrincipal looks up the user's tier and quota override. Any failure
// is wrapped in ErrEntitlementResolution: callers reject the request rather
// than guessing a tier (fail closed).
func (s *AccountService) ResolvePrincipal(ctx context.Context, userID uuid.UUID) (admission.Principal, error) {
	cacheKey := fmt.Sprintf("principal:cache:%s", userID)

	// Check cache first
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey)
		if err == nil && cached != "" {
			var cp cachedPrincipal
			if err := json.Unmarshal([]byte(cached), &cp); err == nil {
				if tier, err := tierpolicy.ParseTier(cp.Tier); err == nil {
					return admission.Principal{
						UserID:      userID,
						Tier:        tier,
						CustomQuota: cp.CustomQuota,
					}, nil
				}
			}
		}
	}

	// Cache miss - query database
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return admission.Principal{}, fmt.Errorf("%w: %v", admission.ErrEntitlementResolution, err)
	}
	if user == nil || !user.IsActive {
		return admission.Principal{}, fmt.Errorf("%w: account %s not found or inactive", admission.ErrEntitlementResolution, userID)
	}

	tier, err := tierpolicy.ParseTier(user.SubscriptionTier)
	if err != nil {
		return admission.Principal{}, fmt.Errorf("%w: %v", admission.ErrEntitlementResolution, err)
	}

	// Cache the result
	if s.redis != nil {
		if payload, err := json.Marshal(cachedPrincipal{Tier: user.SubscriptionTier, CustomQuota: user.CustomQuota}); err == nil {
			s.redis.Set(ctx, cacheKey, payload, principalCacheTTL)
		}
	}

	return admission.Principal{
		UserID:      userID,
		Tier:        tier,
		CustomQuota: user.CustomQuota,
	}, nil
}

// InvalidatePrincipal drops the cached projection after a tier change so
// the next request sees the new entitlements.
func (s *AccountService) InvalidatePrincipal(ctx context.Context, userID uuid.UUID) {
	if s.redis == nil {
		return
	}
	cacheKey := fmt.Sprintf("principal:cache:%s", userID)
	s.redis.Del(ctx, cacheKey)
}
