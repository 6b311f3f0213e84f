package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/models"
	"github.com/scholarmark/scholarmark-api/internal/repository"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
)

type SubscriptionService struct {
	users    *repository.UserRepository
	usage    *repository.UsageRecordRepository
	accounts *AccountService
}

func NewSubscriptionService(users *repository.UserRepository, usage *repository.UsageRecordRepository, accounts *AccountService) *SubscriptionService {
	return &SubscriptionService{
		users:    users,
		usage:    usage,
		accounts: accounts,
	}
}

// Holds subscription details for the info endpoint
type SubscriptionInfo struct {
	UserID           uuid.UUID           `json:"user_id"`
	Email            string              `json:"email"`
	SubscriptionTier string              `json:"subscription_tier"`
	CustomQuota      *int64              `json:"custom_quota,omitempty"`
	TierInfo         tierpolicy.TierInfo `json:"tier_info"`
}

// Holds aggregated usage over a reporting period
type UsageSummary struct {
	PeriodStart      time.Time                `json:"period_start"`
	PeriodEnd        time.Time                `json:"period_end"`
	TotalCostUnits   int64                    `json:"total_cost_units"`
	TotalRequests    int64                    `json:"total_requests"`
	RejectedRequests int64                    `json:"rejected_requests"`
	PerOperation     []map[string]interface{} `json:"per_operation"`
	SubscriptionTier string                   `json:"subscription_tier"`
	Quota            int64                    `json:"quota"`
}

// Retrieves subscription details for a user
func (s *SubscriptionService) GetInfo(ctx context.Context, userID uuid.UUID) (*SubscriptionInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	tier, err := tierpolicy.ParseTier(user.SubscriptionTier)
	if err != nil {
		return nil, err
	}

	return &SubscriptionInfo{
		UserID:           user.ID,
		Email:            user.Email,
		SubscriptionTier: user.SubscriptionTier,
		CustomQuota:      user.CustomQuota,
		TierInfo: tierpolicy.TierInfo{
			Quota:            tierpolicy.QuotaFor(tier),
			ConcurrencyLimit: tierpolicy.ConcurrencyLimitFor(tier),
			CostMultiplier:   tierpolicy.CostMultiplierFor(tier),
			Features:         tierpolicy.Features(tier),
		},
	}, nil
}

// Changes a user's tier and optional custom quota override. The cached
// principal is invalidated so admission sees the change immediately.
func (s *SubscriptionService) UpdateTier(ctx context.Context, userID uuid.UUID, newTier string, customQuota *int64) (*SubscriptionInfo, error) {
	if _, err := tierpolicy.ParseTier(newTier); err != nil {
		return nil, err
	}

	if err := s.users.UpdateSubscription(ctx, userID, newTier, customQuota); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	s.accounts.InvalidatePrincipal(ctx, userID)

	return s.GetInfo(ctx, userID)
}

// Aggregates durable usage records for a reporting period. Unlike the
// in-memory ledger this has no window pruning; it is a plain
// filter-and-group over persisted rows.
func (s *SubscriptionService) GetUsageSummary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*UsageSummary, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	totalCost, err := s.usage.SumCostByUser(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	totalRequests, err := s.usage.CountByUser(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	rejected, err := s.usage.CountRejections(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.usage.GetOperationBreakdown(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	tier, err := tierpolicy.ParseTier(user.SubscriptionTier)
	if err != nil {
		return nil, err
	}

	quota := tierpolicy.QuotaFor(tier)
	if user.CustomQuota != nil {
		quota = *user.CustomQuota
	}

	return &UsageSummary{
		PeriodStart:      from,
		PeriodEnd:        to,
		TotalCostUnits:   totalCost,
		TotalRequests:    totalRequests,
		RejectedRequests: rejected,
		PerOperation:     breakdown,
		SubscriptionTier: user.SubscriptionTier,
		Quota:            quota,
	}, nil
}

// Retrieves raw usage records for a user with pagination
func (s *SubscriptionService) GetRecords(ctx context.Context, userID uuid.UUID, from, to time.Time, limit, offset int) ([]models.UsageRecord, error) {
	return s.usage.FindByUser(ctx, userID, from, to, limit, offset)
}

// Deletes usage records older than the retention period
func (s *SubscriptionService) CleanupOldRecords(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.usage.DeleteOldRecords(ctx, cutOffDate)
}

// Returns tiers strictly above the user's current tier, by ordinal rank
func (s *SubscriptionService) GetUpgradeOptions(ctx context.Context, userID uuid.UUID) (map[string]interface{}, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	current, err := tierpolicy.ParseTier(user.SubscriptionTier)
	if err != nil {
		return nil, err
	}

	upgrades := make(map[string]tierpolicy.TierInfo)
	for _, tier := range tierpolicy.AllTiers {
		if tier.Rank() > current.Rank() {
			upgrades[string(tier)] = tierpolicy.TierInfo{
				Quota:            tierpolicy.QuotaFor(tier),
				ConcurrencyLimit: tierpolicy.ConcurrencyLimitFor(tier),
				CostMultiplier:   tierpolicy.CostMultiplierFor(tier),
				Features:         tierpolicy.Features(tier),
			}
		}
	}

	return map[string]interface{}{
		"current_tier":       user.SubscriptionTier,
		"available_upgrades": upgrades,
	}, nil
}
