package tierpolicy

import (
	"fmt"
	"math"
)

// QuotaUnlimited marks a tier whose quota check never rejects.
const QuotaUnlimited int64 = -1

// DefaultCost applies to operations missing from the cost table.
const DefaultCost int64 = 1

// Per-window quota ceilings in cost units
var quotas = map[Tier]int64{
	TierFree:      50,
	TierBasic:     200,
	TierPremium:   500,
	TierUnlimited: QuotaUnlimited,
}

// Maximum concurrent in-flight requests per user
var concurrencyLimits = map[Tier]int{
	TierFree:      2,
	TierBasic:     5,
	TierPremium:   10,
	TierUnlimited: 20,
}

// Cost multipliers, lower means cheaper. Free pays full price.
var costMultipliers = map[Tier]float64{
	TierFree:      1.0,
	TierBasic:     0.8,
	TierPremium:   0.6,
	TierUnlimited: 0.5,
}

// Base costs per operation in abstract cost units
var baseCosts = map[string]int64{
	"suggestions":         2,
	"grammar":             1,
	"citations":           2,
	"tone":                2,
	"research_questions":  3,
	"outline":             3,
	"literature_analysis": 4,
	"methodology":         3,
	"abstract":            3,
	"keywords":            1,
	"format_reference":    1,
	"check_style":         2,
	"extract_citations":   2,
	"suggest_transitions": 2,
	"check_arguments":     3,
	"suggest_evidence":    2,
}

// Feature gating is expressed as denial lists: an operation absent from a
// tier's set is allowed. This permissive default is a deliberate policy
// choice so a newly added low-risk operation is usable by every tier until
// someone explicitly gates it here.
var deniedFeatures = map[Tier]map[string]bool{
	TierFree: {
		"research_questions":  true,
		"outline":             true,
		"literature_analysis": true,
		"methodology":         true,
		"abstract":            true,
		"suggest_transitions": true,
		"check_arguments":     true,
		"suggest_evidence":    true,
	},
	TierBasic: {
		"literature_analysis": true,
		"methodology":         true,
		"check_arguments":     true,
	},
	TierPremium:   {},
	TierUnlimited: {},
}

// QuotaFor returns the tier's per-window ceiling, QuotaUnlimited for
// the unlimited tier.
func QuotaFor(tier Tier) int64 {
	quota, ok := quotas[tier]
	if !ok {
		panic(fmt.Sprintf("tierpolicy: no quota for tier %q", tier))
	}
	return quota
}

func ConcurrencyLimitFor(tier Tier) int {
	limit, ok := concurrencyLimits[tier]
	if !ok {
		panic(fmt.Sprintf("tierpolicy: no concurrency limit for tier %q", tier))
	}
	return limit
}

func CostMultiplierFor(tier Tier) float64 {
	multiplier, ok := costMultipliers[tier]
	if !ok {
		panic(fmt.Sprintf("tierpolicy: no cost multiplier for tier %q", tier))
	}
	return multiplier
}

// BaseCost returns the operation's base cost, DefaultCost if unlisted
func BaseCost(operation string) int64 {
	if cost, ok := baseCosts[operation]; ok {
		return cost
	}
	return DefaultCost
}

// EffectiveCost applies the tier multiplier, rounding up
func EffectiveCost(tier Tier, operation string) int64 {
	return int64(math.Ceil(float64(BaseCost(operation)) * CostMultiplierFor(tier)))
}

// FeatureAllowed reports whether a tier may use an operation at all,
// independent of quota. Operations not explicitly denied are allowed.
func FeatureAllowed(tier Tier, operation string) bool {
	denied, ok := deniedFeatures[tier]
	if !ok {
		panic(fmt.Sprintf("tierpolicy: no feature set for tier %q", tier))
	}
	return !denied[operation]
}

// RequiredTierFor returns the lowest tier allowed to use the operation.
func RequiredTierFor(operation string) Tier {
	for _, tier := range AllTiers {
		if FeatureAllowed(tier, operation) {
			return tier
		}
	}
	// Unlimited denies nothing, so this is unreachable with a valid table
	return TierUnlimited
}

// Operations returns all declared operation names.
func Operations() []string {
	ops := make([]string, 0, len(baseCosts))
	for op := range baseCosts {
		ops = append(ops, op)
	}
	return ops
}

// Features returns the operation -> allowed map for a tier.
func Features(tier Tier) map[string]bool {
	features := make(map[string]bool, len(baseCosts))
	for op := range baseCosts {
		features[op] = FeatureAllowed(tier, op)
	}
	return features
}

// Describes one tier for the public plan-comparison view
type TierInfo struct {
	Quota            int64           `json:"quota"`
	ConcurrencyLimit int             `json:"concurrency_limit"`
	CostMultiplier   float64         `json:"cost_multiplier"`
	Features         map[string]bool `json:"features"`
}

// Catalog returns policy data for every tier.
func Catalog() map[Tier]TierInfo {
	catalog := make(map[Tier]TierInfo, len(AllTiers))
	for _, tier := range AllTiers {
		catalog[tier] = TierInfo{
			Quota:            QuotaFor(tier),
			ConcurrencyLimit: ConcurrencyLimitFor(tier),
			CostMultiplier:   CostMultiplierFor(tier),
			Features:         Features(tier),
		}
	}
	return catalog
}

// Validate checks the policy tables are total: every tier has a quota,
// concurrency limit, multiplier and feature set, every declared operation
// has a positive cost, and every tier x operation pair resolves. Run at
// startup so misconfiguration fails the deployment, not a request.
func Validate() error {
	for _, tier := range AllTiers {
		if _, ok := quotas[tier]; !ok {
			return fmt.Errorf("tier %q has no quota", tier)
		}
		if limit, ok := concurrencyLimits[tier]; !ok || limit <= 0 {
			return fmt.Errorf("tier %q has no valid concurrency limit", tier)
		}
		multiplier, ok := costMultipliers[tier]
		if !ok || multiplier <= 0 || multiplier > 1 {
			return fmt.Errorf("tier %q has no valid cost multiplier", tier)
		}
		if _, ok := deniedFeatures[tier]; !ok {
			return fmt.Errorf("tier %q has no feature set", tier)
		}
		for op := range baseCosts {
			if baseCosts[op] <= 0 {
				return fmt.Errorf("operation %q has non-positive base cost", op)
			}
			if EffectiveCost(tier, op) <= 0 {
				return fmt.Errorf("tier %q operation %q resolves to non-positive effective cost", tier, op)
			}
		}
	}

	for tier := range quotas {
		if !tier.Valid() {
			return fmt.Errorf("quota table references unknown tier %q", tier)
		}
	}
	for tier := range deniedFeatures {
		for op := range deniedFeatures[tier] {
			if _, ok := baseCosts[op]; !ok {
				return fmt.Errorf("tier %q denies undeclared operation %q", tier, op)
			}
		}
	}

	return nil
}
