package admission

import (
	"errors"
	"fmt"
	"time"

	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
)

// ErrEntitlementResolution marks a failed account/tier lookup. The request
// is rejected (fail closed); callers must not fall back to a default tier.
var ErrEntitlementResolution = errors.New("entitlement resolution failed")

// QuotaExceededError is an expected outcome, not a fault. RetryAfter is
// zero when the request's cost alone exceeds the quota ceiling and waiting
// can never help.
type QuotaExceededError struct {
	Operation  string
	Used       int64
	Limit      int64
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: used %d of %d", e.Operation, e.Used, e.Limit)
}

// FeatureNotEntitledError means the tier may never use the operation
// regardless of quota; recoverable only by upgrading.
type FeatureNotEntitledError struct {
	Operation    string
	Tier         tierpolicy.Tier
	RequiredTier tierpolicy.Tier
}

func (e *FeatureNotEntitledError) Error() string {
	return fmt.Sprintf("tier %s is not entitled to %s (requires %s)", e.Tier, e.Operation, e.RequiredTier)
}

// ConcurrencyLimitError means the user already has the tier's maximum
// number of requests in flight.
type ConcurrencyLimitError struct {
	Tier  tierpolicy.Tier
	Limit int
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("concurrency limit reached for tier %s (%d in flight)", e.Tier, e.Limit)
}
