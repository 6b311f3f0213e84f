package admission

import (
	"time"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
)

// Principal is the resolved identity the admission decision runs against.
// Resolution (account lookup, cache) happens before the controller is
// called so no I/O ever runs under a ledger lock. CustomQuota, when set,
// replaces the tier quota for this user only.
type Principal struct {
	UserID      uuid.UUID
	Tier        tierpolicy.Tier
	CustomQuota *int64
}

func (p Principal) quota() int64 {
	if p.CustomQuota != nil {
		return *p.CustomQuota
	}
	return tierpolicy.QuotaFor(p.Tier)
}

// UsageSink receives every decision for durable analytics storage.
// Implementations must not block the caller.
type UsageSink interface {
	Record(userID uuid.UUID, operation string, cost int64, success bool, errorMessage string)
}

// Admitted describes a successful admission.
type Admitted struct {
	Operation string        `json:"operation"`
	Cost      int64         `json:"cost"`
	Used      int64         `json:"used"`      // Usage after this request
	Remaining int64         `json:"remaining"` // QuotaUnlimited for unlimited tiers
	Limit     int64         `json:"limit"`
	ResetIn   time.Duration `json:"-"`
}

// Status is the read-only quota view for a (user, operation) pair.
type Status struct {
	Operation      string `json:"operation"`
	Used           int64  `json:"used"`
	Remaining      int64  `json:"remaining"`
	Limit          int64  `json:"limit"`
	ResetInSeconds int64  `json:"reset_in_seconds"`
}

// Controller decides, per request, whether an operation may proceed and
// charges the usage ledger when it does. It never fails with an internal
// error: every call returns Admitted or a typed rejection.
type Controller struct {
	ledger   *Ledger
	inflight *InflightTracker
	sink     UsageSink
	now      func() time.Time
}

func NewController(window time.Duration, sink UsageSink) *Controller {
	return &Controller{
		ledger:   NewLedger(window),
		inflight: NewInflightTracker(),
		sink:     sink,
		now:      time.Now,
	}
}

// SetClock overrides the controller's time source. Tests only.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Controller) Inflight() *InflightTracker {
	return c.inflight
}

func (c *Controller) Window() time.Duration {
	return c.ledger.Window()
}

// CheckEntitlement is the coarse feature gate, consulted before any quota
// arithmetic. A denial records nothing: the user is never charged for a
// feature their tier cannot use.
func (c *Controller) CheckEntitlement(p Principal, operation string) error {
	if tierpolicy.FeatureAllowed(p.Tier, operation) {
		return nil
	}
	return &FeatureNotEntitledError{
		Operation:    operation,
		Tier:         p.Tier,
		RequiredTier: tierpolicy.RequiredTierFor(operation),
	}
}

// CheckAndRecord admits or rejects one request. Admission and the ledger
// append are a single atomic step per (user, operation) key, so two
// concurrent requests can never both be admitted into quota space that
// only fits one. Usage is charged for admission, not for completion of
// the downstream work: a later cancellation does not roll it back.
func (c *Controller) CheckAndRecord(p Principal, operation string) (*Admitted, error) {
	now := c.now()
	cost := tierpolicy.EffectiveCost(p.Tier, operation)
	quota := p.quota()

	used, retryAfter, admitted := c.ledger.Admit(p.UserID, operation, now, cost, quota)
	if !admitted {
		if c.sink != nil {
			c.sink.Record(p.UserID, operation, 0, false, "quota exceeded")
		}
		return nil, &QuotaExceededError{
			Operation:  operation,
			Used:       used,
			Limit:      quota,
			RetryAfter: retryAfter,
		}
	}

	if c.sink != nil {
		c.sink.Record(p.UserID, operation, cost, true, "")
	}

	usedAfter := used + cost
	remaining := tierpolicy.QuotaUnlimited
	if quota != tierpolicy.QuotaUnlimited {
		remaining = quota - usedAfter
	}

	_, resetIn := c.ledger.Usage(p.UserID, operation, now)
	return &Admitted{
		Operation: operation,
		Cost:      cost,
		Used:      usedAfter,
		Remaining: remaining,
		Limit:     quota,
		ResetIn:   resetIn,
	}, nil
}

// GetStatus reports current usage without recording anything.
func (c *Controller) GetStatus(p Principal, operation string) Status {
	now := c.now()
	quota := p.quota()

	used, resetIn := c.ledger.Usage(p.UserID, operation, now)

	remaining := tierpolicy.QuotaUnlimited
	if quota != tierpolicy.QuotaUnlimited {
		remaining = quota - used
		if remaining < 0 {
			remaining = 0
		}
	}

	return Status{
		Operation:      operation,
		Used:           used,
		Remaining:      remaining,
		Limit:          quota,
		ResetInSeconds: int64(resetIn.Seconds()),
	}
}
