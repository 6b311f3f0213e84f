package admission

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 3600 * time.Second

type recordedDecision struct {
	userID    uuid.UUID
	operation string
	cost      int64
	success   bool
}

type captureSink struct {
	mu        sync.Mutex
	decisions []recordedDecision
}

func (s *captureSink) Record(userID uuid.UUID, operation string, cost int64, success bool, errorMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, recordedDecision{userID, operation, cost, success})
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions)
}

// Fixed-epoch clock advanced manually by tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestController(sink UsageSink) (*Controller, *fakeClock) {
	c := NewController(testWindow, sink)
	clock := newFakeClock()
	c.SetClock(clock.Now)
	return c, clock
}

func quotaOf(n int64) *int64 {
	return &n
}

func TestWindowCorrectness(t *testing.T) {
	c, clock := newTestController(nil)
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree}

	// "suggestions" costs 2 on the free tier. Requests at t=0, t=1800
	// and t=3601: by the third, the first has aged out of the window.
	admitted, err := c.CheckAndRecord(p, "suggestions")
	require.NoError(t, err)
	assert.Equal(t, int64(2), admitted.Used)

	clock.Advance(1800 * time.Second)
	admitted, err = c.CheckAndRecord(p, "suggestions")
	require.NoError(t, err)
	assert.Equal(t, int64(4), admitted.Used)

	clock.Advance(1801 * time.Second)
	admitted, err = c.CheckAndRecord(p, "suggestions")
	require.NoError(t, err)
	// Only the t=1800 entry was still in the window before this request
	assert.Equal(t, int64(4), admitted.Used)
}

func TestNoDoubleAdmissionAtQuotaBoundary(t *testing.T) {
	// "abstract" costs 3 on the free tier; a quota of 5 fits exactly one.
	// Whatever the interleaving, two concurrent requests must never both
	// be admitted.
	for i := 0; i < 50; i++ {
		c, _ := newTestController(nil)
		p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree, CustomQuota: quotaOf(5)}

		var wg sync.WaitGroup
		results := make([]error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_, results[idx] = c.CheckAndRecord(p, "abstract")
			}(j)
		}
		wg.Wait()

		admittedCount := 0
		for _, err := range results {
			if err == nil {
				admittedCount++
			} else {
				var quotaErr *QuotaExceededError
				require.ErrorAs(t, err, &quotaErr)
			}
		}
		require.Equal(t, 1, admittedCount, "iteration %d", i)
	}
}

func TestExactFillAdmitted(t *testing.T) {
	c, _ := newTestController(nil)
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree, CustomQuota: quotaOf(10)}

	// Five cost-2 requests fill the quota exactly
	var admitted *Admitted
	var err error
	for i := 0; i < 5; i++ {
		admitted, err = c.CheckAndRecord(p, "suggestions")
		require.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int64(10), admitted.Used)
	assert.Equal(t, int64(0), admitted.Remaining)

	// The next one does not fit
	_, err = c.CheckAndRecord(p, "suggestions")
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(10), quotaErr.Used)
	assert.Greater(t, quotaErr.RetryAfter, time.Duration(0))
}

func TestUnlimitedTierNeverRejectsButRecords(t *testing.T) {
	c, _ := newTestController(nil)
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierUnlimited}

	for i := 0; i < 100; i++ {
		admitted, err := c.CheckAndRecord(p, "literature_analysis")
		require.NoError(t, err)
		assert.Equal(t, tierpolicy.QuotaUnlimited, admitted.Remaining)
	}

	// Usage is still visible even though nothing is ever rejected
	status := c.GetStatus(p, "literature_analysis")
	cost := tierpolicy.EffectiveCost(tierpolicy.TierUnlimited, "literature_analysis")
	assert.Equal(t, 100*cost, status.Used)
	assert.Equal(t, tierpolicy.QuotaUnlimited, status.Remaining)
}

func TestEntitlementGatePrecedesQuotaCharge(t *testing.T) {
	sink := &captureSink{}
	c, _ := newTestController(sink)
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree}

	err := c.CheckEntitlement(p, "literature_analysis")
	var notEntitled *FeatureNotEntitledError
	require.ErrorAs(t, err, &notEntitled)
	assert.Equal(t, tierpolicy.TierPremium, notEntitled.RequiredTier)
	assert.Equal(t, tierpolicy.TierFree, notEntitled.Tier)

	// Nothing was charged and nothing reached the sink
	status := c.GetStatus(p, "literature_analysis")
	assert.Equal(t, int64(0), status.Used)
	assert.Equal(t, 0, sink.count())
}

func TestEntitlementAllowedForSufficientTier(t *testing.T) {
	c, _ := newTestController(nil)

	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierPremium}
	assert.NoError(t, c.CheckEntitlement(p, "literature_analysis"))

	p = Principal{UserID: uuid.New(), Tier: tierpolicy.TierBasic}
	assert.NoError(t, c.CheckEntitlement(p, "outline"))
}

func TestOversizeRequestNeverRetryable(t *testing.T) {
	c, clock := newTestController(nil)
	// Quota 1 can never fit a cost-2 request
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree, CustomQuota: quotaOf(1)}

	for i := 0; i < 3; i++ {
		_, err := c.CheckAndRecord(p, "suggestions")
		var quotaErr *QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
		assert.Equal(t, time.Duration(0), quotaErr.RetryAfter, "attempt %d", i)
		clock.Advance(10 * time.Minute)
	}
}

func TestRetryAfterTracksOldestEntry(t *testing.T) {
	c, clock := newTestController(nil)
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree, CustomQuota: quotaOf(2)}

	_, err := c.CheckAndRecord(p, "suggestions")
	require.NoError(t, err)

	clock.Advance(600 * time.Second)
	_, err = c.CheckAndRecord(p, "suggestions")
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, testWindow-600*time.Second, quotaErr.RetryAfter)

	// Once the entry expires the same request succeeds
	clock.Advance(quotaErr.RetryAfter + time.Second)
	_, err = c.CheckAndRecord(p, "suggestions")
	assert.NoError(t, err)
}

func TestStatusIsIdempotentAndNonIncreasing(t *testing.T) {
	c, clock := newTestController(nil)
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree}

	_, err := c.CheckAndRecord(p, "suggestions")
	require.NoError(t, err)
	clock.Advance(1000 * time.Second)
	_, err = c.CheckAndRecord(p, "suggestions")
	require.NoError(t, err)

	// Repeated reads with no new requests never change the answer
	first := c.GetStatus(p, "suggestions")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.GetStatus(p, "suggestions"))
	}
	assert.Equal(t, int64(4), first.Used)

	// As time advances past entry timestamps, usage only decreases
	clock.Advance(2601 * time.Second)
	assert.Equal(t, int64(2), c.GetStatus(p, "suggestions").Used)

	clock.Advance(1000 * time.Second)
	assert.Equal(t, int64(0), c.GetStatus(p, "suggestions").Used)
}

func TestZeroCostAlwaysAdmitted(t *testing.T) {
	// Defensive: a misconfigured zero-cost operation must not deny forever
	l := NewLedger(testWindow)
	userID := uuid.New()
	now := time.Unix(1_700_000_000, 0)

	_, _, admitted := l.Admit(userID, "misconfigured", now, 0, 0)
	assert.True(t, admitted)

	_, _, admitted = l.Admit(userID, "misconfigured", now, 0, 0)
	assert.True(t, admitted)
}

func TestKeysAreIndependent(t *testing.T) {
	c, _ := newTestController(nil)
	alice := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree, CustomQuota: quotaOf(2)}
	bob := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree, CustomQuota: quotaOf(2)}

	_, err := c.CheckAndRecord(alice, "suggestions")
	require.NoError(t, err)
	_, err = c.CheckAndRecord(alice, "suggestions")
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)

	// Alice exhausting her quota does not touch Bob, nor her other operations
	_, err = c.CheckAndRecord(bob, "suggestions")
	assert.NoError(t, err)
	_, err = c.CheckAndRecord(alice, "grammar")
	assert.NoError(t, err)
}

func TestCustomQuotaOverridesTier(t *testing.T) {
	c, _ := newTestController(nil)
	// Free tier quota is 50, but the override lifts this user to 200
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree, CustomQuota: quotaOf(200)}

	admitted, err := c.CheckAndRecord(p, "suggestions")
	require.NoError(t, err)
	assert.Equal(t, int64(200), admitted.Limit)
	assert.Equal(t, int64(198), admitted.Remaining)
}

func TestSinkReceivesDecisions(t *testing.T) {
	sink := &captureSink{}
	c, _ := newTestController(sink)
	p := Principal{UserID: uuid.New(), Tier: tierpolicy.TierFree, CustomQuota: quotaOf(2)}

	_, err := c.CheckAndRecord(p, "suggestions")
	require.NoError(t, err)
	_, err = c.CheckAndRecord(p, "suggestions")
	require.Error(t, err)

	require.Equal(t, 2, sink.count())
	assert.True(t, sink.decisions[0].success)
	assert.Equal(t, int64(2), sink.decisions[0].cost)
	assert.False(t, sink.decisions[1].success)
	assert.Equal(t, int64(0), sink.decisions[1].cost)
}

func TestEntitlementResolutionErrorIsDistinct(t *testing.T) {
	wrapped := errors.New("connection refused")
	err := errors.Join(ErrEntitlementResolution, wrapped)
	assert.ErrorIs(t, err, ErrEntitlementResolution)

	var quotaErr *QuotaExceededError
	assert.False(t, errors.As(err, &quotaErr))
}
