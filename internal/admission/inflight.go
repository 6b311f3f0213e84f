package admission

import (
	"sync"

	"github.com/google/uuid"
)

// InflightTracker counts concurrent in-flight requests per user so the
// tier's concurrency ceiling can be enforced alongside the quota check.
type InflightTracker struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

func NewInflightTracker() *InflightTracker {
	return &InflightTracker{
		counts: make(map[uuid.UUID]int),
	}
}

// Acquire reserves an in-flight slot for the user. Returns false when the
// user already has limit requests in flight.
func (t *InflightTracker) Acquire(userID uuid.UUID, limit int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.counts[userID] >= limit {
		return false
	}
	t.counts[userID]++
	return true
}

// Release returns a slot acquired with Acquire. Must be called exactly
// once per successful Acquire, typically deferred around the handler.
func (t *InflightTracker) Release(userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.counts[userID] <= 1 {
		delete(t.counts, userID)
		return
	}
	t.counts[userID]--
}

// Count reports the user's current in-flight requests.
func (t *InflightTracker) Count(userID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID]
}
