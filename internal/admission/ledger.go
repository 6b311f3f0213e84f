package admission

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
)

type ledgerKey struct {
	userID    uuid.UUID
	operation string
}

type entry struct {
	at   time.Time
	cost int64
}

// One (user, operation) slice of the ledger. The bucket mutex serializes
// the prune/sum/compare/append sequence for its key only.
type bucket struct {
	mu      sync.Mutex
	entries []entry
}

// Ledger holds sliding-window usage per (user, operation) key.
//
// Expiry is lazy: stale entries stay in memory until the next check or
// status read touches their key, at which point the whole list is pruned.
// Memory per key is therefore bounded by what the quota admitted in one
// window, which is the accepted tradeoff for not running an eviction
// goroutine. State is in-process only and does not survive a restart.
type Ledger struct {
	window  time.Duration
	mu      sync.RWMutex
	buckets map[ledgerKey]*bucket
}

func NewLedger(window time.Duration) *Ledger {
	return &Ledger{
		window:  window,
		buckets: make(map[ledgerKey]*bucket),
	}
}

func (l *Ledger) Window() time.Duration {
	return l.window
}

// The outer map lock covers only bucket lookup/creation, never the
// per-bucket work, so different keys do not serialize against each other.
func (l *Ledger) bucketFor(key ledgerKey) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{}
	l.buckets[key] = b
	return b
}

// Drops expired entries in place. Caller holds b.mu.
func (b *bucket) prune(cutoff time.Time) {
	kept := b.entries[:0]
	for _, e := range b.entries {
		if !e.at.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	b.entries = kept
}

// Caller holds b.mu.
func (b *bucket) sum() int64 {
	var used int64
	for _, e := range b.entries {
		used += e.cost
	}
	return used
}

// Admit runs the atomic admission step for one key: prune, sum, compare
// against quota, append on success. Returns the usage before this request,
// whether it was admitted, and on rejection how long until the oldest
// surviving entry expires (zero when cost alone exceeds quota and no wait
// can ever help).
func (l *Ledger) Admit(userID uuid.UUID, operation string, now time.Time, cost, quota int64) (used int64, retryAfter time.Duration, admitted bool) {
	b := l.bucketFor(ledgerKey{userID: userID, operation: operation})

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now.Add(-l.window))
	used = b.sum()

	// Unlimited tiers and zero-cost operations always pass; entries are
	// still recorded so usage reporting stays accurate.
	if quota != tierpolicy.QuotaUnlimited && cost > 0 && used+cost > quota {
		if cost > quota {
			return used, 0, false
		}
		return used, b.entries[0].at.Add(l.window).Sub(now), false
	}

	b.entries = append(b.entries, entry{at: now, cost: cost})
	return used, 0, true
}

// Usage reports in-window consumption and the time until the oldest entry
// expires, without recording anything. It still prunes the key's list,
// which is how stale entries get reclaimed on read-only paths.
func (l *Ledger) Usage(userID uuid.UUID, operation string, now time.Time) (used int64, resetIn time.Duration) {
	b := l.bucketFor(ledgerKey{userID: userID, operation: operation})

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now.Add(-l.window))
	used = b.sum()
	if len(b.entries) > 0 {
		resetIn = b.entries[0].at.Add(l.window).Sub(now)
	}
	return used, resetIn
}
