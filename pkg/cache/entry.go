package cache

import (
	"time"

	"mercator-hq/sentinel/pkg/decision"
)

// EntryStatus is the lifecycle state of a cache entry.
type EntryStatus string

const (
	// StatusActive means the entry is usable.
	StatusActive EntryStatus = "active"

	// StatusExpired means the entry's TTL has elapsed.
	StatusExpired EntryStatus = "expired"

	// StatusInvalidated means the entry was removed by an invalidation
	// trigger or an explicit Invalidate call.
	StatusInvalidated EntryStatus = "invalidated"

	// StatusPending means the entry is being written and is not yet
	// backed by durable storage.
	StatusPending EntryStatus = "pending"

	// StatusError means the entry failed persistence and must not be
	// served.
	StatusError EntryStatus = "error"
)

// Entry is one cached decision. The cache exclusively owns entry lifetime:
// entries are created on first decision for a key, mutated only by access
// bookkeeping and invalidation, and destroyed by eviction or invalidation.
type Entry struct {
	// Key is the structured fingerprint this entry is stored under.
	Key Key

	// Verdict is the cached decision outcome.
	Verdict decision.Verdict

	// Confidence is the certainty tier of the cached decision.
	Confidence decision.Confidence

	// Reasoning is the explanation recorded with the original decision.
	Reasoning string

	// Alternatives are the safe alternatives suggested with the decision.
	Alternatives []string

	// Restrictions are the conditions attached to the decision.
	Restrictions []string

	// Metadata is an open-ended bag for decision context that has no
	// structured home.
	Metadata map[string]any

	// CreatedAt is when the entry was inserted.
	CreatedAt time.Time

	// LastAccessedAt is updated on every successful Get.
	LastAccessedAt time.Time

	// AccessCount is incremented on every successful Get.
	AccessCount int64

	// TTL is the entry's time-to-live. Zero or negative means no expiry.
	TTL time.Duration

	// Priority orders entries under the priority and adaptive eviction
	// policies; higher values survive longer.
	Priority int

	// Status is the lifecycle state.
	Status EntryStatus

	// InvalidationTriggers names the trigger events this entry is
	// sensitive to.
	InvalidationTriggers []string

	// NeedsRevalidation flags the entry for re-evaluation; a flagged
	// entry is not served.
	NeedsRevalidation bool

	// ProcessingTime is how long the original decision took to compute.
	ProcessingTime time.Duration
}

// IsExpired reports whether the entry's TTL has elapsed at the given time.
// Entries with TTL <= 0 never expire.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// IsValid reports whether the entry is usable: status active, not expired,
// and not flagged for revalidation.
func (e *Entry) IsValid(now time.Time) bool {
	return e.Status == StatusActive && !e.IsExpired(now) && !e.NeedsRevalidation
}

// Touch records an access.
func (e *Entry) Touch(now time.Time) {
	e.LastAccessedAt = now
	e.AccessCount++
}

// Decision materializes the cached entry as a pipeline decision. The
// caller owns the returned value.
func (e *Entry) Decision() *decision.Decision {
	return &decision.Decision{
		Verdict:      e.Verdict,
		Confidence:   e.Confidence,
		Reasoning:    e.Reasoning,
		Source:       decision.SourceCacheHit,
		CacheUsed:    true,
		Operation:    e.Key.Operation,
		Alternatives: append([]string(nil), e.Alternatives...),
		Restrictions: append([]string(nil), e.Restrictions...),
		Timestamp:    time.Now(),
	}
}
