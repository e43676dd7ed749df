package storage

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound indicates no record exists for the requested key.
var ErrRecordNotFound = errors.New("record not found")

// Record is the persisted form of one cached decision, keyed by the cache
// key's string form. Lists are serialized as ordered JSON arrays and
// metadata as an opaque JSON object.
type Record struct {
	// Key is the cache key string form:
	// "operation:paramsHash:userHash:sessionHash:securityLevel".
	Key string

	// Operation is the raw operation text, stored separately so pattern
	// invalidation can match against it.
	Operation string

	// Verdict is the cached decision outcome.
	Verdict string

	// Confidence is the certainty tier.
	Confidence string

	// Reasoning is the decision explanation.
	Reasoning string

	// Alternatives, Restrictions, and InvalidationTriggers are ordered
	// lists.
	Alternatives         []string
	Restrictions         []string
	InvalidationTriggers []string

	// Metadata is an opaque key-value blob.
	Metadata map[string]any

	// CreatedAt and LastAccessedAt are entry timestamps.
	CreatedAt      time.Time
	LastAccessedAt time.Time

	// AccessCount is the number of successful reads.
	AccessCount int64

	// TTLSeconds is the time-to-live in seconds; <= 0 means no expiry.
	TTLSeconds int64

	// Priority orders entries under priority-aware eviction.
	Priority int

	// Status is the lifecycle status string.
	Status string

	// NeedsRevalidation flags the entry for re-evaluation.
	NeedsRevalidation bool

	// ProcessingTime is how long the original decision took.
	ProcessingTime time.Duration
}

// Expired reports whether the record's TTL has elapsed at the given time.
func (r *Record) Expired(now time.Time) bool {
	if r.TTLSeconds <= 0 {
		return false
	}
	return now.After(r.CreatedAt.Add(time.Duration(r.TTLSeconds) * time.Second))
}

// Store is a durable backing store for cached decisions.
//
// Implementations must be safe for concurrent use. The cache accesses the
// store without holding its in-memory lock, so store operations must not
// call back into the cache.
type Store interface {
	// Save inserts or overwrites the record for its key.
	Save(ctx context.Context, rec *Record) error

	// Load returns the record for the key, or ErrRecordNotFound.
	Load(ctx context.Context, key string) (*Record, error)

	// Delete removes the record for the key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes records whose key or operation contains the
	// substring and returns the number removed.
	DeleteMatching(ctx context.Context, substr string) (int, error)

	// DeleteAll removes every record and returns the number removed.
	DeleteAll(ctx context.Context) (int, error)

	// LoadActive returns all active, unexpired records, for cache warming.
	LoadActive(ctx context.Context, now time.Time) ([]*Record, error)

	// PurgeExpired removes records whose TTL has elapsed and returns the
	// number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// Close releases store resources.
	Close() error
}
