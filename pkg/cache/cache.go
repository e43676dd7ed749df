package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/sentinel/pkg/cache/storage"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/decision"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
)

// DecisionCache is the content-addressed decision store: the first and
// fastest phase of the pipeline.
//
// The in-memory index, access bookkeeping, and statistics are shared
// mutable state guarded by one coarse mutex, because eviction mutates the
// same structures Get and Put touch. The persistent store is accessed
// outside the lock.
type DecisionCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	stats   Stats
	closed  bool

	maxEntries int
	defaultTTL time.Duration
	policy     Policy

	store   storage.Store
	metrics *metrics.CacheMetrics
	logger  *slog.Logger

	// now is the clock, overridable in tests.
	now func() time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	// Entries is the current in-memory entry count.
	Entries int

	// Hits and Misses count Get outcomes.
	Hits   int64
	Misses int64

	// Evictions counts entries removed by capacity eviction.
	Evictions int64

	// Expired counts entries removed after TTL expiry.
	Expired int64

	// Invalidated counts entries removed by invalidation.
	Invalidated int64

	// PutFailures counts inserts rolled back after persistence failures.
	PutFailures int64
}

// HitRate returns the fraction of Gets that were hits.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Options configures a DecisionCache.
type Options struct {
	// MaxEntries is the in-memory capacity. Default: 10000.
	MaxEntries int

	// DefaultTTL is applied to inserts without an explicit TTL.
	DefaultTTL time.Duration

	// Policy is the eviction policy. Default: PolicyAdaptive.
	Policy Policy

	// Store is the durable backing store; nil means memory-only.
	Store storage.Store

	// Metrics is the cache metric group; nil disables metric export.
	Metrics *metrics.CacheMetrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock overrides the time source. Intended for tests.
	Clock func() time.Time
}

// New creates a decision cache.
func New(opts Options) *DecisionCache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = config.DefaultCacheMaxEntries
	}
	if opts.Policy == "" {
		opts.Policy = PolicyAdaptive
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "cache")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &DecisionCache{
		entries:    make(map[string]*Entry),
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		policy:     opts.Policy,
		store:      opts.Store,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.Clock,
	}
}

// NewFromConfig creates a decision cache from configuration, opening the
// SQLite store when persistence is enabled.
func NewFromConfig(cfg *config.CacheConfig, m *metrics.CacheMetrics) (*DecisionCache, error) {
	policy, err := ParsePolicy(cfg.EvictionPolicy)
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if cfg.Persistence.Enabled {
		s, err := storage.NewSQLiteStoreWithConfig(storage.SQLiteStoreConfig{
			Path:         cfg.Persistence.Path,
			BusyTimeout:  cfg.Persistence.BusyTimeout,
			MaxOpenConns: cfg.Persistence.MaxOpenConns,
			MaxIdleConns: cfg.Persistence.MaxIdleConns,
			WALMode:      cfg.Persistence.WALMode,
		})
		if err != nil {
			return nil, err
		}
		store = s
	}

	return New(Options{
		MaxEntries: cfg.MaxEntries,
		DefaultTTL: cfg.DefaultTTL,
		Policy:     policy,
		Store:      store,
		Metrics:    m,
	}), nil
}

// Insert carries the fields of a new cache entry for Put.
type Insert struct {
	// Verdict, Confidence, and Reasoning describe the decision being
	// cached.
	Verdict    decision.Verdict
	Confidence decision.Confidence
	Reasoning  string

	// Alternatives and Restrictions are carried verbatim.
	Alternatives []string
	Restrictions []string

	// Metadata is an open-ended bag persisted as an opaque blob.
	Metadata map[string]any

	// TTL overrides the cache default; zero uses the default, negative
	// means no expiry.
	TTL time.Duration

	// Priority orders the entry under priority-aware eviction.
	Priority int

	// InvalidationTriggers names the trigger events the entry is
	// sensitive to.
	InvalidationTriggers []string

	// ProcessingTime is how long the original decision took.
	ProcessingTime time.Duration
}

// Get returns the entry for the key if present and valid. The in-memory
// index is checked first, then the persistent store. Expired or
// invalidated entries report not-found. A successful Get updates the
// entry's access bookkeeping.
func (c *DecisionCache) Get(ctx context.Context, key Key) (*Entry, bool) {
	ks := key.String()
	now := c.now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}

	if e, ok := c.entries[ks]; ok {
		if e.IsValid(now) {
			e.Touch(now)
			c.stats.Hits++
			cp := *e
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.RecordHit()
			}
			return &cp, true
		}

		// Present but unusable: expired entries are removed and counted,
		// invalidated/revalidation-flagged entries just miss.
		if e.IsExpired(now) {
			e.Status = StatusExpired
			delete(c.entries, ks)
			c.stats.Expired++
			if c.metrics != nil {
				c.metrics.RecordExpired(1)
			}
		}
		c.stats.Misses++
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.RecordMiss()
		}
		return nil, false
	}
	c.mu.Unlock()

	// Fall back to the persistent store.
	if e, ok := c.loadFromStore(ctx, key, now); ok {
		return e, true
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordMiss()
	}
	return nil, false
}

// loadFromStore tries to promote a persisted record into the in-memory
// index. Returns the entry copy and true on success.
func (c *DecisionCache) loadFromStore(ctx context.Context, key Key, now time.Time) (*Entry, bool) {
	if c.store == nil {
		return nil, false
	}

	rec, err := c.store.Load(ctx, key.String())
	if err != nil {
		if !errors.Is(err, storage.ErrRecordNotFound) {
			c.logger.Warn("cache store load failed", "key", key.String(), "error", err)
		}
		return nil, false
	}

	e := entryFromRecord(key, rec)
	if !e.IsValid(now) {
		return nil, false
	}
	e.Touch(now)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	if len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key.String()] = e
	c.stats.Hits++
	cp := *e
	entryCount := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordHit()
		c.metrics.SetEntries(entryCount)
	}
	return &cp, true
}

// Put inserts or overwrites the decision for the key. If the cache is at
// capacity, eviction runs first. When a persistent store is configured,
// a store write failure rolls back the in-memory insert and is returned
// as a PersistenceError: no entry is cached without durable backing.
func (c *DecisionCache) Put(ctx context.Context, key Key, ins Insert) error {
	now := c.now()
	ttl := ins.TTL
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	e := &Entry{
		Key:                  key,
		Verdict:              ins.Verdict,
		Confidence:           ins.Confidence,
		Reasoning:            ins.Reasoning,
		Alternatives:         append([]string(nil), ins.Alternatives...),
		Restrictions:         append([]string(nil), ins.Restrictions...),
		Metadata:             ins.Metadata,
		CreatedAt:            now,
		LastAccessedAt:       now,
		TTL:                  ttl,
		Priority:             ins.Priority,
		Status:               StatusActive,
		InvalidationTriggers: append([]string(nil), ins.InvalidationTriggers...),
		ProcessingTime:       ins.ProcessingTime,
	}

	ks := key.String()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, exists := c.entries[ks]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[ks] = e
	entryCount := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetEntries(entryCount)
	}

	if c.store == nil {
		return nil
	}

	if err := c.store.Save(ctx, recordFromEntry(e)); err != nil {
		// Roll back: the in-memory view must never be ahead of the
		// durable one.
		c.mu.Lock()
		if cur, ok := c.entries[ks]; ok && cur == e {
			cur.Status = StatusError
			delete(c.entries, ks)
		}
		c.stats.PutFailures++
		entryCount = len(c.entries)
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.RecordPutFailure()
			c.metrics.SetEntries(entryCount)
		}
		c.logger.Error("cache put rolled back after persistence failure",
			"key", ks, "error", err)
		return &PersistenceError{Op: "save", Key: ks, Cause: err}
	}
	return nil
}

// Warm loads active, unexpired records from the persistent store into the
// in-memory index, up to capacity. Returns the number of entries loaded.
func (c *DecisionCache) Warm(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	now := c.now()
	records, err := c.store.LoadActive(ctx, now)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}

	loaded := 0
	for _, rec := range records {
		if len(c.entries) >= c.maxEntries {
			break
		}
		key, err := ParseKey(rec.Key)
		if err != nil {
			c.logger.Warn("skipping persisted entry with malformed key", "key", rec.Key)
			continue
		}
		e := entryFromRecord(key, rec)
		if !e.IsValid(now) {
			continue
		}
		c.entries[rec.Key] = e
		loaded++
	}

	if c.metrics != nil {
		c.metrics.SetEntries(len(c.entries))
	}
	c.logger.Info("cache warmed from persistent store",
		"loaded", loaded, "persisted", len(records))
	return loaded, nil
}

// PurgeExpired removes expired entries from memory and the store.
// Returns the total number of entries removed from memory.
func (c *DecisionCache) PurgeExpired(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	n := c.removeExpiredLocked(now)
	entryCount := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetEntries(entryCount)
	}

	if c.store != nil {
		if purged, err := c.store.PurgeExpired(ctx, now); err != nil {
			c.logger.Warn("store purge failed", "error", err)
		} else if purged > 0 {
			c.logger.Debug("purged expired persisted entries", "count", purged)
		}
	}
	return n
}

// Stats returns a snapshot of the cache counters.
func (c *DecisionCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Close releases the cache and its store. Subsequent operations return
// not-found or ErrClosed.
func (c *DecisionCache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// entryFromRecord converts a persisted record back to a cache entry.
func entryFromRecord(key Key, rec *storage.Record) *Entry {
	ttl := time.Duration(rec.TTLSeconds) * time.Second
	if rec.TTLSeconds < 0 {
		ttl = -1
	}
	return &Entry{
		Key:                  key,
		Verdict:              decision.Verdict(rec.Verdict),
		Confidence:           decision.Confidence(rec.Confidence),
		Reasoning:            rec.Reasoning,
		Alternatives:         rec.Alternatives,
		Restrictions:         rec.Restrictions,
		Metadata:             rec.Metadata,
		CreatedAt:            rec.CreatedAt,
		LastAccessedAt:       rec.LastAccessedAt,
		AccessCount:          rec.AccessCount,
		TTL:                  ttl,
		Priority:             rec.Priority,
		Status:               EntryStatus(rec.Status),
		InvalidationTriggers: rec.InvalidationTriggers,
		NeedsRevalidation:    rec.NeedsRevalidation,
		ProcessingTime:       rec.ProcessingTime,
	}
}

// recordFromEntry converts an entry to its persisted form. The store
// keeps TTLs in whole seconds with <= 0 meaning no expiry, so
// sub-second TTLs round up rather than truncating into immortality.
func recordFromEntry(e *Entry) *storage.Record {
	ttlSeconds := int64((e.TTL + time.Second - 1) / time.Second)
	if e.TTL < 0 {
		ttlSeconds = -1
	}
	return &storage.Record{
		Key:                  e.Key.String(),
		Operation:            e.Key.Operation,
		Verdict:              string(e.Verdict),
		Confidence:           string(e.Confidence),
		Reasoning:            e.Reasoning,
		Alternatives:         e.Alternatives,
		Restrictions:         e.Restrictions,
		InvalidationTriggers: e.InvalidationTriggers,
		Metadata:             e.Metadata,
		CreatedAt:            e.CreatedAt,
		LastAccessedAt:       e.LastAccessedAt,
		AccessCount:          e.AccessCount,
		TTLSeconds:           ttlSeconds,
		Priority:             e.Priority,
		Status:               string(e.Status),
		NeedsRevalidation:    e.NeedsRevalidation,
		ProcessingTime:       e.ProcessingTime,
	}
}
