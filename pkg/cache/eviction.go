package cache

import (
	"fmt"
	"sort"
	"time"
)

// Policy selects the eviction strategy used when the cache is at capacity.
type Policy string

const (
	// PolicyLRU evicts the least-recently-accessed entries.
	PolicyLRU Policy = "lru"

	// PolicyLFU evicts the least-frequently-accessed entries.
	PolicyLFU Policy = "lfu"

	// PolicyTTL evicts expired entries, falling back to oldest-first when
	// nothing has expired, so the capacity bound always holds.
	PolicyTTL Policy = "ttl"

	// PolicyPriority evicts the lowest-priority entries first.
	PolicyPriority Policy = "priority"

	// PolicyAdaptive purges expired entries first, then scores the
	// remainder on access frequency, recency, priority, and age, evicting
	// the lowest-scoring.
	PolicyAdaptive Policy = "adaptive"
)

// ParsePolicy converts a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyLRU, PolicyLFU, PolicyTTL, PolicyPriority, PolicyAdaptive:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

// evictionBatch is the fraction of capacity evicted per cycle. Evicting
// ~10% at a time amortizes the scan cost instead of evicting one entry
// per insert.
const evictionBatch = 10

// evictLocked frees room for at least one new entry. Caller must hold the
// write lock. Returns the number of entries evicted.
func (c *DecisionCache) evictLocked(now time.Time) int {
	target := c.maxEntries / evictionBatch
	if target < 1 {
		target = 1
	}

	var evicted int
	switch c.policy {
	case PolicyTTL:
		evicted = c.removeExpiredLocked(now)
		if len(c.entries) >= c.maxEntries {
			evicted += c.evictByLocked(target-evicted, byCreation)
		}
	case PolicyAdaptive:
		evicted = c.removeExpiredLocked(now)
		if len(c.entries) >= c.maxEntries {
			evicted += c.evictAdaptiveLocked(target, now)
		}
	case PolicyLFU:
		evicted = c.evictByLocked(target, byAccessCount)
	case PolicyPriority:
		evicted = c.evictByLocked(target, byPriority)
	default: // PolicyLRU
		evicted = c.evictByLocked(target, byLastAccess)
	}

	if evicted > 0 && c.metrics != nil {
		c.metrics.RecordEvictions(string(c.policy), evicted)
	}
	c.stats.Evictions += int64(evicted)
	return evicted
}

// removeExpiredLocked drops every expired entry. Caller must hold the
// write lock.
func (c *DecisionCache) removeExpiredLocked(now time.Time) int {
	n := 0
	for key, e := range c.entries {
		if e.IsExpired(now) {
			e.Status = StatusExpired
			delete(c.entries, key)
			n++
		}
	}
	if n > 0 {
		c.stats.Expired += int64(n)
		if c.metrics != nil {
			c.metrics.RecordExpired(n)
		}
	}
	return n
}

// victimOrder ranks two entries; the lesser entry is evicted first.
type victimOrder func(a, b *Entry) bool

func byLastAccess(a, b *Entry) bool { return a.LastAccessedAt.Before(b.LastAccessedAt) }
func byAccessCount(a, b *Entry) bool {
	if a.AccessCount != b.AccessCount {
		return a.AccessCount < b.AccessCount
	}
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}
func byPriority(a, b *Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}
func byCreation(a, b *Entry) bool { return a.CreatedAt.Before(b.CreatedAt) }

// evictByLocked removes up to n entries in the given victim order.
func (c *DecisionCache) evictByLocked(n int, less victimOrder) int {
	if n < 1 {
		return 0
	}

	candidates := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	if n > len(candidates) {
		n = len(candidates)
	}
	for _, e := range candidates[:n] {
		delete(c.entries, e.Key.String())
	}
	return n
}

// evictAdaptiveLocked scores every entry and evicts the n lowest-scoring.
func (c *DecisionCache) evictAdaptiveLocked(n int, now time.Time) int {
	if n < 1 {
		return 0
	}

	type scored struct {
		key   string
		score float64
	}
	candidates := make([]scored, 0, len(c.entries))
	for key, e := range c.entries {
		candidates = append(candidates, scored{key: key, score: adaptiveScore(e, now)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	if n > len(candidates) {
		n = len(candidates)
	}
	for _, s := range candidates[:n] {
		delete(c.entries, s.key)
	}
	return n
}

// adaptiveScore weighs access frequency, access recency, priority, and
// entry age. Higher scores survive eviction:
//
//	0.3·accessCount + 0.3·(1/max(recencyHours, 0.1))
//	  + 0.2·priority + 0.2·(1/max(ageHours, 0.1))
func adaptiveScore(e *Entry, now time.Time) float64 {
	recencyHours := now.Sub(e.LastAccessedAt).Hours()
	if recencyHours < 0.1 {
		recencyHours = 0.1
	}
	ageHours := now.Sub(e.CreatedAt).Hours()
	if ageHours < 0.1 {
		ageHours = 0.1
	}

	return 0.3*float64(e.AccessCount) +
		0.3*(1/recencyHours) +
		0.2*float64(e.Priority) +
		0.2*(1/ageHours)
}
