package cache

import (
	"context"
	"strings"
)

// InvalidationScope determines how broadly a trigger invalidates.
type InvalidationScope string

const (
	// ScopeGlobal wipes the entire cache.
	ScopeGlobal InvalidationScope = "global"

	// ScopePattern removes entries whose operation or key matches a
	// substring.
	ScopePattern InvalidationScope = "pattern"

	// ScopeSpecific removes a single key.
	ScopeSpecific InvalidationScope = "specific"
)

// Trigger names recognized by the engine. An external policy/config
// subsystem calls TriggerInvalidation when these events occur; the cache
// does not subscribe to event buses itself.
const (
	TriggerSecurityPolicyChange = "security_policy_change"
	TriggerUserContextChange    = "user_context_change"
	TriggerSystemConfigChange   = "system_config_change"
	TriggerFileSystemChange     = "file_system_change"
	TriggerNetworkPolicyChange  = "network_policy_change"
)

// triggerScopes maps known trigger names to their invalidation scope.
// Unknown triggers default to ScopePattern over their own name.
var triggerScopes = map[string]InvalidationScope{
	TriggerSecurityPolicyChange: ScopeGlobal,
	TriggerSystemConfigChange:   ScopeGlobal,
	TriggerUserContextChange:    ScopePattern,
	TriggerFileSystemChange:     ScopePattern,
	TriggerNetworkPolicyChange:  ScopePattern,
}

// Invalidate removes entries matching the pattern. The pattern "*" flushes
// the whole cache; any other pattern is matched as a substring against the
// stored key string form and operation text. Safe to call concurrently
// with reads. Returns the number of in-memory entries removed.
func (c *DecisionCache) Invalidate(ctx context.Context, pattern, reason string) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}

	var removed int
	if pattern == "*" {
		removed = len(c.entries)
		for _, e := range c.entries {
			e.Status = StatusInvalidated
		}
		c.entries = make(map[string]*Entry)
	} else {
		for ks, e := range c.entries {
			if strings.Contains(ks, pattern) || strings.Contains(e.Key.Operation, pattern) {
				e.Status = StatusInvalidated
				delete(c.entries, ks)
				removed++
			}
		}
	}
	c.stats.Invalidated += int64(removed)
	entryCount := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordInvalidated(removed)
		c.metrics.SetEntries(entryCount)
	}

	// The persisted view follows the in-memory one. A store failure here
	// leaves stale persisted entries, which warm-start filtering and TTL
	// purging will catch; the in-memory removal stands either way.
	if c.store != nil {
		var err error
		if pattern == "*" {
			_, err = c.store.DeleteAll(ctx)
		} else {
			_, err = c.store.DeleteMatching(ctx, pattern)
		}
		if err != nil {
			c.logger.Warn("store invalidation failed",
				"pattern", pattern, "reason", reason, "error", err)
			return removed, &PersistenceError{Op: "invalidate", Key: pattern, Cause: err}
		}
	}

	c.logger.Info("cache invalidated",
		"pattern", pattern, "reason", reason, "removed", removed)
	return removed, nil
}

// TriggerInvalidation applies a named invalidation trigger. Entries that
// declared sensitivity to the trigger are always removed; the trigger's
// scope then widens the sweep (global triggers flush everything).
// Returns the number of in-memory entries removed.
func (c *DecisionCache) TriggerInvalidation(ctx context.Context, trigger string) (int, error) {
	scope, known := triggerScopes[trigger]
	if !known {
		scope = ScopePattern
	}

	if scope == ScopeGlobal {
		return c.Invalidate(ctx, "*", "trigger:"+trigger)
	}

	// Pattern scope: remove entries sensitive to this trigger.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	removed := 0
	var victims []string
	for ks, e := range c.entries {
		for _, t := range e.InvalidationTriggers {
			if t == trigger {
				e.Status = StatusInvalidated
				delete(c.entries, ks)
				victims = append(victims, ks)
				removed++
				break
			}
		}
	}
	c.stats.Invalidated += int64(removed)
	entryCount := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordInvalidated(removed)
		c.metrics.SetEntries(entryCount)
	}

	if c.store != nil {
		for _, ks := range victims {
			if err := c.store.Delete(ctx, ks); err != nil {
				c.logger.Warn("store delete failed during trigger invalidation",
					"trigger", trigger, "key", ks, "error", err)
			}
		}
	}

	c.logger.Info("invalidation trigger applied",
		"trigger", trigger, "scope", string(scope), "removed", removed)
	return removed, nil
}
