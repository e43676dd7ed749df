// Package cache implements the content-addressed decision cache: the first
// phase of the Sentinel pipeline.
//
// A cache key is a structured fingerprint of (operation, normalized
// parameters, stable user context, stable session context, security level).
// Normalization canonicalizes paths and serializes nested values with
// sorted keys, so two semantically identical requests hash identically
// regardless of map ordering; volatile context fields (timestamps, request
// IDs) are excluded from the fingerprint.
//
// The in-memory index is protected by a single coarse mutex, since eviction
// mutates the same structures Get and Put touch. Persistence is a separate
// concern behind the storage.Store interface and is accessed outside the
// lock; a persistence failure on Put rolls back the in-memory insert so no
// entry is ever cached without durable backing.
//
// Five eviction policies are available at construction: LRU, LFU, TTL,
// priority, and an adaptive policy that scores entries on access frequency,
// recency, priority, and age.
package cache
