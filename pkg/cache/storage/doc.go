// Package storage provides durable backing stores for the decision cache.
//
// The Store interface decouples the cache from its persistence mechanism.
// Two backends are provided: an in-memory store for tests and memory-only
// deployments, and a SQLite store for single-instance deployments that
// need decisions to survive restarts.
package storage
