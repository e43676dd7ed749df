// Package server exposes the decision pipeline over HTTP.
//
// It provides the admission endpoint that tool-execution layers call
// before running an operation, plus the operational surface around it.
//
// # Routes
//
//   - POST /v1/evaluate - evaluate an operation and return a decision
//   - GET /v1/stats - running pipeline statistics
//   - GET /healthz - liveness probe (always 200 while the process runs)
//   - GET /readyz - readiness probe (200 once the pipeline is wired)
//   - GET /metrics - Prometheus metrics
//
// # Middleware Chain
//
// Requests pass through the following middleware (outermost first):
//  1. Recovery: recovers from handler panics and returns 500
//  2. RequestID: propagates or generates X-Request-ID
//  3. Logging: logs method, path, status, and duration
//  4. Timeout: bounds total handling time per request
//
// # Lifecycle
//
// Start blocks until the context is cancelled, a shutdown signal
// (SIGTERM/SIGINT) arrives, or the listener fails. Graceful shutdown
// waits for in-flight requests up to the configured shutdown timeout.
package server
