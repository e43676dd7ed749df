// Package timeout bounds invocations of the slow evaluator. Every call
// runs under a per-operation-class deadline with bounded exponential
// retries; when the evaluator cannot answer in time the manager applies
// the class's default action (a configured safe decision, a cache
// consult, the safe-default rule set, human deferral, or emergency safe
// mode) instead of ever blocking the caller past its budget. A
// concurrency ceiling rejects excess load immediately rather than
// queueing it, and an optional circuit breaker skips the evaluator
// entirely while it is known to be failing.
package timeout
