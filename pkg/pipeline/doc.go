// Package pipeline orchestrates the decision phases: cache lookup,
// fast rules, the timeout-bounded slow evaluator, and the emergency
// engine when everything else has failed. Each request flows through
// the phases strictly in that order and terminates at the first phase
// that produces an authoritative decision; the terminal decision is
// written back to the cache so the next identical request short-
// circuits at phase one. Concurrent identical requests share a single
// slow-path evaluation.
package pipeline
