// Package fallback implements the emergency decision engine: the
// backstop the pipeline calls when every other phase has failed or the
// system is in a degraded state.
//
// The engine has no failure path. EvaluateEmergency always returns a
// decision, for arbitrary and even malformed input: an internal rule
// evaluation problem degrades to a conservative block, never to an
// error. Rule matching mirrors the fast rule engine (highest threat
// level across all matches wins), and a global system state
// post-processes the result: in emergency state any non-safe outcome is
// forced to a critical block, and in lockdown every outcome is blocked
// regardless of the rules.
package fallback
