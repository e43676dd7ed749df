// Package rules implements the fast rule-based classifier: the second
// phase of the Sentinel pipeline.
//
// Rules are ordered regex patterns over the operation text, each carrying
// a threat level, an action, and a priority (lower numbers evaluate
// first). Evaluation records every matching rule and resolves the final
// threat level to the highest severity across all matches, so a
// low-priority safe pattern can never mask a dangerous substring; a
// block-class match short-circuits further scanning. Rules with invalid
// patterns are logged and skipped, never fatal.
//
// Rule sets are read-mostly: evaluation takes a read lock, so concurrent
// evaluations are never serialized behind each other; mutation (AddRule,
// Replace) takes the write lock. Rule files are YAML and can be hot
// reloaded through the fsnotify-based Watcher.
package rules
