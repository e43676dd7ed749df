// Package audit records terminal decisions durably. Recording is
// asynchronous: the admission path enqueues and returns, a background
// worker drains to storage, and a full buffer drops records (counted)
// rather than adding latency to decisions. A cron-scheduled pruner
// enforces age- and count-based retention.
package audit
