// Package evaluator provides a stand-in slow-path evaluator for local
// runs and integration testing. Production deployments replace it with
// a client for a real reasoning backend.
package evaluator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"mercator-hq/sentinel/pkg/decision"
	"mercator-hq/sentinel/pkg/pipeline"
)

// Mock is a deterministic evaluator that scores operations with simple
// keyword heuristics after a configurable artificial latency.
type Mock struct {
	latency time.Duration
	logger  *slog.Logger
}

// NewMock creates a mock evaluator. A zero latency answers immediately.
func NewMock(latency time.Duration, logger *slog.Logger) *Mock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mock{
		latency: latency,
		logger:  logger.With("component", "evaluator"),
	}
}

// blockWords and reviewWords drive the heuristic verdict. They are
// intentionally cruder than the fast rule set so the mock exercises
// the slow path with plausible but distinct outcomes.
var (
	blockWords  = []string{"rm -rf", "mkfs", "shred", "format", "drop table", "truncate"}
	reviewWords = []string{"sudo", "chmod", "chown", "install", "curl", "wget", "write", "delete", "kill"}
)

// EvaluateOperation implements pipeline.Evaluator. It honors context
// cancellation during its artificial latency, which is what lets the
// timeout manager's deadlines and retries be demonstrated end to end.
func (m *Mock) EvaluateOperation(ctx context.Context, req pipeline.Request) (*decision.Decision, error) {
	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	text := strings.ToLower(req.Operation)
	for k, v := range req.Parameters {
		if s, ok := v.(string); ok {
			text += " " + strings.ToLower(k) + "=" + strings.ToLower(s)
		}
	}

	d := &decision.Decision{
		Verdict:    decision.VerdictAllow,
		Confidence: decision.ConfidenceMedium,
		Reasoning:  "deep evaluation found no concerning patterns",
	}
	switch {
	case containsAny(text, blockWords):
		d.Verdict = decision.VerdictBlock
		d.Confidence = decision.ConfidenceHigh
		d.ThreatLevel = decision.ThreatHigh
		d.Reasoning = "deep evaluation found destructive intent"
	case containsAny(text, reviewWords):
		d.Verdict = decision.VerdictReview
		d.Confidence = decision.ConfidenceMedium
		d.ThreatLevel = decision.ThreatMedium
		d.Reasoning = "deep evaluation found state-changing intent requiring review"
		d.Escalated = true
	}

	m.logger.Debug("mock evaluation complete",
		"operation", req.Operation,
		"verdict", d.Verdict)
	return d, nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
