package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mercator-hq/sentinel/pkg/cache"
	"mercator-hq/sentinel/pkg/decision"
	"mercator-hq/sentinel/pkg/fallback"
	"mercator-hq/sentinel/pkg/rules"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/timeout"
)

// Request is one admission request flowing through the pipeline.
type Request struct {
	Operation      string
	Parameters     map[string]any
	SessionID      string
	UserContext    map[string]any
	SessionContext map[string]any
	RequestID      string
	SecurityLevel  string

	// OperationClass overrides keyword classification for the slow
	// path. Empty means classify.
	OperationClass timeout.OperationClass
}

// Evaluator is the slow reasoning backend. The pipeline only defines
// the contract it is invoked through; any implementation (an LLM, a
// policy service, a mock) satisfies it.
type Evaluator interface {
	EvaluateOperation(ctx context.Context, req Request) (*decision.Decision, error)
}

// transientTTL bounds how long decisions made without the evaluator
// (timeout fallbacks, emergency outcomes) stay cached. They reflect a
// failure condition, not a property of the operation.
const transientTTL = 60 * time.Second

// Pipeline sequences the decision phases for each request.
type Pipeline struct {
	cache     *cache.DecisionCache
	rules     *rules.Engine
	fallback  *fallback.Engine
	timeouts  *timeout.Manager
	evaluator Evaluator

	group   singleflight.Group
	stats   *runningStats
	metrics *metrics.DecisionMetrics
	logger  *slog.Logger
}

// Options configures a Pipeline beyond its collaborators.
type Options struct {
	Metrics *metrics.DecisionMetrics
	Logger  *slog.Logger
}

// New creates a pipeline. Rules, fallback, and timeout collaborators
// are required. The cache is optional: nil disables the cache phase
// and write-back, so every request takes the rule or slow path. With a
// nil evaluator the slow path degrades to the timeout manager's
// default actions.
func New(c *cache.DecisionCache, r *rules.Engine, fb *fallback.Engine, tm *timeout.Manager, ev Evaluator, opts Options) (*Pipeline, error) {
	if r == nil || fb == nil || tm == nil {
		return nil, errors.New("pipeline requires rules, fallback, and timeout collaborators")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "pipeline")
	}
	return &Pipeline{
		cache:     c,
		rules:     r,
		fallback:  fb,
		timeouts:  tm,
		evaluator: ev,
		stats:     newRunningStats(),
		metrics:   opts.Metrics,
		logger:    logger,
	}, nil
}

// Evaluate runs the request through the pipeline, streaming decisions
// on the returned channel. Zero or more intermediate decisions (verdict
// review) precede exactly one terminal decision; the channel closes
// after the terminal decision is sent.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) <-chan *decision.Decision {
	out := make(chan *decision.Decision, 2)
	go func() {
		defer close(out)
		terminal := p.decide(ctx, req, func(inter *decision.Decision) {
			select {
			case out <- inter:
			case <-ctx.Done():
			}
		})
		select {
		case out <- terminal:
		case <-ctx.Done():
		}
	}()
	return out
}

// EvaluateSync runs the request through the pipeline and returns only
// the terminal decision.
func (p *Pipeline) EvaluateSync(ctx context.Context, req Request) *decision.Decision {
	return p.decide(ctx, req, nil)
}

// decide executes the phases in order. It never returns nil and never
// panics: a panic in any phase resolves through the emergency engine.
func (p *Pipeline) decide(ctx context.Context, req Request, emit func(*decision.Decision)) (terminal *decision.Decision) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline phase panicked, handing to emergency engine",
				"panic", fmt.Sprint(r), "operation", req.Operation, "request_id", req.RequestID)
			terminal = p.fallback.EvaluateEmergency(req.Operation, req.Parameters, req.SessionID)
			k := cache.GenerateKey(req.Operation, req.Parameters, req.UserContext, req.SessionContext, req.SecurityLevel)
			p.finish(ctx, req, terminal, &k, start)
		}
	}()

	phases := map[string]any{}

	// Phase 1: cache. The key is computed unconditionally because it
	// also deduplicates slow-path calls.
	key := cache.GenerateKey(req.Operation, req.Parameters, req.UserContext, req.SessionContext, req.SecurityLevel)
	if p.cache == nil {
		phases["cache"] = "disabled"
	} else if entry, ok := p.cache.Get(ctx, key); ok {
		d := entry.Decision()
		phases["cache"] = "hit"
		d.PhaseResults = phases
		p.finish(ctx, req, d, nil, start)
		return d
	} else {
		phases["cache"] = "miss"
	}

	// Phase 2: fast rules.
	text := operationText(req.Operation, req.Parameters)
	if d, ok := p.rules.Evaluate(text); ok {
		phases["rules"] = "conclusive"
		d.PhaseResults = phases
		p.finish(ctx, req, d, &key, start)
		return d
	}
	phases["rules"] = "inconclusive"

	if emit != nil {
		emit(&decision.Decision{
			ID:          uuid.NewString(),
			Verdict:     decision.VerdictReview,
			Confidence:  decision.ConfidenceUncertain,
			Reasoning:   "fast rules were inconclusive; consulting the slow evaluator",
			Source:      decision.SourceRuleBased,
			Operation:   req.Operation,
			SessionID:   req.SessionID,
			RequestID:   req.RequestID,
			Timestamp:   time.Now(),
			ThreatLevel: decision.ThreatSafe,
		})
	}

	// Phase 3: slow path, deduplicated so a thundering herd of
	// identical requests costs one evaluation.
	v, err, shared := p.group.Do(key.String(), func() (any, error) {
		return p.timeouts.ExecuteWithTimeout(ctx, req.Operation, req.Parameters, req.SessionID, func(c context.Context) (*decision.Decision, error) {
			if p.evaluator == nil {
				return nil, errors.New("no evaluator configured")
			}
			return p.evaluator.EvaluateOperation(c, req)
		}, req.OperationClass), nil
	})
	if err != nil {
		// The slow path never returns an error; a non-nil one means the
		// shared call's goroutine was lost.
		panic(err)
	}

	// Each request owns its decision outright.
	d := v.(*decision.Decision).Clone()
	phases["slow_path"] = string(d.Source)
	if shared {
		phases["slow_path_shared"] = true
	}
	d.RequestID = req.RequestID
	d.SessionID = req.SessionID
	d.PhaseResults = phases

	var writeKey *cache.Key
	if d.Source != decision.SourceSystemOverride {
		writeKey = &key
	}
	p.finish(ctx, req, d, writeKey, start)
	return d
}

// finish stamps request identity, writes the decision back to the
// cache, and records accounting. key is nil when the decision must not
// be cached (cache hits, overload rejections); with no cache
// configured the write-back is skipped entirely.
func (p *Pipeline) finish(ctx context.Context, req Request, d *decision.Decision, key *cache.Key, start time.Time) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.RequestID = req.RequestID
	d.SessionID = req.SessionID
	d.Operation = req.Operation
	d.Parameters = req.Parameters
	if d.ProcessingTime == 0 {
		d.ProcessingTime = time.Since(start)
	}

	if p.cache != nil && key != nil && d.Verdict.IsConclusive() {
		if err := p.cache.Put(ctx, *key, insertFrom(d)); err != nil {
			p.logger.Warn("decision write-back failed",
				"operation", req.Operation, "request_id", req.RequestID, "error", err)
		}
	}

	p.stats.record(d)
	if p.metrics != nil {
		p.metrics.RecordDecision(string(d.Source), string(d.Verdict), d.ProcessingTime, d.Escalated, d.FallbackUsed)
	}

	p.logger.Info("decision",
		"operation", req.Operation,
		"verdict", string(d.Verdict),
		"source", string(d.Source),
		"confidence", string(d.Confidence),
		"threat_level", string(d.ThreatLevel),
		"elapsed_ms", d.ProcessingTime.Milliseconds(),
		"request_id", req.RequestID,
		"session_id", req.SessionID,
	)
}

// insertFrom maps a terminal decision onto a cache insert. Decisions
// made without the evaluator are cached briefly; evaluated and
// rule-based decisions use the cache's default TTL. Priority follows
// threat severity so high-threat verdicts outlive churn under
// priority-aware eviction.
func insertFrom(d *decision.Decision) cache.Insert {
	ins := cache.Insert{
		Verdict:        d.Verdict,
		Confidence:     d.Confidence,
		Reasoning:      d.Reasoning,
		Alternatives:   d.Alternatives,
		Restrictions:   d.Restrictions,
		Priority:       d.ThreatLevel.Severity(),
		ProcessingTime: d.ProcessingTime,
		Metadata: map[string]any{
			"source":    string(d.Source),
			"escalated": d.Escalated,
		},
	}
	if d.TimeoutUsed || d.FallbackUsed {
		ins.TTL = transientTTL
		ins.InvalidationTriggers = []string{cache.TriggerSystemConfigChange}
	}
	return ins
}

// operationText flattens the operation and parameters into the text
// the rule patterns match against. Parameter order is stable.
func operationText(operation string, parameters map[string]any) string {
	if len(parameters) == 0 {
		return operation
	}
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text := operation
	for _, k := range keys {
		text += fmt.Sprintf(" %s=%v", k, parameters[k])
	}
	return text
}
