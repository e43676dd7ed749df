package pipeline

import (
	"sync"
	"time"

	"mercator-hq/sentinel/pkg/decision"
)

// Stats is a snapshot of pipeline accounting since startup.
type Stats struct {
	Total         int64
	BySource      map[decision.Source]int64
	ByVerdict     map[decision.Verdict]int64
	Escalated     int64
	FallbackUsed  int64
	TimeoutUsed   int64
	AverageTime   time.Duration
	CacheHitRate  float64
	FastPathShare float64
}

type runningStats struct {
	mu        sync.Mutex
	total     int64
	bySource  map[decision.Source]int64
	byVerdict map[decision.Verdict]int64
	escalated int64
	fallbacks int64
	timeouts  int64
	totalTime time.Duration
}

func newRunningStats() *runningStats {
	return &runningStats{
		bySource:  make(map[decision.Source]int64),
		byVerdict: make(map[decision.Verdict]int64),
	}
}

func (s *runningStats) record(d *decision.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.bySource[d.Source]++
	s.byVerdict[d.Verdict]++
	s.totalTime += d.ProcessingTime
	if d.Escalated {
		s.escalated++
	}
	if d.FallbackUsed {
		s.fallbacks++
	}
	if d.TimeoutUsed {
		s.timeouts++
	}
}

// Stats returns a copy of the running accounting. The fast-path share
// counts decisions that never touched the slow evaluator.
func (p *Pipeline) Stats() Stats {
	s := p.stats
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Stats{
		Total:        s.total,
		BySource:     make(map[decision.Source]int64, len(s.bySource)),
		ByVerdict:    make(map[decision.Verdict]int64, len(s.byVerdict)),
		Escalated:    s.escalated,
		FallbackUsed: s.fallbacks,
		TimeoutUsed:  s.timeouts,
	}
	for k, v := range s.bySource {
		out.BySource[k] = v
	}
	for k, v := range s.byVerdict {
		out.ByVerdict[k] = v
	}
	if s.total > 0 {
		out.AverageTime = s.totalTime / time.Duration(s.total)
		out.CacheHitRate = float64(s.bySource[decision.SourceCacheHit]) / float64(s.total)
		fast := s.bySource[decision.SourceCacheHit] + s.bySource[decision.SourceRuleBased]
		out.FastPathShare = float64(fast) / float64(s.total)
	}
	return out
}
