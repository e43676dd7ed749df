package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"mercator-hq/sentinel/pkg/decision"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("audit store is closed")

// Record is one audited decision as persisted.
type Record struct {
	ID        string
	RequestID string
	SessionID string
	Operation string

	// ParametersJSON is the request parameters serialized as JSON.
	ParametersJSON string

	Verdict     decision.Verdict
	Confidence  decision.Confidence
	Reasoning   string
	Source      decision.Source
	ThreatLevel decision.ThreatLevel

	// MatchedRulesJSON is the matched rule ID list serialized as JSON.
	MatchedRulesJSON string

	CacheUsed    bool
	FallbackUsed bool
	TimeoutUsed  bool
	Escalated    bool

	ProcessingTime time.Duration
	CreatedAt      time.Time
}

// RecordFromDecision builds an audit record from a terminal decision.
// Serialization failures degrade to empty JSON rather than losing the
// record.
func RecordFromDecision(d *decision.Decision) *Record {
	params := "{}"
	if len(d.Parameters) > 0 {
		if b, err := json.Marshal(d.Parameters); err == nil {
			params = string(b)
		}
	}
	matched := "[]"
	if len(d.MatchedRules) > 0 {
		if b, err := json.Marshal(d.MatchedRules); err == nil {
			matched = string(b)
		}
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := d.Timestamp
	if created.IsZero() {
		created = time.Now()
	}

	return &Record{
		ID:               id,
		RequestID:        d.RequestID,
		SessionID:        d.SessionID,
		Operation:        d.Operation,
		ParametersJSON:   params,
		Verdict:          d.Verdict,
		Confidence:       d.Confidence,
		Reasoning:        d.Reasoning,
		Source:           d.Source,
		ThreatLevel:      d.ThreatLevel,
		MatchedRulesJSON: matched,
		CacheUsed:        d.CacheUsed,
		FallbackUsed:     d.FallbackUsed,
		TimeoutUsed:      d.TimeoutUsed,
		Escalated:        d.Escalated,
		ProcessingTime:   d.ProcessingTime,
		CreatedAt:        created,
	}
}

// Filter narrows a Query. Zero-valued fields are ignored.
type Filter struct {
	SessionID string
	Verdict   decision.Verdict
	Source    decision.Source
	Escalated *bool
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Store persists audit records.
type Store interface {
	// Save writes one record.
	Save(ctx context.Context, rec *Record) error

	// Query returns records matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]*Record, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// DeleteOlderThan removes records created before the cutoff and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// TrimToNewest keeps only the max newest records and returns how
	// many were removed.
	TrimToNewest(ctx context.Context, max int64) (int64, error)

	// Close releases store resources.
	Close() error
}
