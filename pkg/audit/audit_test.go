package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/decision"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord(id, session string, verdict decision.Verdict, created time.Time) *Record {
	return &Record{
		ID:             id,
		RequestID:      "req-" + id,
		SessionID:      session,
		Operation:      "op " + id,
		ParametersJSON: "{}",
		Verdict:        verdict,
		Confidence:     decision.ConfidenceHigh,
		Reasoning:      "because",
		Source:         decision.SourceRuleBased,
		ThreatLevel:    decision.ThreatLow,

		MatchedRulesJSON: `["r1"]`,
		ProcessingTime:   3 * time.Millisecond,
		CreatedAt:        created,
	}
}

func runStoreTests(t *testing.T, name string, open func(t *testing.T) Store) {
	t.Run(name+"/save and query", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		base := time.Now().Add(-time.Hour).Truncate(time.Second)
		for i, v := range []decision.Verdict{decision.VerdictAllow, decision.VerdictBlock, decision.VerdictAllow} {
			rec := testRecord(string(rune('a'+i)), "s-1", v, base.Add(time.Duration(i)*time.Minute))
			if err := s.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}
		if err := s.Save(ctx, testRecord("z", "s-2", decision.VerdictBlock, base)); err != nil {
			t.Fatalf("Save: %v", err)
		}

		n, err := s.Count(ctx)
		if err != nil || n != 4 {
			t.Fatalf("Count = %d, %v; want 4", n, err)
		}

		got, err := s.Query(ctx, Filter{SessionID: "s-1"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("session query = %d records, want 3", len(got))
		}
		// Newest first.
		if !got[0].CreatedAt.After(got[2].CreatedAt) {
			t.Errorf("records not newest-first: %v then %v", got[0].CreatedAt, got[2].CreatedAt)
		}

		got, err = s.Query(ctx, Filter{Verdict: decision.VerdictBlock})
		if err != nil || len(got) != 2 {
			t.Fatalf("verdict query = %d, %v; want 2", len(got), err)
		}

		got, err = s.Query(ctx, Filter{SessionID: "s-1", Limit: 1})
		if err != nil || len(got) != 1 {
			t.Fatalf("limited query = %d, %v; want 1", len(got), err)
		}

		got, err = s.Query(ctx, Filter{Since: base.Add(90 * time.Second)})
		if err != nil || len(got) != 1 {
			t.Fatalf("since query = %d, %v; want 1", len(got), err)
		}
	})

	t.Run(name+"/retention deletes", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		now := time.Now().Truncate(time.Second)
		for i := 0; i < 5; i++ {
			rec := testRecord(string(rune('a'+i)), "s-1", decision.VerdictAllow, now.Add(time.Duration(i-5)*24*time.Hour))
			if err := s.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}

		removed, err := s.DeleteOlderThan(ctx, now.Add(-3*24*time.Hour))
		if err != nil {
			t.Fatalf("DeleteOlderThan: %v", err)
		}
		if removed != 2 {
			t.Errorf("removed = %d, want 2", removed)
		}

		removed, err = s.TrimToNewest(ctx, 1)
		if err != nil {
			t.Fatalf("TrimToNewest: %v", err)
		}
		if removed != 2 {
			t.Errorf("trimmed = %d, want 2", removed)
		}

		n, _ := s.Count(ctx)
		if n != 1 {
			t.Errorf("count after retention = %d, want 1", n)
		}
	})

	t.Run(name+"/closed store errors", func(t *testing.T) {
		s := open(t)
		s.Close()
		if err := s.Save(context.Background(), testRecord("x", "s", decision.VerdictAllow, time.Now())); err == nil {
			t.Error("Save on a closed store succeeded")
		}
	})
}

func TestStores(t *testing.T) {
	runStoreTests(t, "memory", func(t *testing.T) Store {
		return NewMemoryStore()
	})
	runStoreTests(t, "sqlite", func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		return s
	})
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Save(ctx, testRecord("a", "s-1", decision.VerdictBlock, time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Query(ctx, Filter{})
	if err != nil || len(got) != 1 {
		t.Fatalf("after reopen: %d records, %v; want 1", len(got), err)
	}
	if got[0].Verdict != decision.VerdictBlock || got[0].MatchedRulesJSON != `["r1"]` {
		t.Errorf("record did not round-trip: %+v", got[0])
	}
}

func TestRecordFromDecision(t *testing.T) {
	d := &decision.Decision{
		ID:             "d-1",
		Verdict:        decision.VerdictBlock,
		Confidence:     decision.ConfidenceVeryHigh,
		Reasoning:      "dangerous",
		Source:         decision.SourceRuleBased,
		ThreatLevel:    decision.ThreatCritical,
		Operation:      "rm -rf /",
		Parameters:     map[string]any{"force": true},
		SessionID:      "s-1",
		RequestID:      "r-1",
		MatchedRules:   []string{"destructive-recursive-delete"},
		Escalated:      true,
		ProcessingTime: 2 * time.Millisecond,
		Timestamp:      time.Now(),
	}

	rec := RecordFromDecision(d)
	if rec.ID != "d-1" || rec.Verdict != decision.VerdictBlock {
		t.Errorf("identity not carried: %+v", rec)
	}
	if rec.ParametersJSON != `{"force":true}` {
		t.Errorf("parameters = %s", rec.ParametersJSON)
	}
	if rec.MatchedRulesJSON != `["destructive-recursive-delete"]` {
		t.Errorf("matched rules = %s", rec.MatchedRulesJSON)
	}

	// A bare decision still produces a usable record.
	rec = RecordFromDecision(&decision.Decision{Verdict: decision.VerdictAllow})
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Errorf("bare decision record incomplete: %+v", rec)
	}
	if rec.ParametersJSON != "{}" || rec.MatchedRulesJSON != "[]" {
		t.Errorf("empty JSON defaults wrong: %s %s", rec.ParametersJSON, rec.MatchedRulesJSON)
	}
}

func TestRecorderWritesAsync(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store, &config.AuditConfig{Enabled: true, AsyncBuffer: 10}, testLogger())

	for i := 0; i < 3; i++ {
		r.Record(&decision.Decision{Verdict: decision.VerdictAllow, SessionID: "s-1"})
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	n, _ := store.Count(context.Background())
	if n != 3 {
		t.Errorf("stored = %d, want 3", n)
	}
	if r.Written() != 3 {
		t.Errorf("written counter = %d, want 3", r.Written())
	}
}

func TestRecorderDisabled(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store, &config.AuditConfig{Enabled: false}, testLogger())

	r.Record(&decision.Decision{Verdict: decision.VerdictAllow})
	r.Close()

	n, _ := store.Count(context.Background())
	if n != 0 {
		t.Errorf("disabled recorder stored %d records", n)
	}
}

func TestPruner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 10; i++ {
		rec := testRecord(string(rune('a'+i)), "s-1", decision.VerdictAllow, now.Add(time.Duration(-i)*24*time.Hour))
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	p := NewPruner(store, config.AuditRetentionConfig{Days: 7, MaxRecords: 5}, testLogger())
	removed, err := p.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	// The age rule removes the oldest records, then the cap trims the
	// remainder down to 5.
	if removed != 5 {
		t.Errorf("removed = %d, want 5", removed)
	}

	n, _ := store.Count(ctx)
	if n != 5 {
		t.Errorf("count = %d, want 5", n)
	}

	if err := NewPruner(store, config.AuditRetentionConfig{Schedule: "not a schedule"}, testLogger()).Start(); err == nil {
		t.Error("invalid schedule accepted")
	}
}
