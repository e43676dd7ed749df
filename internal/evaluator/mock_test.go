package evaluator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/decision"
	"mercator-hq/sentinel/pkg/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMockVerdicts(t *testing.T) {
	m := NewMock(0, testLogger())
	ctx := context.Background()

	tests := []struct {
		operation string
		want      decision.Verdict
	}{
		{"cat notes.txt", decision.VerdictAllow},
		{"shred secrets.db", decision.VerdictBlock},
		{"sudo systemctl restart nginx", decision.VerdictReview},
	}
	for _, tt := range tests {
		d, err := m.EvaluateOperation(ctx, pipeline.Request{Operation: tt.operation})
		if err != nil {
			t.Fatalf("%q: %v", tt.operation, err)
		}
		if d.Verdict != tt.want {
			t.Errorf("%q: verdict = %s, want %s", tt.operation, d.Verdict, tt.want)
		}
	}
}

func TestMockScansStringParameters(t *testing.T) {
	m := NewMock(0, testLogger())
	d, err := m.EvaluateOperation(context.Background(), pipeline.Request{
		Operation:  "run",
		Parameters: map[string]any{"command": "rm -rf /data"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Verdict != decision.VerdictBlock {
		t.Errorf("verdict = %s, want block", d.Verdict)
	}
}

func TestMockHonorsCancellation(t *testing.T) {
	m := NewMock(5*time.Second, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.EvaluateOperation(ctx, pipeline.Request{Operation: "help"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not interrupt the latency sleep")
	}
}
