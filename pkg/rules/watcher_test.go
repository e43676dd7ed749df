package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watcherRuleTemplate = `
extend_defaults: false
rules:
  - id: %s
    pattern: 'deploy'
    threat_level: high
    action: block
    enabled: true
    priority: 1
`

func waitForRule(t *testing.T, e *Engine, id string) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range e.Stats() {
			if s.ID == id {
				return true
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	return false
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write rules file: %v", err)
		}
	}

	write("extend_defaults: false\nrules:\n  - id: first\n    pattern: 'x'\n    enabled: true\n")

	e := NewEngine(nil, testLogger())
	w, err := NewWatcher(path, e, 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Initial load happens on Start.
	if !waitForRule(t, e, "first") {
		t.Fatal("initial rule set not loaded")
	}

	// A write replaces the set after the debounce interval.
	write("extend_defaults: false\nrules:\n  - id: second\n    pattern: 'y'\n    enabled: true\n")
	if !waitForRule(t, e, "second") {
		t.Fatal("rule set not reloaded after file change")
	}

	// An invalid write keeps the previous set.
	write("rules:\n  - id: broken\n    pattern: '('\n    enabled: true\n")
	time.Sleep(300 * time.Millisecond)
	if !waitForRule(t, e, "second") {
		t.Fatal("invalid reload replaced the working rule set")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop on context cancel")
	}
}

func TestWatcherRejectsDoubleStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := "extend_defaults: false\nrules:\n  - id: marker\n    pattern: 'x'\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	e := NewEngine(nil, testLogger())
	w, err := NewWatcher(path, e, 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// The initial load completing proves the first Start is running.
	if !waitForRule(t, e, "marker") {
		t.Fatal("watcher never started")
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start accepted while the first is running")
	}
}
