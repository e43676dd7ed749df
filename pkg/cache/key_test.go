package cache

import (
	"testing"
)

func TestGenerateKey_Deterministic(t *testing.T) {
	params := map[string]any{
		"path":  "/tmp/file.txt",
		"force": true,
		"nested": map[string]any{
			"b": 2,
			"a": 1,
		},
	}
	userCtx := map[string]any{"user": "alice", "role": "admin"}
	sessionCtx := map[string]any{"session": "s-1"}

	k1 := GenerateKey("file_read", params, userCtx, sessionCtx, "standard")
	k2 := GenerateKey("file_read", params, userCtx, sessionCtx, "standard")

	if k1 != k2 {
		t.Errorf("Expected identical keys, got %v and %v", k1, k2)
	}
}

func TestGenerateKey_IgnoresVolatileFields(t *testing.T) {
	params := map[string]any{"path": "/etc/hosts"}

	k1 := GenerateKey("file_read", params,
		map[string]any{"user": "alice", "timestamp": "2026-01-01T00:00:00Z", "request_id": "r-1"},
		map[string]any{"session": "s-1", "last_activity": "10:00"},
		"standard")
	k2 := GenerateKey("file_read", params,
		map[string]any{"user": "alice", "timestamp": "2026-06-30T12:34:56Z", "request_id": "r-2"},
		map[string]any{"session": "s-1", "last_activity": "23:59"},
		"standard")

	if k1 != k2 {
		t.Errorf("Volatile fields must not affect the key: %v vs %v", k1, k2)
	}
}

func TestGenerateKey_StableFieldChangesKey(t *testing.T) {
	params := map[string]any{"path": "/etc/hosts"}
	session := map[string]any{"session": "s-1"}

	k1 := GenerateKey("file_read", params, map[string]any{"user": "alice"}, session, "standard")
	k2 := GenerateKey("file_read", params, map[string]any{"user": "bob"}, session, "standard")

	if k1 == k2 {
		t.Error("Differing stable user context must change the key")
	}

	k3 := GenerateKey("file_read", params, map[string]any{"user": "alice"}, session, "elevated")
	if k1 == k3 {
		t.Error("Differing security level must change the key")
	}
}

func TestGenerateKey_NormalizesPaths(t *testing.T) {
	k1 := GenerateKey("file_read", map[string]any{"path": "/tmp/./sub/../file.txt"}, nil, nil, "standard")
	k2 := GenerateKey("file_read", map[string]any{"path": "/tmp/file.txt"}, nil, nil, "standard")

	if k1 != k2 {
		t.Errorf("Equivalent paths must hash identically: %v vs %v", k1, k2)
	}

	// Free text containing slashes must not be rewritten.
	k3 := GenerateKey("system_command", map[string]any{"cmd": "rm -rf /tmp/../etc"}, nil, nil, "standard")
	k4 := GenerateKey("system_command", map[string]any{"cmd": "rm -rf /etc"}, nil, nil, "standard")
	if k3 == k4 {
		t.Error("Command text must not be path-normalized")
	}
}

func TestGenerateKey_TrimsStrings(t *testing.T) {
	k1 := GenerateKey("  help  ", map[string]any{"q": "  weather "}, nil, nil, "standard")
	k2 := GenerateKey("help", map[string]any{"q": "weather"}, nil, nil, "standard")

	if k1 != k2 {
		t.Errorf("Trimmed inputs must hash identically: %v vs %v", k1, k2)
	}
}

func TestGenerateKey_NilAndEmptyEquivalent(t *testing.T) {
	k1 := GenerateKey("help", nil, nil, nil, "standard")
	k2 := GenerateKey("help", map[string]any{}, map[string]any{}, map[string]any{}, "standard")

	if k1 != k2 {
		t.Errorf("Nil and empty maps must hash identically: %v vs %v", k1, k2)
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	k := GenerateKey("curl http://example.com:8080/x", map[string]any{"a": 1}, nil, nil, "standard")

	parsed, err := ParseKey(k.String())
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if parsed != k {
		t.Errorf("Round trip mismatch: %v vs %v", parsed, k)
	}
}

func TestParseKey_Malformed(t *testing.T) {
	if _, err := ParseKey("not-a-key"); err == nil {
		t.Error("Expected error for malformed key")
	}
}
