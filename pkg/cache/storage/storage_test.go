package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// storeFactory builds a fresh store per test.
type storeFactory func(t *testing.T) Store

func memoryFactory(t *testing.T) Store {
	return NewMemoryStore()
}

func sqliteFactory(t *testing.T) Store {
	path := filepath.Join(t.TempDir(), "decisions.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(key, operation string) *Record {
	now := time.Now().Truncate(time.Second)
	return &Record{
		Key:            key,
		Operation:      operation,
		Verdict:        "allow",
		Confidence:     "high",
		Reasoning:      "matched safe pattern",
		Alternatives:   []string{"use --dry-run"},
		Restrictions:   []string{"read only"},
		Metadata:       map[string]any{"origin": "test"},
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    3,
		TTLSeconds:     -1,
		Priority:       2,
		Status:         "active",
		ProcessingTime: 1500 * time.Microsecond,
	}
}

func runStoreTests(t *testing.T, factory storeFactory) {
	ctx := context.Background()

	t.Run("SaveLoad", func(t *testing.T) {
		s := factory(t)
		rec := testRecord("help:a:b:c:standard", "help")
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		loaded, err := s.Load(ctx, rec.Key)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.Verdict != "allow" || loaded.Confidence != "high" {
			t.Errorf("Loaded record differs: %+v", loaded)
		}
		if len(loaded.Alternatives) != 1 || loaded.Alternatives[0] != "use --dry-run" {
			t.Errorf("Alternatives not preserved: %v", loaded.Alternatives)
		}
		if loaded.AccessCount != 3 || loaded.Priority != 2 {
			t.Errorf("Counters not preserved: %+v", loaded)
		}
		if loaded.ProcessingTime != 1500*time.Microsecond {
			t.Errorf("Processing time not preserved: %v", loaded.ProcessingTime)
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		s := factory(t)
		if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("Expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := factory(t)
		rec := testRecord("k:a:b:c:standard", "k")
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		rec.Verdict = "block"
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Overwrite failed: %v", err)
		}
		loaded, err := s.Load(ctx, rec.Key)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.Verdict != "block" {
			t.Errorf("Expected overwritten verdict, got %q", loaded.Verdict)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := factory(t)
		rec := testRecord("k:a:b:c:standard", "k")
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := s.Delete(ctx, rec.Key); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Load(ctx, rec.Key); !errors.Is(err, ErrRecordNotFound) {
			t.Error("Expected record gone after delete")
		}
		// Deleting a missing key is not an error.
		if err := s.Delete(ctx, "missing"); err != nil {
			t.Errorf("Delete of missing key failed: %v", err)
		}
	})

	t.Run("DeleteMatching", func(t *testing.T) {
		s := factory(t)
		if err := s.Save(ctx, testRecord("file_read /etc:a:b:c:standard", "file_read /etc")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := s.Save(ctx, testRecord("help:a:b:c:standard", "help")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		n, err := s.DeleteMatching(ctx, "file_read")
		if err != nil {
			t.Fatalf("DeleteMatching failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 deleted, got %d", n)
		}
		if _, err := s.Load(ctx, "help:a:b:c:standard"); err != nil {
			t.Error("Unmatched record should survive")
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		s := factory(t)
		for _, key := range []string{"a:a:b:c:standard", "b:a:b:c:standard"} {
			if err := s.Save(ctx, testRecord(key, key)); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}
		n, err := s.DeleteAll(ctx)
		if err != nil {
			t.Fatalf("DeleteAll failed: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 deleted, got %d", n)
		}
	})

	t.Run("LoadActiveAndPurge", func(t *testing.T) {
		s := factory(t)
		now := time.Now().Truncate(time.Second)

		active := testRecord("active:a:b:c:standard", "active")
		expired := testRecord("expired:a:b:c:standard", "expired")
		expired.CreatedAt = now.Add(-time.Hour)
		expired.TTLSeconds = 60
		invalidated := testRecord("invalid:a:b:c:standard", "invalid")
		invalidated.Status = "invalidated"

		for _, rec := range []*Record{active, expired, invalidated} {
			if err := s.Save(ctx, rec); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}

		records, err := s.LoadActive(ctx, now)
		if err != nil {
			t.Fatalf("LoadActive failed: %v", err)
		}
		if len(records) != 1 || records[0].Key != active.Key {
			t.Errorf("Expected only the active record, got %d", len(records))
		}

		purged, err := s.PurgeExpired(ctx, now)
		if err != nil {
			t.Fatalf("PurgeExpired failed: %v", err)
		}
		if purged != 1 {
			t.Errorf("Expected 1 purged, got %d", purged)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, memoryFactory)
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, sqliteFactory)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.db")

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s1.Save(ctx, testRecord("k:a:b:c:standard", "k")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()

	loaded, err := s2.Load(ctx, "k:a:b:c:standard")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if loaded.Verdict != "allow" {
		t.Errorf("Record did not survive reopen: %+v", loaded)
	}
}

func TestSQLiteStore_TunedPool(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.db")

	s, err := NewSQLiteStoreWithConfig(SQLiteStoreConfig{
		Path:         path,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		WALMode:      false,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if err := s.Save(ctx, testRecord("k:a:b:c:standard", "k")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := s.Load(ctx, "k:a:b:c:standard")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Verdict != "allow" {
		t.Errorf("Unexpected record through tuned pool: %+v", loaded)
	}
}

func TestSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Error("Expected error for empty path")
	}
}
