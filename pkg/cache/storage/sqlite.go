package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite for persistence. It is suitable
// for single-instance deployments where decisions must survive restarts.
//
// Writes always serialize on SQLite's single writer; a larger connection
// pool only helps concurrent reads, and only under WAL.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	mu        sync.RWMutex
	closeOnce sync.Once

	saveStmt   *sql.Stmt
	loadStmt   *sql.Stmt
	deleteStmt *sql.Stmt
	purgeStmt  *sql.Stmt
	activeStmt *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// MaxOpenConns and MaxIdleConns size the connection pool.
	// Default: 1 each.
	MaxOpenConns int
	MaxIdleConns int

	// WALMode enables write-ahead logging. Without it the journal mode
	// is SQLite's default rollback journal.
	WALMode bool
}

// NewSQLiteStore creates a SQLite store with default settings: WAL on,
// a single connection.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{Path: path, WALMode: true})
}

// NewSQLiteStoreWithConfig creates a SQLite store with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 1
	}

	journalMode := "DELETE"
	if cfg.WALMode {
		journalMode = "WAL"
	}
	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, journalMode, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, dbPath: cfg.Path}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		key TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		verdict TEXT NOT NULL,
		confidence TEXT NOT NULL,
		reasoning TEXT,
		alternatives TEXT,
		restrictions TEXT,
		invalidation_triggers TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		last_accessed_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		ttl_seconds INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		needs_revalidation INTEGER NOT NULL DEFAULT 0,
		processing_time_us INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);
	CREATE INDEX IF NOT EXISTS idx_decisions_operation ON decisions(operation);
	CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO decisions (
			key, operation, verdict, confidence, reasoning,
			alternatives, restrictions, invalidation_triggers, metadata,
			created_at, last_accessed_at, access_count, ttl_seconds,
			priority, status, needs_revalidation, processing_time_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			verdict = excluded.verdict,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			alternatives = excluded.alternatives,
			restrictions = excluded.restrictions,
			invalidation_triggers = excluded.invalidation_triggers,
			metadata = excluded.metadata,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			access_count = excluded.access_count,
			ttl_seconds = excluded.ttl_seconds,
			priority = excluded.priority,
			status = excluded.status,
			needs_revalidation = excluded.needs_revalidation,
			processing_time_us = excluded.processing_time_us
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT key, operation, verdict, confidence, reasoning,
			alternatives, restrictions, invalidation_triggers, metadata,
			created_at, last_accessed_at, access_count, ttl_seconds,
			priority, status, needs_revalidation, processing_time_us
		FROM decisions WHERE key = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM decisions WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.purgeStmt, err = s.db.Prepare(`
		DELETE FROM decisions
		WHERE ttl_seconds > 0 AND created_at + ttl_seconds < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare purge statement: %w", err)
	}

	s.activeStmt, err = s.db.Prepare(`
		SELECT key, operation, verdict, confidence, reasoning,
			alternatives, restrictions, invalidation_triggers, metadata,
			created_at, last_accessed_at, access_count, ttl_seconds,
			priority, status, needs_revalidation, processing_time_us
		FROM decisions
		WHERE status = 'active'
		  AND (ttl_seconds <= 0 OR created_at + ttl_seconds >= ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare active statement: %w", err)
	}

	return nil
}

// Save inserts or overwrites the record for its key.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.Key == "" {
		return fmt.Errorf("record key cannot be empty")
	}

	alternatives, err := json.Marshal(rec.Alternatives)
	if err != nil {
		return fmt.Errorf("failed to serialize alternatives: %w", err)
	}
	restrictions, err := json.Marshal(rec.Restrictions)
	if err != nil {
		return fmt.Errorf("failed to serialize restrictions: %w", err)
	}
	triggers, err := json.Marshal(rec.InvalidationTriggers)
	if err != nil {
		return fmt.Errorf("failed to serialize invalidation triggers: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = s.saveStmt.ExecContext(ctx,
		rec.Key, rec.Operation, rec.Verdict, rec.Confidence, rec.Reasoning,
		string(alternatives), string(restrictions), string(triggers), string(metadata),
		rec.CreatedAt.Unix(), rec.LastAccessedAt.Unix(), rec.AccessCount, rec.TTLSeconds,
		rec.Priority, rec.Status, boolToInt(rec.NeedsRevalidation),
		rec.ProcessingTime.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Load returns the record for the key, or ErrRecordNotFound.
func (s *SQLiteStore) Load(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.loadStmt.QueryRowContext(ctx, key)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return rec, nil
}

// Delete removes the record for the key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// DeleteMatching removes records whose key or operation contains substr.
func (s *SQLiteStore) DeleteMatching(ctx context.Context, substr string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pattern := "%" + escapeLike(substr) + "%"
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM decisions
		WHERE key LIKE ? ESCAPE '\' OR operation LIKE ? ESCAPE '\'
	`, pattern, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to delete matching records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteAll removes every record.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM decisions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete all records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// LoadActive returns all active, unexpired records for cache warming.
func (s *SQLiteStore) LoadActive(ctx context.Context, now time.Time) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.activeStmt.QueryContext(ctx, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query active records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeExpired removes records whose TTL has elapsed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.purgeStmt.ExecContext(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, stmt := range []*sql.Stmt{s.saveStmt, s.loadStmt, s.deleteStmt, s.purgeStmt, s.activeStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec                                        Record
		alternatives, restrictions, triggers, meta string
		createdAt, lastAccessed, processingUS      int64
		needsRevalidation                          int
	)

	err := row.Scan(
		&rec.Key, &rec.Operation, &rec.Verdict, &rec.Confidence, &rec.Reasoning,
		&alternatives, &restrictions, &triggers, &meta,
		&createdAt, &lastAccessed, &rec.AccessCount, &rec.TTLSeconds,
		&rec.Priority, &rec.Status, &needsRevalidation, &processingUS,
	)
	if err != nil {
		return nil, err
	}

	// Deserialization failures on individual blobs are not fatal; the
	// decision itself is still usable.
	_ = json.Unmarshal([]byte(alternatives), &rec.Alternatives)
	_ = json.Unmarshal([]byte(restrictions), &rec.Restrictions)
	_ = json.Unmarshal([]byte(triggers), &rec.InvalidationTriggers)
	_ = json.Unmarshal([]byte(meta), &rec.Metadata)

	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.LastAccessedAt = time.Unix(lastAccessed, 0)
	rec.NeedsRevalidation = needsRevalidation != 0
	rec.ProcessingTime = time.Duration(processingUS) * time.Microsecond

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// escapeLike escapes SQL LIKE metacharacters in a literal substring.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
