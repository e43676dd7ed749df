package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/sentinel/pkg/decision"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	parameters TEXT NOT NULL DEFAULT '{}',
	verdict TEXT NOT NULL,
	confidence TEXT NOT NULL,
	reasoning TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	threat_level TEXT NOT NULL DEFAULT '',
	matched_rules TEXT NOT NULL DEFAULT '[]',
	cache_used INTEGER NOT NULL DEFAULT 0,
	fallback_used INTEGER NOT NULL DEFAULT 0,
	timeout_used INTEGER NOT NULL DEFAULT 0,
	escalated INTEGER NOT NULL DEFAULT 0,
	processing_time_us INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_records(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_records(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_verdict ON audit_records(verdict);
`

// SQLiteStore persists audit records in SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the audit database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Save writes one record.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if s.isClosed() {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO audit_records (
			id, request_id, session_id, operation, parameters,
			verdict, confidence, reasoning, source, threat_level,
			matched_rules, cache_used, fallback_used, timeout_used,
			escalated, processing_time_us, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.SessionID, rec.Operation, rec.ParametersJSON,
		string(rec.Verdict), string(rec.Confidence), rec.Reasoning, string(rec.Source), string(rec.ThreatLevel),
		rec.MatchedRulesJSON, boolToInt(rec.CacheUsed), boolToInt(rec.FallbackUsed), boolToInt(rec.TimeoutUsed),
		boolToInt(rec.Escalated), rec.ProcessingTime.Microseconds(), rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit record: %w", err)
	}
	return nil
}

// Query returns records matching the filter, newest first.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]*Record, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	var conds []string
	var args []any
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Verdict != "" {
		conds = append(conds, "verdict = ?")
		args = append(args, string(f.Verdict))
	}
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, string(f.Source))
	}
	if f.Escalated != nil {
		conds = append(conds, "escalated = ?")
		args = append(args, boolToInt(*f.Escalated))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.Until.Unix())
	}

	q := "SELECT id, request_id, session_id, operation, parameters, verdict, confidence, reasoning, source, threat_level, matched_rules, cache_used, fallback_used, timeout_used, escalated, processing_time_us, created_at FROM audit_records"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the total number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes records created before the cutoff.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_records WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}
	return res.RowsAffected()
}

// TrimToNewest keeps only the max newest records.
func (s *SQLiteStore) TrimToNewest(ctx context.Context, max int64) (int64, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_records WHERE id NOT IN (
			SELECT id FROM audit_records ORDER BY created_at DESC, id DESC LIMIT ?
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("failed to trim audit records: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanAuditRecord(rows *sql.Rows) (*Record, error) {
	var rec Record
	var verdict, confidence, source, threat string
	var cacheUsed, fallbackUsed, timeoutUsed, escalated int
	var processingUs, createdAt int64

	err := rows.Scan(
		&rec.ID, &rec.RequestID, &rec.SessionID, &rec.Operation, &rec.ParametersJSON,
		&verdict, &confidence, &rec.Reasoning, &source, &threat,
		&rec.MatchedRulesJSON, &cacheUsed, &fallbackUsed, &timeoutUsed,
		&escalated, &processingUs, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit record: %w", err)
	}

	rec.Verdict = decision.Verdict(verdict)
	rec.Confidence = decision.Confidence(confidence)
	rec.Source = decision.Source(source)
	rec.ThreatLevel = decision.ThreatLevel(threat)
	rec.CacheUsed = cacheUsed != 0
	rec.FallbackUsed = fallbackUsed != 0
	rec.TimeoutUsed = timeoutUsed != 0
	rec.Escalated = escalated != 0
	rec.ProcessingTime = time.Duration(processingUs) * time.Microsecond
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
