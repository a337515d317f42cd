// sqlite.go - durable Store backed by modernc.org/sqlite.
//
// DESIGN: One append-only table, WAL mode so the single-writer append path
// never blocks aggregator reads. The pure-Go driver keeps the binary
// CGO-free.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp     INTEGER NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_nanos    INTEGER NOT NULL,
	cache_hit     INTEGER NOT NULL,
	duration_ns   INTEGER NOT NULL,
	outcome       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_records_timestamp ON call_records(timestamp);
`

// SQLiteStore persists the ledger to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The append path is single-writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, rec CallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_records
		 (timestamp, model, input_tokens, output_tokens, cost_nanos, cache_hit, duration_ns, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), rec.Model, rec.InputTokens, rec.OutputTokens,
		rec.CostNanos, boolToInt(rec.CacheHit), rec.Duration.Nanoseconds(), string(rec.Outcome))
	if err != nil {
		return fmt.Errorf("append call record: %w", err)
	}
	return nil
}

// Summary implements Store.
func (s *SQLiteStore) Summary(ctx context.Context) (Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome != 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cost_nanos), 0),
			COALESCE(SUM(input_tokens + output_tokens), 0),
			COALESCE(SUM(duration_ns), 0),
			COALESCE(SUM(cache_hit), 0)
		FROM call_records`)

	var sum Summary
	var durationNs int64
	if err := row.Scan(
		&sum.TotalRequests, &sum.SuccessfulRequests, &sum.FailedRequests,
		&sum.TotalCostNanos, &sum.TotalTokens, &durationNs, &sum.CacheHits,
	); err != nil {
		return Summary{}, fmt.Errorf("summarize call records: %w", err)
	}
	sum.MessagesCount = sum.TotalRequests
	sum.TotalDuration = time.Duration(durationNs)
	return sum, nil
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]CallRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, model, input_tokens, output_tokens, cost_nanos, cache_hit, duration_ns, outcome
		FROM call_records ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CallRecord
	for rows.Next() {
		var rec CallRecord
		var ts, durationNs, cacheHit int64
		var outcome string
		if err := rows.Scan(&ts, &rec.Model, &rec.InputTokens, &rec.OutputTokens,
			&rec.CostNanos, &cacheHit, &durationNs, &outcome); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		rec.CacheHit = cacheHit != 0
		rec.Duration = time.Duration(durationNs)
		rec.Outcome = Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
