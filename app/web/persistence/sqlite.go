package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// audit entry kinds
const (
	KindAction   = "action"   // job lifecycle dispatch, create/start/stop/delete/update
	KindRun      = "run"      // manual run trigger
	KindDownload = "download" // manual download trigger
	KindAlert    = "alert"    // backend health transition
)

// Entry is one audit record. TS defaults to now when zero on Record.
type Entry struct {
	ID      int64
	TS      time.Time
	Surface string // originating console, "web" or "tui"
	Kind    string
	JobID   string
	JobName string
	Detail  string
	Outcome string // "ok" or the error text
}

// entryRow is the sqlite image of Entry, timestamps as unix seconds.
type entryRow struct {
	ID      int64  `db:"id"`
	TS      int64  `db:"ts"`
	Surface string `db:"surface"`
	Kind    string `db:"kind"`
	JobID   string `db:"job_id"`
	JobName string `db:"job_name"`
	Detail  string `db:"detail"`
	Outcome string `db:"outcome"`
}

// SQLiteStore implements the audit trail using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens or creates the audit database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Initialize creates the database schema
func (s *SQLiteStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			surface TEXT NOT NULL,
			kind TEXT NOT NULL,
			job_id TEXT DEFAULT '',
			job_name TEXT DEFAULT '',
			detail TEXT DEFAULT '',
			outcome TEXT DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_kind ON audit(kind)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// Record appends one audit entry.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	ts := e.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	row := entryRow{
		TS:      ts.Unix(),
		Surface: e.Surface,
		Kind:    e.Kind,
		JobID:   e.JobID,
		JobName: e.JobName,
		Detail:  e.Detail,
		Outcome: e.Outcome,
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit (ts, surface, kind, job_id, job_name, detail, outcome)
		VALUES (:ts, :surface, :kind, :job_id, :job_name, :detail, :outcome)`, row)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// List returns the newest entries first, up to limit. Zero or negative
// limit falls back to 100.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows := []entryRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, ts, surface, kind, job_id, job_name, detail, outcome
		FROM audit ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	res := make([]Entry, 0, len(rows))
	for _, r := range rows {
		res = append(res, Entry{
			ID:      r.ID,
			TS:      time.Unix(r.TS, 0),
			Surface: r.Surface,
			Kind:    r.Kind,
			JobID:   r.JobID,
			JobName: r.JobName,
			Detail:  r.Detail,
			Outcome: r.Outcome,
		})
	}
	return res, nil
}

// Prune removes entries older than the retention window and reports how
// many went away.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
