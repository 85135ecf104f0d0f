package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dreamup/renew-agent/internal/batch"
)

// Database wraps SQLite connection
type Database struct {
	db    *sql.DB
	runID string
}

// RunRecord represents one account result in the database
type RunRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"runId"`
	AccountStem string    `json:"accountStem"`
	Status      string    `json:"status"`
	AvailableAt string    `json:"availableAt,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Snapshot    string    `json:"snapshot,omitempty"`
	Attempts    int       `json:"attempts"`
	Reloads     int       `json:"reloads"`
	CreatedAt   time.Time `json:"createdAt"`
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

// initSchema creates the necessary tables
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		account_stem TEXT NOT NULL,
		status TEXT NOT NULL,
		available_at TEXT,
		reason TEXT,
		snapshot TEXT,
		attempts INTEGER DEFAULT 0,
		reloads INTEGER DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// ForRun returns a handle whose Record calls are tagged with runID
func (d *Database) ForRun(runID string) *Database {
	return &Database{db: d.db, runID: runID}
}

// Record implements batch.Recorder
func (d *Database) Record(ctx context.Context, res batch.Result) error {
	query := `
		INSERT INTO runs (id, run_id, account_stem, status, available_at, reason, snapshot, attempts, reloads, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, query,
		uuid.New().String(),
		d.runID,
		res.Stem,
		string(res.Status),
		nullable(res.AvailableAt),
		nullable(res.Reason),
		nullable(res.Snapshot),
		res.Attempts,
		res.Reloads,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// List retrieves the most recent records, newest first
func (d *Database) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, run_id, account_stem, status, available_at, reason, snapshot, attempts, reloads, created_at
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var availableAt, reason, snapshot sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.AccountStem,
			&rec.Status,
			&availableAt,
			&reason,
			&snapshot,
			&rec.Attempts,
			&rec.Reloads,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		rec.AvailableAt = availableAt.String
		rec.Reason = reason.String
		rec.Snapshot = snapshot.String

		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountByStatus returns the number of records with status
func (d *Database) CountByStatus(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM runs WHERE 1=1`
	args := []interface{}{}

	if status != "" && status != "all" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	var count int
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}
