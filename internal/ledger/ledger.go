// Package ledger records which lanes have already been folded into the
// integration branch so an interrupted merge can resume without reapplying them.
package ledger

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Marker is the record of one successfully merged lane.
type Marker struct {
	RunID    string    `json:"runId"`
	LaneID   string    `json:"laneId"`
	Method   string    `json:"method"`
	Commit   string    `json:"commit"`
	MergedAt time.Time `json:"mergedAt"`
}

// Pending is a lane whose merge halted on a conflict. Base is the integration
// branch HEAD before the attempt.
type Pending struct {
	RunID     string    `json:"runId"`
	LaneID    string    `json:"laneId"`
	Method    string    `json:"method"`
	Base      string    `json:"base"`
	StartedAt time.Time `json:"startedAt"`
}

// Ledger wraps the SQLite database holding merge markers.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the ledger at path and applies migrations.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Migrate runs all pending migrations.
func (l *Ledger) Migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrations = append(migrations, entry.Name())
		}
	}
	sort.Strings(migrations)

	_, err = l.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, migration := range migrations {
		var count int
		if err := l.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", migration).Scan(&count); err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", migration, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + migration)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", migration, err)
		}

		tx, err := l.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", migration, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", migration, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", migration, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration, err)
		}
	}
	return nil
}

// Mark records that laneID of runID was merged. Marking again replaces the
// previous marker.
func (l *Ledger) Mark(m Marker) error {
	if m.MergedAt.IsZero() {
		m.MergedAt = time.Now()
	}
	_, err := l.db.Exec(`
		INSERT INTO merge_markers (run_id, lane_id, method, commit_sha, merged_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, lane_id) DO UPDATE SET
			method = excluded.method,
			commit_sha = excluded.commit_sha,
			merged_at = excluded.merged_at
	`, m.RunID, m.LaneID, m.Method, m.Commit, m.MergedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to mark lane %s merged: %w", m.LaneID, err)
	}
	return nil
}

// IsMerged reports whether a marker exists for the lane.
func (l *Ledger) IsMerged(runID, laneID string) (bool, error) {
	var one int
	err := l.db.QueryRow("SELECT 1 FROM merge_markers WHERE run_id = ? AND lane_id = ?", runID, laneID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query marker for lane %s: %w", laneID, err)
	}
	return true, nil
}

// List returns the markers of a run ordered by merge time.
func (l *Ledger) List(runID string) ([]Marker, error) {
	rows, err := l.db.Query(`
		SELECT run_id, lane_id, method, commit_sha, merged_at
		FROM merge_markers WHERE run_id = ?
		ORDER BY merged_at, lane_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list markers: %w", err)
	}
	defer rows.Close()

	var markers []Marker
	for rows.Next() {
		var m Marker
		var mergedAt string
		if err := rows.Scan(&m.RunID, &m.LaneID, &m.Method, &m.Commit, &mergedAt); err != nil {
			return nil, fmt.Errorf("failed to scan marker: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, mergedAt); err == nil {
			m.MergedAt = t
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// MarkPending records a lane left halted on a conflict, replacing any earlier
// record for the lane.
func (l *Ledger) MarkPending(p Pending) error {
	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	_, err := l.db.Exec(`
		INSERT INTO pending_merges (run_id, lane_id, method, base_commit, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, lane_id) DO UPDATE SET
			method = excluded.method,
			base_commit = excluded.base_commit,
			started_at = excluded.started_at
	`, p.RunID, p.LaneID, p.Method, p.Base, p.StartedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record pending lane %s: %w", p.LaneID, err)
	}
	return nil
}

// Pending returns the halted lanes of a run.
func (l *Ledger) Pending(runID string) ([]Pending, error) {
	rows, err := l.db.Query(`
		SELECT run_id, lane_id, method, base_commit, started_at
		FROM pending_merges WHERE run_id = ?
		ORDER BY started_at, lane_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending lanes: %w", err)
	}
	defer rows.Close()

	var pending []Pending
	for rows.Next() {
		var p Pending
		var startedAt string
		if err := rows.Scan(&p.RunID, &p.LaneID, &p.Method, &p.Base, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending lane: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			p.StartedAt = t
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// ClearPending drops the pending record of a lane.
func (l *Ledger) ClearPending(runID, laneID string) error {
	if _, err := l.db.Exec("DELETE FROM pending_merges WHERE run_id = ? AND lane_id = ?", runID, laneID); err != nil {
		return fmt.Errorf("failed to clear pending lane %s: %w", laneID, err)
	}
	return nil
}

// Promote turns the pending record of a lane into a merge marker in one
// transaction.
func (l *Ledger) Promote(m Marker) error {
	if m.MergedAt.IsZero() {
		m.MergedAt = time.Now()
	}
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin promote of lane %s: %w", m.LaneID, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO merge_markers (run_id, lane_id, method, commit_sha, merged_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, lane_id) DO UPDATE SET
			method = excluded.method,
			commit_sha = excluded.commit_sha,
			merged_at = excluded.merged_at
	`, m.RunID, m.LaneID, m.Method, m.Commit, m.MergedAt.UTC().Format(time.RFC3339)); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to mark lane %s merged: %w", m.LaneID, err)
	}
	if _, err := tx.Exec("DELETE FROM pending_merges WHERE run_id = ? AND lane_id = ?", m.RunID, m.LaneID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear pending lane %s: %w", m.LaneID, err)
	}
	return tx.Commit()
}

// Reset removes every marker and pending record of a run and returns how many
// markers were removed.
func (l *Ledger) Reset(runID string) (int64, error) {
	if _, err := l.db.Exec("DELETE FROM pending_merges WHERE run_id = ?", runID); err != nil {
		return 0, fmt.Errorf("failed to reset pending lanes: %w", err)
	}
	res, err := l.db.Exec("DELETE FROM merge_markers WHERE run_id = ?", runID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset markers: %w", err)
	}
	return res.RowsAffected()
}
