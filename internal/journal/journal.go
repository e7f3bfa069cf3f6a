// Package journal keeps a local history of sync runs in a SQLite file so
// operators can inspect what a daemon has been doing. Journal writes are
// best-effort: a failure is logged by the caller, never fatal.
package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/himalco/dairyerp/attsync/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	state       TEXT NOT NULL,
	attempted   INTEGER NOT NULL,
	created     INTEGER NOT NULL,
	updated     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	errors      TEXT NOT NULL DEFAULT ''
);`

// Entry is one journaled run.
type Entry struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	State      string
	Attempted  int
	Created    int
	Updated    int
	Failed     int
	Errors     []string
}

// Journal is a handle on the run-history database.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record persists one run outcome.
func (j *Journal) Record(outcome *types.SyncOutcome) error {
	_, err := j.db.Exec(
		`INSERT INTO sync_runs (id, started_at, finished_at, state, attempted, created, updated, failed, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		outcome.StartedAt.Format(time.RFC3339),
		outcome.FinishedAt.Format(time.RFC3339),
		string(outcome.State),
		outcome.Attempted,
		outcome.Created,
		outcome.Updated,
		outcome.Failed,
		strings.Join(outcome.Errors, "; "),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", outcome.RunID, err)
	}
	return nil
}

// LastRuns returns up to n of the most recent runs, newest first.
func (j *Journal) LastRuns(n int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT id, started_at, finished_at, state, attempted, created, updated, failed, errors
		 FROM sync_runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, finished, errs string
		if err := rows.Scan(&e.RunID, &started, &finished, &e.State, &e.Attempted, &e.Created, &e.Updated, &e.Failed, &errs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339, started)
		e.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		if errs != "" {
			e.Errors = strings.Split(errs, "; ")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
