// Package syncstate persists the small local bookkeeping the sync engine
// needs between invocations: the last-known-synced remote revision per
// (remote, branch), and per-record external tracker state for incremental
// tracker sync. This state is local-only and never synchronized; losing it
// costs a full rather than incremental pass, nothing more.
package syncstate

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the sqlite database holding local sync state.
type DB struct {
	conn *sql.DB
}

// TrackerState is the last-synced view of one record's external link.
type TrackerState struct {
	RecordID string
	Ref      string
	State    string
	Labels   string // comma-joined, sorted
	SyncedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS remote_refs (
	remote      TEXT NOT NULL,
	branch      TEXT NOT NULL,
	commit_hash TEXT NOT NULL,
	synced_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (remote, branch)
);

CREATE TABLE IF NOT EXISTS tracker_state (
	record_id TEXT PRIMARY KEY,
	ref       TEXT NOT NULL,
	state     TEXT NOT NULL,
	labels    TEXT NOT NULL DEFAULT '',
	synced_at TIMESTAMP NOT NULL
);
`

// Open opens (creating if needed) the state database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database.
func (d *DB) Close() error { return d.conn.Close() }

// LastSyncedCommit returns the last successfully synced commit for a
// (remote, branch), or "" when no sync has succeeded yet.
func (d *DB) LastSyncedCommit(remote, branch string) (string, error) {
	var hash string
	err := d.conn.QueryRow(
		"SELECT commit_hash FROM remote_refs WHERE remote = ? AND branch = ?",
		remote, branch).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query remote ref: %w", err)
	}
	return hash, nil
}

// SetLastSyncedCommit records a successful sync point.
func (d *DB) SetLastSyncedCommit(remote, branch, commit string) error {
	_, err := d.conn.Exec(`
		INSERT INTO remote_refs (remote, branch, commit_hash, synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (remote, branch) DO UPDATE SET
			commit_hash = excluded.commit_hash,
			synced_at   = excluded.synced_at`,
		remote, branch, commit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record synced commit: %w", err)
	}
	return nil
}

// TrackerStateFor returns the last-synced tracker view of a record, or nil
// when the record has never been tracker-synced.
func (d *DB) TrackerStateFor(recordID string) (*TrackerState, error) {
	var ts TrackerState
	err := d.conn.QueryRow(
		"SELECT record_id, ref, state, labels, synced_at FROM tracker_state WHERE record_id = ?",
		recordID).Scan(&ts.RecordID, &ts.Ref, &ts.State, &ts.Labels, &ts.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tracker state: %w", err)
	}
	return &ts, nil
}

// SetTrackerState records the tracker view after a successful sync.
func (d *DB) SetTrackerState(ts TrackerState) error {
	_, err := d.conn.Exec(`
		INSERT INTO tracker_state (record_id, ref, state, labels, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (record_id) DO UPDATE SET
			ref       = excluded.ref,
			state     = excluded.state,
			labels    = excluded.labels,
			synced_at = excluded.synced_at`,
		ts.RecordID, ts.Ref, ts.State, ts.Labels, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record tracker state: %w", err)
	}
	return nil
}

// DeleteTrackerState drops a record's tracker bookkeeping, e.g. when the
// record is unlinked.
func (d *DB) DeleteTrackerState(recordID string) error {
	_, err := d.conn.Exec("DELETE FROM tracker_state WHERE record_id = ?", recordID)
	return err
}
