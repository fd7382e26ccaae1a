// Package eventlog implements the append-only per-tenant ledger of admitted
// message identifiers. Sequence numbers are monotonic per tenant, never
// reused, and entries are never deleted or reordered; the log is the
// watermark source for synchronization.
package eventlog

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
	tenant TEXT NOT NULL,
	seq    INTEGER NOT NULL,
	cid    TEXT NOT NULL,
	PRIMARY KEY (tenant, seq)
);
`

// Entry is one admitted message in admission order.
type Entry struct {
	Seq int64  `json:"seq"`
	CID string `json:"cid"`
}

// Log is the interface consumed by the engine.
type Log interface {
	Append(tenant, cid string) (int64, error)
	QueryFrom(tenant string, watermark int64) ([]Entry, error)
	Close() error
}

// DB is the SQLite-backed Log.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex // serializes appends so sequences stay gapless per tenant
}

var _ Log = (*DB)(nil)

// Open opens (or creates) the event log database.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("eventlog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventlog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventlog: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Append records cid as the next event of tenant and returns its sequence
// number. Concurrent appends serialize.
func (db *DB) Append(tenant, cid string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("eventlog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var seq int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE tenant = ?`, tenant).Scan(&seq); err != nil {
		return 0, fmt.Errorf("eventlog: next seq: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO events (tenant, seq, cid) VALUES (?, ?, ?)`, tenant, seq, cid); err != nil {
		return 0, fmt.Errorf("eventlog: append: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("eventlog: commit: %w", err)
	}
	return seq, nil
}

// QueryFrom returns every entry of tenant with seq greater than watermark,
// in admission order. The cursor is restartable: the same watermark over the
// same state yields the same result.
func (db *DB) QueryFrom(tenant string, watermark int64) ([]Entry, error) {
	rows, err := db.conn.Query(
		`SELECT seq, cid FROM events WHERE tenant = ? AND seq > ? ORDER BY seq`, tenant, watermark)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.CID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
