// Package index provides the SQLite-backed queryable projection of accepted
// messages.
//
// The is_current flag is the load-bearing column: it is set only on the row
// of a write admitted as a record's newest state, never on delete rows, and
// cleared when an anchor write is superseded. Default queries filter on it,
// so the absence of any flagged row for a record id is the deletion signal —
// no query path needs a tombstone special case.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS message_index (
	tenant       TEXT NOT NULL,
	cid          TEXT NOT NULL,
	record_id    TEXT NOT NULL DEFAULT '',
	interface    TEXT NOT NULL,
	method       TEXT NOT NULL,
	date_created TEXT NOT NULL,
	author       TEXT NOT NULL,
	schema       TEXT NOT NULL DEFAULT '',
	protocol     TEXT NOT NULL DEFAULT '',
	data_format  TEXT NOT NULL DEFAULT '',
	data_cid     TEXT NOT NULL DEFAULT '',
	published    INTEGER NOT NULL DEFAULT 0,
	is_current   INTEGER,
	PRIMARY KEY (tenant, cid)
);

CREATE INDEX IF NOT EXISTS idx_record ON message_index(tenant, record_id);
CREATE INDEX IF NOT EXISTS idx_current ON message_index(tenant, is_current);
CREATE INDEX IF NOT EXISTS idx_protocol ON message_index(tenant, protocol);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
