package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/othala/internal/message"
)

// Row is the flat projection of one accepted message. Every field is a
// comparable scalar; nothing nested survives projection.
type Row struct {
	Tenant      string
	CID         string
	RecordID    string
	Interface   string
	Method      string
	DateCreated string
	Author      string
	Schema      string
	Protocol    string
	DataFormat  string
	DataCID     string
	Published   bool
	Current     bool // set only on a write admitted as newest
}

// Filter narrows Query; zero fields are unconstrained.
type Filter struct {
	RecordID   string
	Schema     string
	Protocol   string
	DataFormat string
}

// ProjectWrite builds the index row for an accepted RecordsWrite. current is
// true only when the write is admitted as the record's newest state.
func ProjectWrite(tenant, cid, author string, d message.RecordsWriteDescriptor, current bool) Row {
	return Row{
		Tenant:      tenant,
		CID:         cid,
		RecordID:    d.RecordID,
		Interface:   string(d.Interface),
		Method:      string(d.Method),
		DateCreated: d.DateCreated,
		Author:      author,
		Schema:      d.Schema,
		Protocol:    d.Protocol,
		DataFormat:  d.DataFormat,
		DataCID:     d.DataCID,
		Published:   d.Published,
		Current:     current,
	}
}

// ProjectDelete builds the index row for an accepted RecordsDelete. The row
// deliberately never carries the current flag; its presence alone hides every
// row of the record from default queries.
func ProjectDelete(tenant, cid, author string, d message.RecordsDeleteDescriptor) Row {
	return Row{
		Tenant:      tenant,
		CID:         cid,
		RecordID:    d.RecordID,
		Interface:   string(d.Interface),
		Method:      string(d.Method),
		DateCreated: d.DateCreated,
		Author:      author,
	}
}

// ProjectConfigure builds the index row for an accepted ProtocolsConfigure.
func ProjectConfigure(tenant, cid, author string, d message.ProtocolsConfigureDescriptor, current bool) Row {
	return Row{
		Tenant:      tenant,
		CID:         cid,
		Interface:   string(d.Interface),
		Method:      string(d.Method),
		DateCreated: d.DateCreated,
		Author:      author,
		Protocol:    d.Protocol,
		Current:     current,
	}
}

// Put inserts or replaces a row.
func (db *DB) Put(r Row) error {
	var current any
	if r.Current {
		current = 1
	}
	_, err := db.conn.Exec(`
		INSERT INTO message_index
			(tenant, cid, record_id, interface, method, date_created, author,
			 schema, protocol, data_format, data_cid, published, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant, cid) DO UPDATE SET
			record_id    = excluded.record_id,
			interface    = excluded.interface,
			method       = excluded.method,
			date_created = excluded.date_created,
			author       = excluded.author,
			schema       = excluded.schema,
			protocol     = excluded.protocol,
			data_format  = excluded.data_format,
			data_cid     = excluded.data_cid,
			published    = excluded.published,
			is_current   = excluded.is_current
	`, r.Tenant, r.CID, r.RecordID, r.Interface, r.Method, r.DateCreated, r.Author,
		r.Schema, r.Protocol, r.DataFormat, r.DataCID, boolInt(r.Published), current)
	if err != nil {
		return fmt.Errorf("index: put row: %w", err)
	}
	return nil
}

// Demote clears the current flag of an anchor row once its write has been
// superseded. The row itself stays queryable by explicit lookups.
func (db *DB) Demote(tenant, cid string) error {
	_, err := db.conn.Exec(
		`UPDATE message_index SET is_current = NULL WHERE tenant = ? AND cid = ?`, tenant, cid)
	if err != nil {
		return fmt.Errorf("index: demote %s: %w", cid, err)
	}
	return nil
}

// DeleteByCID removes the row of a pruned message.
func (db *DB) DeleteByCID(tenant, cid string) error {
	_, err := db.conn.Exec(
		`DELETE FROM message_index WHERE tenant = ? AND cid = ?`, tenant, cid)
	if err != nil {
		return fmt.Errorf("index: delete %s: %w", cid, err)
	}
	return nil
}

// Entries returns every row of a logical record, deletes included, ordered
// by (date_created, cid). This is the snapshot conflict resolution runs over.
func (db *DB) Entries(tenant, recordID string) ([]Row, error) {
	rows, err := db.conn.Query(`
		SELECT `+rowColumns+`
		FROM message_index
		WHERE tenant = ? AND record_id = ? AND interface = ?
		ORDER BY date_created, cid
	`, tenant, recordID, string(message.InterfaceRecords))
	if err != nil {
		return nil, fmt.Errorf("index: entries: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Query returns the current record rows matching the filter, ordered by
// (date_created, cid). Only rows carrying the current flag are visible;
// protocol configurations are reached through NewestProtocol instead.
func (db *DB) Query(tenant string, f Filter) ([]Row, error) {
	q := `SELECT ` + rowColumns + ` FROM message_index WHERE tenant = ? AND is_current = 1 AND interface = ?`
	args := []any{tenant, string(message.InterfaceRecords)}
	if f.RecordID != "" {
		q += ` AND record_id = ?`
		args = append(args, f.RecordID)
	}
	if f.Schema != "" {
		q += ` AND schema = ?`
		args = append(args, f.Schema)
	}
	if f.Protocol != "" {
		q += ` AND protocol = ?`
		args = append(args, f.Protocol)
	}
	if f.DataFormat != "" {
		q += ` AND data_format = ?`
		args = append(args, f.DataFormat)
	}
	q += ` ORDER BY date_created, cid`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// NewestProtocol returns the newest ProtocolsConfigure row for a protocol
// URI, or nil when the protocol has never been configured.
func (db *DB) NewestProtocol(tenant, protocol string) (*Row, error) {
	rows, err := db.conn.Query(`
		SELECT `+rowColumns+`
		FROM message_index
		WHERE tenant = ? AND protocol = ? AND interface = ? AND method = ?
		ORDER BY date_created DESC, cid DESC
		LIMIT 1
	`, tenant, protocol, string(message.InterfaceProtocols), string(message.MethodConfigure))
	if err != nil {
		return nil, fmt.Errorf("index: newest protocol: %w", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

const rowColumns = `tenant, cid, record_id, interface, method, date_created, author,
	schema, protocol, data_format, data_cid, published, is_current`

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		var published int
		var current sql.NullInt64
		if err := rows.Scan(&r.Tenant, &r.CID, &r.RecordID, &r.Interface, &r.Method,
			&r.DateCreated, &r.Author, &r.Schema, &r.Protocol, &r.DataFormat,
			&r.DataCID, &published, &current); err != nil {
			return nil, err
		}
		r.Published = published != 0
		r.Current = current.Valid && current.Int64 == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
