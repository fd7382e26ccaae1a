package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/message"
	"github.com/starford/othala/internal/resolve"
	"github.com/starford/othala/internal/store"
)

type recordsWriteHandler struct{ e *Engine }

func (h recordsWriteHandler) Handle(ctx context.Context, tenant string, env *message.Envelope, data []byte) Reply {
	e := h.e

	d, err := message.ParseRecordsWrite(env)
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}
	mcid, err := env.CID()
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}
	if len(data) > 0 && d.DataCID != message.DataCID(data) {
		return reject(fmt.Errorf("%w: dataCid does not match payload", apperr.ErrMalformed))
	}

	if err := e.gate.Authorize(tenant, env, d.Protocol, d.Schema, message.ActionWrite); err != nil {
		return reject(err)
	}

	unlock := e.locks.lock(tenant + "|" + d.RecordID)
	defer unlock()

	entries, err := e.idx.Entries(tenant, d.RecordID)
	if err != nil {
		return reject(err)
	}
	incoming := resolve.Entry{CID: mcid, DateCreated: d.DateCreated}
	if outcome := resolve.ResolveWrite(snapshot(entries), incoming); outcome == resolve.Conflict {
		return reject(fmt.Errorf("%w: newer or equal state exists for record %s", apperr.ErrConflict, d.RecordID))
	}

	// Persist before pruning so a crash mid-admission never loses the
	// newest message.
	if err := e.msgs.Put(tenant, mcid, env); err != nil {
		return reject(err)
	}
	if len(data) > 0 {
		if err := e.data.PutData(tenant, mcid, data); err != nil {
			return reject(err)
		}
	}
	if err := e.idx.Put(index.ProjectWrite(tenant, mcid, env.Authorization.Signer, d, true)); err != nil {
		return reject(err)
	}
	seq, err := e.events.Append(tenant, mcid)
	if err != nil {
		return reject(err)
	}

	e.prune(tenant, entries)

	if e.notify != nil {
		e.notify(tenant, mcid, seq)
	}
	e.logger.Info("write admitted",
		slog.String("tenant", tenant),
		slog.String("record", d.RecordID),
		slog.String("cid", mcid))
	return accepted("write admitted")
}

type recordsDeleteHandler struct{ e *Engine }

func (h recordsDeleteHandler) Handle(ctx context.Context, tenant string, env *message.Envelope, _ []byte) Reply {
	e := h.e

	d, err := message.ParseRecordsDelete(env)
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}
	mcid, err := env.CID()
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}

	// A delete's protocol/schema context comes from the record's current
	// state; the gate consults the newest write row.
	protocol, schema := "", ""
	entriesPeek, err := e.idx.Entries(tenant, d.RecordID)
	if err != nil {
		return reject(err)
	}
	for _, r := range entriesPeek {
		if r.Method == string(message.MethodWrite) {
			protocol, schema = r.Protocol, r.Schema
		}
	}
	if err := e.gate.Authorize(tenant, env, protocol, schema, message.ActionDelete); err != nil {
		return reject(err)
	}

	unlock := e.locks.lock(tenant + "|" + d.RecordID)
	defer unlock()

	entries, err := e.idx.Entries(tenant, d.RecordID)
	if err != nil {
		return reject(err)
	}
	incoming := resolve.Entry{CID: mcid, DateCreated: d.DateCreated, Delete: true}
	switch resolve.ResolveDelete(snapshot(entries), incoming) {
	case resolve.NotFound:
		return reject(fmt.Errorf("%w: record %s does not exist or is already deleted", apperr.ErrNotFound, d.RecordID))
	case resolve.Conflict:
		return reject(fmt.Errorf("%w: newer state exists for record %s", apperr.ErrConflict, d.RecordID))
	}

	if err := e.msgs.Put(tenant, mcid, env); err != nil {
		return reject(err)
	}
	if err := e.idx.Put(index.ProjectDelete(tenant, mcid, env.Authorization.Signer, d)); err != nil {
		return reject(err)
	}
	seq, err := e.events.Append(tenant, mcid)
	if err != nil {
		return reject(err)
	}

	e.prune(tenant, entries)

	if e.notify != nil {
		e.notify(tenant, mcid, seq)
	}
	e.logger.Info("delete admitted",
		slog.String("tenant", tenant),
		slog.String("record", d.RecordID),
		slog.String("cid", mcid))
	return accepted("delete admitted")
}

type recordsQueryHandler struct{ e *Engine }

func (h recordsQueryHandler) Handle(ctx context.Context, tenant string, env *message.Envelope, _ []byte) Reply {
	e := h.e

	d, err := message.ParseRecordsQuery(env)
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}
	if err := e.gate.Authenticate(env); err != nil {
		return reject(err)
	}

	rows, err := e.idx.Query(tenant, index.Filter{
		RecordID:   d.Filter.RecordID,
		Schema:     d.Filter.Schema,
		Protocol:   d.Filter.Protocol,
		DataFormat: d.Filter.DataFormat,
	})
	if err != nil {
		return reject(err)
	}

	signer := env.Authorization.Signer
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		if !e.gate.CanRead(tenant, signer, r) {
			continue
		}
		entry := Entry{
			RecordID:    r.RecordID,
			CID:         r.CID,
			Author:      r.Author,
			DateCreated: r.DateCreated,
			Schema:      r.Schema,
			Protocol:    r.Protocol,
			DataFormat:  r.DataFormat,
			Published:   r.Published,
		}
		if r.DataCID != "" {
			if data, err := e.data.GetData(tenant, r.CID); err == nil {
				entry.Data = data
			} else if !errors.Is(err, store.ErrNotExist) {
				return reject(err)
			}
		}
		entries = append(entries, entry)
	}
	return Reply{Status: Status{Code: http.StatusOK, Detail: "ok"}, Entries: entries}
}

// snapshot converts index rows into the resolver's entry form.
func snapshot(rows []index.Row) []resolve.Entry {
	out := make([]resolve.Entry, len(rows))
	for i, r := range rows {
		out[i] = resolve.Entry{
			CID:         r.CID,
			DateCreated: r.DateCreated,
			Delete:      r.Method == string(message.MethodDelete),
		}
	}
	return out
}

// prune removes every pre-existing message of the record that is neither the
// just-admitted newest nor the record's first write. The first write stays as
// a tombstoned anchor: its payload is discarded and its row demoted, but the
// message itself is retained so later record-id collisions are detectable.
// Prune failures are logged, not fatal: the admission is already durable and
// the next accepted message for the record repeats the pass.
func (e *Engine) prune(tenant string, previous []index.Row) {
	if len(previous) == 0 {
		return
	}
	anchor := ""
	for _, r := range previous {
		if r.Method == string(message.MethodWrite) {
			anchor = r.CID // rows are ordered oldest first
			break
		}
	}
	for _, r := range previous {
		var err error
		if r.CID == anchor {
			if err = e.data.DeleteData(tenant, r.CID); err == nil {
				err = e.idx.Demote(tenant, r.CID)
			}
		} else {
			if err = e.data.DeleteData(tenant, r.CID); err == nil {
				if err = e.msgs.Delete(tenant, r.CID); err == nil {
					err = e.idx.DeleteByCID(tenant, r.CID)
				}
			}
		}
		if err != nil {
			e.logger.Warn("prune failed",
				slog.String("tenant", tenant),
				slog.String("cid", r.CID),
				slog.String("error", err.Error()))
		}
	}
}
