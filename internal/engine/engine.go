// Package engine dispatches incoming signed messages to their handlers and
// runs the admission pipeline: pre-flight checks, authorization, conflict
// resolution, index projection, event-log append and pruning — in that order,
// terminal on first rejection.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/auth"
	"github.com/starford/othala/internal/eventlog"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/message"
	"github.com/starford/othala/internal/store"
)

// HandlerKey identifies a handler by its typed (interface, method) pair.
type HandlerKey struct {
	Interface message.Interface
	Method    message.Method
}

// Handler processes one parsed-enough message: it owns parsing its
// descriptor, authorization, conflict resolution and side effects.
type Handler interface {
	Handle(ctx context.Context, tenant string, env *message.Envelope, data []byte) Reply
}

// Status is the outcome of processing one message.
type Status struct {
	Code   int    `json:"code"`
	Detail string `json:"detail"`
}

// Entry is one query result: the flat current view of a record plus its
// payload when one is stored.
type Entry struct {
	RecordID    string `json:"recordId"`
	CID         string `json:"cid"`
	Author      string `json:"author"`
	DateCreated string `json:"dateCreated"`
	Schema      string `json:"schema,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	DataFormat  string `json:"dataFormat,omitempty"`
	Published   bool   `json:"published,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// Reply is the classified result returned for every processed message; the
// engine never drops a message silently.
type Reply struct {
	Status  Status  `json:"status"`
	Entries []Entry `json:"entries,omitempty"`
}

// NotifyFunc is called after each admission, once the event log holds the
// new entry.
type NotifyFunc func(tenant, cid string, seq int64)

// Deps are the collaborators the engine runs over.
type Deps struct {
	Tenants  []string // DIDs served by this node instance
	Messages store.MessageStore
	Data     store.DataStore
	Index    index.MessageIndex
	Events   eventlog.Log
	Gate     *auth.Gate
	Notify   NotifyFunc
	Logger   *slog.Logger
}

// Engine is the message router plus its admission handlers.
type Engine struct {
	tenants  map[string]struct{}
	msgs     store.MessageStore
	data     store.DataStore
	idx      index.MessageIndex
	events   eventlog.Log
	gate     *auth.Gate
	notify   NotifyFunc
	logger   *slog.Logger
	locks    *recordLocks
	handlers map[HandlerKey]Handler
}

// New builds an engine with its closed handler registry. The registry is
// immutable after startup; an unhandled pair is rejected at dispatch.
func New(d Deps) *Engine {
	tenants := make(map[string]struct{}, len(d.Tenants))
	for _, t := range d.Tenants {
		tenants[t] = struct{}{}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		tenants: tenants,
		msgs:    d.Messages,
		data:    d.Data,
		idx:     d.Index,
		events:  d.Events,
		gate:    d.Gate,
		notify:  d.Notify,
		logger:  logger,
		locks:   newRecordLocks(),
	}
	e.handlers = map[HandlerKey]Handler{
		{message.InterfaceRecords, message.MethodWrite}:       recordsWriteHandler{e},
		{message.InterfaceRecords, message.MethodQuery}:       recordsQueryHandler{e},
		{message.InterfaceRecords, message.MethodDelete}:      recordsDeleteHandler{e},
		{message.InterfaceProtocols, message.MethodConfigure}: protocolsConfigureHandler{e},
	}
	return e
}

// Process runs one message through the pipeline: tenancy check, shape check,
// dispatch. No step is skipped or reordered.
func (e *Engine) Process(ctx context.Context, target string, raw json.RawMessage, data []byte) Reply {
	if _, ok := e.tenants[target]; !ok {
		return reject(fmt.Errorf("%w: %s", apperr.ErrTenantNotServed, target))
	}

	env, err := message.Decode(raw)
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}
	h, err := env.ParseHeader()
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}
	if h.Interface == "" || h.Method == "" {
		return reject(fmt.Errorf("%w: interface and method are required", apperr.ErrMalformed))
	}

	handler, ok := e.handlers[HandlerKey{h.Interface, h.Method}]
	if !ok {
		return reject(fmt.Errorf("%w: unhandled %s/%s", apperr.ErrMalformed, h.Interface, h.Method))
	}

	reply := handler.Handle(ctx, target, env, data)
	e.logger.Debug("processed message",
		slog.String("tenant", target),
		slog.String("interface", string(h.Interface)),
		slog.String("method", string(h.Method)),
		slog.Int("code", reply.Status.Code))
	return reply
}

// Events pages the tenant's event log from a watermark, for sync callers.
func (e *Engine) Events(tenant string, watermark int64) ([]eventlog.Entry, error) {
	if _, ok := e.tenants[tenant]; !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrTenantNotServed, tenant)
	}
	return e.events.QueryFrom(tenant, watermark)
}

// CurrentRecords is the node-local read surface (CLI, MCP): current rows
// matching a filter, without message-level authorization. Callers are
// trusted local processes.
func (e *Engine) CurrentRecords(tenant string, f index.Filter) ([]index.Row, error) {
	if _, ok := e.tenants[tenant]; !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrTenantNotServed, tenant)
	}
	return e.idx.Query(tenant, f)
}

// RecordData loads the payload associated with a stored message.
func (e *Engine) RecordData(tenant, cid string) ([]byte, error) {
	if _, ok := e.tenants[tenant]; !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrTenantNotServed, tenant)
	}
	return e.data.GetData(tenant, cid)
}

// reject builds a terminal reply from a classified error. Unclassified
// errors surface as 500 with the raw detail, storage failures included.
func reject(err error) Reply {
	return Reply{Status: Status{Code: apperr.Status(err), Detail: err.Error()}}
}

func accepted(detail string) Reply {
	return Reply{Status: Status{Code: http.StatusAccepted, Detail: detail}}
}
