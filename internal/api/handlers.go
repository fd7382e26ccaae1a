package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/engine"
	"github.com/starford/othala/internal/eventlog"
	"github.com/starford/othala/internal/index"
)

// maxMessageBytes bounds a processing request body (message plus payload).
const maxMessageBytes = 16 << 20

// Handler holds API route handlers over the engine.
type Handler struct {
	eng *engine.Engine
}

// NewHandler creates a new Handler.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{eng: eng}
}

// ProcessMessage handles POST /messages: runs one signed message through the
// admission pipeline and returns the classified reply. The HTTP status code
// equals the reply code.
func (h *Handler) ProcessMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Target == "" || len(req.Message) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("target and message are required"))
		return
	}

	reply := h.eng.Process(r.Context(), req.Target, req.Message, req.Data)
	if reply.Status.Code == http.StatusInternalServerError {
		slog.Error("process message failed",
			slog.String("target", req.Target),
			slog.String("detail", reply.Status.Detail))
	}
	writeJSON(w, reply.Status.Code, reply)
}

// Events handles GET /events?target=...&since=N: a replayable event-log page
// for sync clients resuming from a watermark.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	events, err := h.eng.Events(target, since)
	if err != nil {
		if errors.Is(err, apperr.ErrTenantNotServed) {
			writeJSON(w, http.StatusUnauthorized, errorBody("tenant not served"))
			return
		}
		slog.Error("events query failed", slog.String("target", target), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if events == nil {
		events = []eventlog.Entry{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Target: target, Events: events})
}

// Records handles GET /records?target=...: the operator read surface over
// current records, with optional filter parameters.
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}

	rows, err := h.eng.CurrentRecords(target, index.Filter{
		RecordID:   q.Get("recordId"),
		Schema:     q.Get("schema"),
		Protocol:   q.Get("protocol"),
		DataFormat: q.Get("dataFormat"),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrTenantNotServed) {
			writeJSON(w, http.StatusUnauthorized, errorBody("tenant not served"))
			return
		}
		slog.Error("records query failed", slog.String("target", target), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	items := make([]RecordItem, len(rows))
	for i, row := range rows {
		items[i] = recordItem(row)
	}
	writeJSON(w, http.StatusOK, RecordsResponse{Records: items})
}
