package api

import (
	"encoding/json"

	"github.com/starford/othala/internal/engine"
	"github.com/starford/othala/internal/eventlog"
	"github.com/starford/othala/internal/index"
)

// ProcessRequest is the body of POST /messages: the target tenant, the raw
// signed message, and an optional payload (base64 in JSON).
type ProcessRequest struct {
	Target  string          `json:"target"`
	Message json.RawMessage `json:"message"`
	Data    []byte          `json:"data,omitempty"`
}

// ProcessResponse is the engine's reply (aliased from the engine layer).
type ProcessResponse = engine.Reply

// EventsResponse wraps an event-log page.
type EventsResponse struct {
	Target string           `json:"target"`
	Events []eventlog.Entry `json:"events"`
}

// RecordItem is one current record on the operator read surface.
type RecordItem struct {
	RecordID    string `json:"recordId"`
	CID         string `json:"cid"`
	Author      string `json:"author"`
	DateCreated string `json:"dateCreated"`
	Schema      string `json:"schema,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	DataFormat  string `json:"dataFormat,omitempty"`
	Published   bool   `json:"published,omitempty"`
}

// RecordsResponse wraps the operator record listing.
type RecordsResponse struct {
	Records []RecordItem `json:"records"`
}

func recordItem(r index.Row) RecordItem {
	return RecordItem{
		RecordID:    r.RecordID,
		CID:         r.CID,
		Author:      r.Author,
		DateCreated: r.DateCreated,
		Schema:      r.Schema,
		Protocol:    r.Protocol,
		DataFormat:  r.DataFormat,
		Published:   r.Published,
	}
}
