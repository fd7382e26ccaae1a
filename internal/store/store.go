// Package store defines the backend-agnostic persistence contracts for
// messages and their associated payloads, plus the embedded implementations.
//
// All operations are scoped to a tenant; no interface exposes a way to reach
// another tenant's keys.
package store

import (
	"errors"

	"github.com/starford/othala/internal/message"
)

// ErrNotExist is returned when a tenant-scoped key has no stored value.
var ErrNotExist = errors.New("store: key not found")

// MessageStore persists message envelopes keyed by (tenant, cid).
type MessageStore interface {
	Put(tenant, cid string, env *message.Envelope) error
	Get(tenant, cid string) (*message.Envelope, error)
	Delete(tenant, cid string) error
}

// DataStore persists payloads associated with messages, keyed by (tenant, cid).
type DataStore interface {
	PutData(tenant, cid string, data []byte) error
	GetData(tenant, cid string) ([]byte, error)
	DeleteData(tenant, cid string) error
}
