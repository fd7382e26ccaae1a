package store

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/starford/othala/internal/message"
)

// Key prefixes keep messages and payloads in disjoint key spaces.
const (
	prefixMessage = "msg"
	prefixData    = "dat"
)

// Badger is an embedded key-value implementation of MessageStore and
// DataStore on BadgerDB.
type Badger struct {
	db *badger.DB
}

var (
	_ MessageStore = (*Badger)(nil)
	_ DataStore    = (*Badger)(nil)
)

// OpenBadger opens (or creates) a Badger store at dir.
func OpenBadger(dir string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// OpenBadgerInMemory opens a non-persistent store, used in tests.
func OpenBadgerInMemory() (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close closes the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func key(prefix, tenant, cid string) []byte {
	return []byte(prefix + "|" + tenant + "|" + cid)
}

func (b *Badger) set(k, v []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

func (b *Badger) get(k []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotExist
	}
	return out, err
}

func (b *Badger) drop(k []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// Put stores a message envelope.
func (b *Badger) Put(tenant, cid string, env *message.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("store: encode message: %w", err)
	}
	if err := b.set(key(prefixMessage, tenant, cid), raw); err != nil {
		return fmt.Errorf("store: put message: %w", err)
	}
	return nil
}

// Get loads a message envelope.
func (b *Badger) Get(tenant, cid string) (*message.Envelope, error) {
	raw, err := b.get(key(prefixMessage, tenant, cid))
	if err != nil {
		return nil, err
	}
	var env message.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("store: decode message %s: %w", cid, err)
	}
	return &env, nil
}

// Delete removes a message envelope. Deleting an absent key is a no-op.
func (b *Badger) Delete(tenant, cid string) error {
	return b.drop(key(prefixMessage, tenant, cid))
}

// PutData stores a payload.
func (b *Badger) PutData(tenant, cid string, data []byte) error {
	if err := b.set(key(prefixData, tenant, cid), data); err != nil {
		return fmt.Errorf("store: put data: %w", err)
	}
	return nil
}

// GetData loads a payload.
func (b *Badger) GetData(tenant, cid string) ([]byte, error) {
	return b.get(key(prefixData, tenant, cid))
}

// DeleteData removes a payload. Deleting an absent key is a no-op.
func (b *Badger) DeleteData(tenant, cid string) error {
	return b.drop(key(prefixData, tenant, cid))
}
