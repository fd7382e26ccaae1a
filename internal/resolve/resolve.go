// Package resolve implements per-record conflict resolution.
//
// Resolution is a pure function over an explicitly passed snapshot of the
// record's known messages, so outcomes are identical regardless of arrival
// order or which node evaluates them.
package resolve

import "strings"

// Entry is the slice of a stored message that ordering needs.
type Entry struct {
	CID         string
	DateCreated string // wire timestamp, lexicographically ordered
	Delete      bool   // entry is a RecordsDelete
}

// Outcome classifies an incoming message against existing state.
type Outcome int

const (
	// Accept admits the incoming message as the record's new newest state.
	Accept Outcome = iota
	// Conflict rejects the incoming message: equal-or-newer state exists.
	// This is an idempotent no-op for the writer, not a failure of the node.
	Conflict
	// NotFound rejects a delete of a nonexistent or already-deleted record.
	NotFound
)

// Compare orders two entries by (dateCreated, cid). The timestamp is the
// primary key; the content identifier breaks exact-timestamp ties so a single
// winner exists deterministically.
func Compare(a, b Entry) int {
	if c := strings.Compare(a.DateCreated, b.DateCreated); c != 0 {
		return c
	}
	return strings.Compare(a.CID, b.CID)
}

// Newest returns the greatest entry of the snapshot, if any.
func Newest(entries []Entry) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	newest := entries[0]
	for _, e := range entries[1:] {
		if Compare(e, newest) > 0 {
			newest = e
		}
	}
	return newest, true
}

// ResolveWrite decides whether an incoming write becomes the record's newest
// state. An empty snapshot always accepts; otherwise the incoming entry must
// strictly outrank the current newest.
func ResolveWrite(existing []Entry, incoming Entry) Outcome {
	newest, ok := Newest(existing)
	if !ok || Compare(incoming, newest) > 0 {
		return Accept
	}
	return Conflict
}

// ResolveDelete decides whether an incoming delete is admitted. Deleting a
// record with no known state, or one whose newest state is already a delete,
// is NotFound rather than a state change.
func ResolveDelete(existing []Entry, incoming Entry) Outcome {
	newest, ok := Newest(existing)
	if !ok || newest.Delete {
		return NotFound
	}
	if Compare(incoming, newest) > 0 {
		return Accept
	}
	return Conflict
}
