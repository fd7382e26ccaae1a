package engine

import "sync"

// recordLocks serializes admissions per key, so no two concurrent admissions
// for the same (tenant, recordId) can both observe themselves as newest and
// both commit. Entries are reference counted and removed when released.
type recordLocks struct {
	mu sync.Mutex
	m  map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newRecordLocks() *recordLocks {
	return &recordLocks{m: make(map[string]*lockEntry)}
}

// lock acquires the mutex for key and returns its release function.
func (l *recordLocks) lock(key string) func() {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &lockEntry{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
