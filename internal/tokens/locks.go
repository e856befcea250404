package tokens

import "sync"

// userLocks hands out one mutex per user id; entries are dropped when unused.
type userLocks struct {
	mu      sync.Mutex
	entries map[uint64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until the caller holds the lock for id and returns its release func.
func (l *userLocks) Lock(id uint64) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[uint64]*userLock)
	}
	entry, ok := l.entries[id]
	if !ok {
		entry = &userLock{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
