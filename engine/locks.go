package engine

import "sync"

// instanceLocks serializes engine operations per instance id. Concurrent
// calls for different instances proceed independently; calls for the same
// instance queue behind one mutex. Entries are removed once the last waiter
// releases, so the map does not grow with the number of instances ever seen.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[string]*lockEntry)}
}

// lock acquires the lock for instanceID and returns the release function
func (l *instanceLocks) lock(instanceID string) func() {
	l.mu.Lock()
	entry := l.locks[instanceID]
	if entry == nil {
		entry = &lockEntry{}
		l.locks[instanceID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, instanceID)
		}
		l.mu.Unlock()
	}
}
