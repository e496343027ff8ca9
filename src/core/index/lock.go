package index

import "sync"

// keyedLocks provides one mutex per document id so indexing runs for the
// same document serialize while runs for different documents stay
// independent. Entries are reference counted and dropped when idle.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[int64]*lockEntry)}
}

// Lock acquires the mutex for key and returns the matching release func.
func (kl *keyedLocks) Lock(key int64) func() {
	kl.mu.Lock()
	entry, ok := kl.entries[key]
	if !ok {
		entry = &lockEntry{}
		kl.entries[key] = entry
	}
	entry.refs++
	kl.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		kl.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(kl.entries, key)
		}
		kl.mu.Unlock()
	}
}
