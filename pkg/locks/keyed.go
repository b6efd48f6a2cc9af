// Package locks provides an in-process keyed mutex. It serializes pipeline
// runs for the same document checksum within one instance; cross-instance
// coordination uses the Redis locker.
package locks

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed is a set of named mutexes. Unused keys hold no memory.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyed creates an empty keyed mutex set
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until the mutex for key is held
func (k *Keyed) Lock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. The entry is dropped once no goroutine
// is waiting on it.
func (k *Keyed) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		k.mu.Unlock()
		panic("locks: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// WithLock runs fn while holding the mutex for key
func (k *Keyed) WithLock(key string, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}
