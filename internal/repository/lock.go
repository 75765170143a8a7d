package repository

import "sync"

// keyedMutex serializes writers per entity id. The repository and the sync
// engine may run on different goroutines; a lost update on the same cache
// row corrupts financial-adjacent data, so access to one id's row and its
// causal chain in the log is single-writer-at-a-time.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// lock acquires the mutex for key and returns the release function.
// Entries are reference-counted and removed when the last holder releases,
// so the map does not grow with the id space.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
