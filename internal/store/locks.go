package store

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedLock serializes read-modify-write sequences per project. Plan
// mutation and generation start both snapshot the plan before writing, so
// concurrent calls against the same project must not interleave.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[uuid.UUID]*entry)}
}

// Lock acquires the lock for id and returns the matching unlock function.
func (k *KeyedLock) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &entry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
