package service

import "sync"

// KeyedLocks hands out one mutex per key. Entries are reference counted so
// idle keys do not accumulate mutexes.
type KeyedLocks[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// TableLocks serializes commands per table number
type TableLocks = KeyedLocks[int]

// NewKeyedLocks creates an empty lock table
func NewKeyedLocks[K comparable]() *KeyedLocks[K] {
	return &KeyedLocks[K]{locks: make(map[K]*keyedLock)}
}

// NewTableLocks creates an empty lock table keyed by table number
func NewTableLocks() *TableLocks {
	return NewKeyedLocks[int]()
}

// Lock blocks until the key's section is free and returns its release func
func (l *KeyedLocks[K]) Lock(key K) func() {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &keyedLock{}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()

	return func() {
		lk.mu.Unlock()

		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len reports how many keys currently hold or wait for a lock
func (l *KeyedLocks[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
