// Package keylock provides a table of per-key mutexes with FIFO fairness.
//
// Every document mutation in docmesh runs under the lock for its "_id":
// local writes, transactions, and remote-apply all serialise through the
// same table, so at most one mutation per key is in flight at any instant.
// Locks on distinct keys are independent.
package keylock

import "sync"

// Table maps keys to mutexes, created lazily on first acquisition and
// removed once the last holder or waiter is gone. A single guard mutex
// protects the map, so two acquirers can never observe different entries
// for the same key.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry tracks one key's lock state. Invariant: an entry exists in the
// table iff the key is locked; waiters queue in arrival order behind the
// current holder.
type entry struct {
	waiters []chan struct{}
}

// New creates an empty lock table.
func New() *Table {
	return &Table{
		entries: make(map[string]*entry),
	}
}

// Lock acquires the mutex for key, blocking until it is available, and
// returns the release capability. Waiters are granted the lock in arrival
// order. Calls to the returned func after the first have no effect; callers
// should defer it so release fires on every exit path. A goroutine must not call
// Lock again for a key it already holds.
func (t *Table) Lock(key string) (release func()) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		t.entries[key] = &entry{}
		t.mu.Unlock()
		return t.releaser(key)
	}

	// Key is busy: enqueue and wait for a direct handoff.
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	t.mu.Unlock()

	<-ch
	return t.releaser(key)
}

// releaser wraps release in a Once so a double call cannot corrupt the
// entry's state.
func (t *Table) releaser(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { t.release(key) })
	}
}

// release hands the lock to the oldest waiter, or removes the entry when
// nobody is waiting. The lock stays held across a handoff, so no third
// goroutine can slip in between.
func (t *Table) release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[key]
	if len(e.waiters) == 0 {
		delete(t.entries, key)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}

// Len reports the number of live entries, i.e. keys currently held or
// waited on.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
