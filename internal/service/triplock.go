package service

import (
	"sync"

	"github.com/google/uuid"
)

// tripLocks provides per-trip mutual exclusion for the read-modify-write
// sequences in issue, renew, and verify. Different trips never contend with
// each other; two operations on the same trip serialize. Entries are
// reference-counted and removed when the last holder releases, so the map
// does not grow with the number of trips ever seen.
type tripLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*tripLock
}

type tripLock struct {
	mu   sync.Mutex
	refs int
}

func newTripLocks() *tripLocks {
	return &tripLocks{locks: make(map[uuid.UUID]*tripLock)}
}

// acquire blocks until the caller holds the lock for tripID and returns the
// release function. The release function must be called exactly once.
func (t *tripLocks) acquire(tripID uuid.UUID) func() {
	t.mu.Lock()
	l, ok := t.locks[tripID]
	if !ok {
		l = &tripLock{}
		t.locks[tripID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, tripID)
		}
		t.mu.Unlock()
	}
}
