package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// sessionLocks serializes mutations per session. Entries are reference
// counted so the map does not grow with every session ever seen.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[uuid.UUID]*sessionLock)}
}

// Lock acquires the lock for id and returns its release function.
func (l *sessionLocks) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &sessionLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// inFlight tracks the cancel function of the analysis or commit currently
// running for a session so Cancel can stop it.
type inFlight struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]map[int]context.CancelFunc
	next    int
}

func newInFlight() *inFlight {
	return &inFlight{cancels: make(map[uuid.UUID]map[int]context.CancelFunc)}
}

// Start derives a cancellable run context for id. The returned done func must
// be called when the run ends.
func (f *inFlight) Start(parent context.Context, id uuid.UUID) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	f.mu.Lock()
	f.next++
	token := f.next
	if f.cancels[id] == nil {
		f.cancels[id] = make(map[int]context.CancelFunc)
	}
	f.cancels[id][token] = cancel
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		delete(f.cancels[id], token)
		if len(f.cancels[id]) == 0 {
			delete(f.cancels, id)
		}
		f.mu.Unlock()
		cancel()
	}
}

// Cancel stops every run registered for id and reports whether any was found.
func (f *inFlight) Cancel(id uuid.UUID) bool {
	f.mu.Lock()
	runs := f.cancels[id]
	delete(f.cancels, id)
	f.mu.Unlock()

	for _, cancel := range runs {
		cancel()
	}
	return len(runs) > 0
}
