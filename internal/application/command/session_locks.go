package command

import (
	"sync"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
)

// SessionLocks serializes mutating operations per session id within this
// process. SendTurn and Finalize take the lock so concurrent callers on one
// session cannot interleave provider calls or transcript writes; cross-process
// races are fenced by the repository's transactional check-and-set of the
// completed flag.
//
// Entries are small (one mutex per session touched by this instance) and are
// not evicted; session churn is low enough that this has not mattered.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[session.ID]*sync.Mutex
}

// NewSessionLocks creates an empty lock table.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[session.ID]*sync.Mutex)}
}

// Lock acquires the mutex for a session id and returns the unlock function.
func (l *SessionLocks) Lock(id session.ID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
