package agent

import "sync"

// sessionLocks serializes turns per session id. The lock is held from
// memory load through save, so two concurrent requests for the same
// session cannot interleave their load/save and silently drop a turn.
// Entries are refcounted and removed once the last waiter releases.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*sessionLock)}
}

// lock acquires the per-session lock and returns its release func.
func (l *sessionLocks) lock(sessionID string) func() {
	l.mu.Lock()
	e := l.entries[sessionID]
	if e == nil {
		e = &sessionLock{}
		l.entries[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, sessionID)
		}
		l.mu.Unlock()
	}
}
