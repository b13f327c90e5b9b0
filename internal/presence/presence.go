// Package presence tracks live connections per user and reports the edge
// transitions between offline and online.
package presence

import "sync"

// entry tracks one user's connection set. Each entry carries its own mutex
// so concurrent connects for different users never contend.
type entry struct {
	mu    sync.Mutex
	conns map[string]struct{}
	// gone marks an entry that was removed from the map while a caller
	// was waiting on its mutex. Such callers must retry with a fresh one.
	gone bool
}

type Tracker struct {
	mu    sync.RWMutex
	users map[string]*entry
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]*entry)}
}

func (t *Tracker) get(userID string) *entry {
	t.mu.RLock()
	e := t.users[userID]
	t.mu.RUnlock()
	if e != nil {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e = t.users[userID]; e == nil {
		e = &entry{conns: make(map[string]struct{})}
		t.users[userID] = e
	}
	return e
}

// Connect registers connID for userID and reports whether this is the
// user's offline-to-online transition. Registering the same connID twice
// is idempotent and never reports a second transition.
func (t *Tracker) Connect(userID, connID string) bool {
	for {
		e := t.get(userID)
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		if _, dup := e.conns[connID]; dup {
			e.mu.Unlock()
			return false
		}
		e.conns[connID] = struct{}{}
		first := len(e.conns) == 1
		e.mu.Unlock()
		return first
	}
}

// Disconnect unregisters connID for userID and reports whether the user
// just went offline. Unknown users and connection IDs are a no-op.
func (t *Tracker) Disconnect(userID, connID string) bool {
	t.mu.RLock()
	e := t.users[userID]
	t.mu.RUnlock()
	if e == nil {
		return false
	}

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return false
	}
	if _, ok := e.conns[connID]; !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.conns, connID)
	last := len(e.conns) == 0
	if last {
		e.gone = true
	}
	e.mu.Unlock()

	if last {
		t.mu.Lock()
		// Connect may have replaced the entry after we marked ours gone.
		if t.users[userID] == e {
			delete(t.users, userID)
		}
		t.mu.Unlock()
	}
	return last
}

// IsOnline reports whether userID has at least one live connection.
func (t *Tracker) IsOnline(userID string) bool {
	return t.ConnectionCount(userID) > 0
}

// ConnectionCount returns the number of live connections for userID.
func (t *Tracker) ConnectionCount(userID string) int {
	t.mu.RLock()
	e := t.users[userID]
	t.mu.RUnlock()
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return 0
	}
	return len(e.conns)
}

// ListOnline returns the IDs of all users with at least one live connection.
func (t *Tracker) ListOnline() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.users))
	for id, e := range t.users {
		e.mu.Lock()
		live := !e.gone && len(e.conns) > 0
		e.mu.Unlock()
		if live {
			ids = append(ids, id)
		}
	}
	return ids
}
