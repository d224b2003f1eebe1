// Package sessions tracks the clients currently known to a server.
package sessions

import (
	"encoding/json"
	"sync"

	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/types"
)

// Session is the per-client state recorded at initialize time.
type Session struct {
	ClientID        string
	ProtocolVersion string
	ClientInfo      types.Implementation
	Capabilities    json.RawMessage
	Initialized     bool
}

// Table is a mutex-guarded clientID -> Session map. At most one session
// exists per client id; an upsert for a known id replaces the prior
// session.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Upsert inserts or replaces the session for s.ClientID.
func (t *Table) Upsert(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copied := s
	t.sessions[s.ClientID] = &copied
}

// Get returns a copy of the session for clientID.
func (t *Table) Get(clientID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[clientID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// MarkInitialized flips the session into the initialized state and
// returns the client info recorded at initialize time. The second return
// is false when no session exists for clientID.
func (t *Table) MarkInitialized(clientID string) (types.Implementation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[clientID]
	if !ok {
		return types.Implementation{}, false
	}
	s.Initialized = true
	return s.ClientInfo, true
}

// Remove deletes the session and returns the prior client info. Removing
// an absent id is a no-op and returns false.
func (t *Table) Remove(clientID string) (types.Implementation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[clientID]
	if !ok {
		return types.Implementation{}, false
	}
	delete(t.sessions, clientID)
	return s.ClientInfo, true
}

// IDs returns the ids of all tracked sessions, in no particular order.
func (t *Table) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of tracked sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Clear drops every session and returns the ids that were tracked.
func (t *Table) Clear() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.sessions = make(map[string]*Session)
	return ids
}
