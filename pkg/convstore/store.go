// Package convstore tracks conversation continuation state. Each conversation
// id maps to the identifiers the upstream needs to treat the next query as a
// follow-up; callers own choosing the id (MCP session, API caller token).
package convstore

import (
	"sort"
	"sync"
	"time"
)

// Turn is the continuation state left behind by the latest completed search
// of a conversation.
type Turn struct {
	Query          string    `json:"query,omitempty"`
	BackendUUID    string    `json:"backend_uuid"`
	ContextUUID    string    `json:"context_uuid,omitempty"`
	ReadWriteToken string    `json:"read_write_token,omitempty"`
	Attachments    []string  `json:"attachments,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store persists continuation state per conversation id. Implementations must
// be safe for concurrent use.
type Store interface {
	Get(id string) (Turn, bool)
	Put(id string, turn Turn)
	Delete(id string)
	IDs() []string
}

// Memory is the in-process Store. State does not survive restarts; the
// upstream tokens expire server-side anyway.
type Memory struct {
	mu    sync.RWMutex
	turns map[string]Turn
}

func NewMemory() *Memory {
	return &Memory{turns: make(map[string]Turn)}
}

func (m *Memory) Get(id string) (Turn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turn, ok := m.turns[id]
	return turn, ok
}

func (m *Memory) Put(id string, turn Turn) {
	if turn.UpdatedAt.IsZero() {
		turn.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[id] = turn
}

func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, id)
}

// IDs returns the known conversation ids, sorted for stable listings.
func (m *Memory) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.turns))
	for id := range m.turns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
