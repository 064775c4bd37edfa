// Package session remembers the last successful search per conversation so
// that a follow-up "more" request can continue from it.
package session

import (
	"sync"

	"slack-logger/internal/search"
)

// Cursor is the state of a conversation's most recent search.
type Cursor struct {
	Filters  search.Filters
	PageSize int
	After    float64
}

// Manager holds one Cursor per conversation scope.
type Manager struct {
	mu      sync.RWMutex
	cursors map[string]Cursor
}

func NewManager() *Manager {
	return &Manager{cursors: make(map[string]Cursor)}
}

// Get returns a copy of the cursor stored for scope.
func (m *Manager) Get(scope string) (Cursor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cursors[scope]
	if !ok {
		return Cursor{}, false
	}
	c.Filters = append(search.Filters(nil), c.Filters...)
	return c, true
}

// Set overwrites the cursor for scope.
func (m *Manager) Set(scope string, c Cursor) {
	c.Filters = append(search.Filters(nil), c.Filters...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[scope] = c
}

func (m *Manager) Reset(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, scope)
}
