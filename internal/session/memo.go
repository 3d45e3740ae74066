package session

import (
	"sync"

	"streamflux/internal/models"
)

// Memo is the set of records enriched during this run. It is never
// persisted.
type Memo struct {
	mu   sync.RWMutex
	keys map[models.Key]struct{}
}

func NewMemo() *Memo {
	return &Memo{keys: make(map[models.Key]struct{})}
}

func (m *Memo) Has(key models.Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[key]
	return ok
}

// Mark records key and reports whether it was newly added.
func (m *Memo) Mark(key models.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false
	}
	m.keys[key] = struct{}{}
	return true
}

func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

func (m *Memo) Reset() {
	m.mu.Lock()
	m.keys = make(map[models.Key]struct{})
	m.mu.Unlock()
}
