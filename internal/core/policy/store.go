// Package policy holds the ordered in-memory policy rows, keyed by policy
// shape ("p", "p2", ...). Rows are opaque ordered string tuples here; arity
// validation against the model happens at the enforcer boundary.
package policy

import (
	"strings"
	"sync"
)

// ruleKey joins a row into a single map key for the existence index. The
// delimiter is unlikely to appear inside policy fields.
func ruleKey(row []string) string {
	return strings.Join(row, "$$")
}

// Store is an ordered, mutation-friendly collection of policy rows per
// shape key. Duplicate rows are rejected on Add. All methods are safe for
// concurrent use, though the enforcer additionally serializes mutations
// against in-flight enforcement.
type Store struct {
	mu    sync.RWMutex
	rows  map[string][][]string
	index map[string]map[string]int // shape key -> rule key -> position
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		rows:  map[string][][]string{},
		index: map[string]map[string]int{},
	}
}

// Add appends a row. It returns false when an identical row already exists
// for the shape.
func (s *Store) Add(key string, row []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(key, row)
}

func (s *Store) addLocked(key string, row []string) bool {
	idx, ok := s.index[key]
	if !ok {
		idx = map[string]int{}
		s.index[key] = idx
	}
	rk := ruleKey(row)
	if _, exists := idx[rk]; exists {
		return false
	}
	idx[rk] = len(s.rows[key])
	s.rows[key] = append(s.rows[key], row)
	return true
}

// Remove deletes a row, preserving the order of the remaining rows. It
// returns false when the row is absent.
func (s *Store) Remove(key string, row []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key, row)
}

func (s *Store) removeLocked(key string, row []string) bool {
	idx, ok := s.index[key]
	if !ok {
		return false
	}
	rk := ruleKey(row)
	pos, exists := idx[rk]
	if !exists {
		return false
	}
	s.rows[key] = append(s.rows[key][:pos], s.rows[key][pos+1:]...)
	delete(idx, rk)
	for rest, p := range idx {
		if p > pos {
			idx[rest] = p - 1
		}
	}
	return true
}

// Update replaces oldRow with newRow in place, keeping its position in
// store order. It returns false when oldRow is absent or newRow already
// exists.
func (s *Store) Update(key string, oldRow, newRow []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[key]
	if !ok {
		return false
	}
	oldKey := ruleKey(oldRow)
	pos, exists := idx[oldKey]
	if !exists {
		return false
	}
	newKey := ruleKey(newRow)
	if _, clash := idx[newKey]; clash && newKey != oldKey {
		return false
	}
	s.rows[key][pos] = newRow
	delete(idx, oldKey)
	idx[newKey] = pos
	return true
}

// GetAll returns a copy of the rows for a shape, in insertion order.
func (s *Store) GetAll(key string) [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[key]
	out := make([][]string, len(rows))
	copy(out, rows)
	return out
}

// Has reports whether an identical row exists.
func (s *Store) Has(key string, row []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[key]
	if !ok {
		return false
	}
	_, exists := idx[ruleKey(row)]
	return exists
}

// Filter returns the rows whose field at fieldIndex equals value, in store
// order. An empty value matches every row, mirroring filtered policy
// queries where unspecified fields are wildcards.
func (s *Store) Filter(key string, fieldIndex int, value string) [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [][]string
	for _, row := range s.rows[key] {
		if fieldIndex >= len(row) {
			continue
		}
		if value == "" || row[fieldIndex] == value {
			out = append(out, row)
		}
	}
	return out
}

// Len returns the row count for a shape.
func (s *Store) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows[key])
}

// Clear drops every row of every shape.
func (s *Store) Clear() {
	s.mu.Lock()
	s.rows = map[string][][]string{}
	s.index = map[string]map[string]int{}
	s.mu.Unlock()
}
