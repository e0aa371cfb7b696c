// Package errstore holds the most recent error per logical error id, grouped
// by display surface. One Store exists per application session and is injected
// into the components that need it.
package errstore

import (
	"errors"
	"sort"
	"sync"
	"time"

	"feedwatch/internal/fetch"
)

// GlobalGroup is the group used when a caller does not name one.
const GlobalGroup = "global"

// ErrEmptyMessage is returned when a record without a message is stored.
var ErrEmptyMessage = errors.New("error record message must not be empty")

// Record is one registered error. Immutable once stored; a later registration
// under the same id replaces it.
type Record struct {
	ID        string
	Message   string
	Timestamp time.Time
	Cause     fetch.Error // nil when the failure was not classified
}

// Store maps group id to the errors currently registered for that group.
type Store struct {
	mu     sync.RWMutex
	groups map[string]map[string]Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{groups: make(map[string]map[string]Record)}
}

// Set registers rec under its id in the given group, replacing any previous
// record with the same id. An empty group means the global group.
func (s *Store) Set(group string, rec Record) error {
	if rec.Message == "" {
		return ErrEmptyMessage
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if group == "" {
		group = GlobalGroup
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.groups[group]
	if !ok {
		entries = make(map[string]Record)
		s.groups[group] = entries
	}
	entries[rec.ID] = rec
	return nil
}

// Clear removes the named entries from the group, or every entry when no ids
// are given.
func (s *Store) Clear(group string, ids ...string) {
	if group == "" {
		group = GlobalGroup
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		delete(s.groups, group)
		return
	}
	entries := s.groups[group]
	for _, id := range ids {
		delete(entries, id)
	}
}

// All returns the group's records, newest first.
func (s *Store) All(group string) []Record {
	if group == "" {
		group = GlobalGroup
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.groups[group]
	records := make([]Record, 0, len(entries))
	for _, rec := range entries {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records
}

// Len returns the number of records in the group.
func (s *Store) Len(group string) int {
	if group == "" {
		group = GlobalGroup
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups[group])
}
