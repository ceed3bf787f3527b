package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemStore is an in-process Store. Tests use its hooks to inject failures
// and count calls.
type MemStore struct {
	mu     sync.Mutex
	tables map[string]map[string]Record

	// FailUpdate, when set, is consulted before every Update; a non-nil
	// return aborts that update.
	FailUpdate func(table, id string) error
	// FailInsert is the Insert counterpart of FailUpdate.
	FailInsert func(table string, rec Record) error

	calls map[string]int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		tables: make(map[string]map[string]Record),
		calls:  make(map[string]int),
	}
}

// Calls reports how many times op ("insert", "update", "delete", "list")
// has been invoked.
func (s *MemStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Insert stores a copy of rec.
func (s *MemStore) Insert(_ context.Context, table string, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["insert"]++

	id := rec.ID()
	if id == "" {
		return nil, ErrMissingID
	}
	if s.FailInsert != nil {
		if err := s.FailInsert(table, rec); err != nil {
			return nil, err
		}
	}
	t := s.table(table)
	if _, ok := t[id]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateID, table, id)
	}
	t[id] = rec.Clone()
	return rec.Clone(), nil
}

// Update merges patch into the stored record.
func (s *MemStore) Update(_ context.Context, table, id string, patch Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["update"]++

	cur, ok := s.table(table)[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	if s.FailUpdate != nil {
		if err := s.FailUpdate(table, id); err != nil {
			return nil, err
		}
	}
	next := cur.Clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		next[k] = v
	}
	s.tables[table][id] = next
	return next.Clone(), nil
}

// Delete removes a record.
func (s *MemStore) Delete(_ context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["delete"]++

	t := s.table(table)
	if _, ok := t[id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	delete(t, id)
	return nil
}

// List returns copies of matching records ordered by id.
func (s *MemStore) List(_ context.Context, table string, filter Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["list"]++

	t := s.table(table)
	var out []Record
	for _, id := range slices.Sorted(maps.Keys(t)) {
		rec := t[id]
		if matches(rec, filter) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Atomic snapshots every table and restores the snapshot if fn fails.
func (s *MemStore) Atomic(_ context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	snapshot := make(map[string]map[string]Record, len(s.tables))
	for name, t := range s.tables {
		cp := make(map[string]Record, len(t))
		for id, rec := range t {
			cp[id] = rec.Clone()
		}
		snapshot[name] = cp
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.tables = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemStore) table(name string) map[string]Record {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[string]Record)
		s.tables[name] = t
	}
	return t
}

func matches(rec Record, filter Filter) bool {
	for k, want := range filter {
		if fmt.Sprint(rec[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
