// Package store is the generic record persistence used by the kanban core.
// Records are keyed by an opaque string id; nothing else about the schema
// is assumed.
package store

import (
	"context"
	"errors"
	"maps"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("store: record not found")
	// ErrMissingID is returned when a record is inserted without an id.
	ErrMissingID = errors.New("store: record id is required")
	// ErrDuplicateID is returned when an id is inserted twice.
	ErrDuplicateID = errors.New("store: duplicate record id")
)

// Record is a single row: column name to value. The "id" column is required.
type Record map[string]any

// ID returns the record's id column as a string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// Filter selects records whose columns equal the given values.
type Filter map[string]any

// Store is the four-operation persistence contract plus an atomic unit.
type Store interface {
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	Update(ctx context.Context, table, id string, patch Record) (Record, error)
	Delete(ctx context.Context, table, id string) error
	List(ctx context.Context, table string, filter Filter) ([]Record, error)

	// Atomic runs fn against a store whose writes are committed only if fn
	// returns nil. A non-nil return discards every write made through tx.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
