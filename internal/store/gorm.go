package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"

	"gorm.io/gorm"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// GormStore implements Store over a GORM connection (sqlite or MySQL).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open GORM connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Insert creates a row and returns it as stored.
func (s *GormStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	id := rec.ID()
	if id == "" {
		return nil, ErrMissingID
	}
	if err := s.db.WithContext(ctx).Table(table).Create(map[string]any(rec.Clone())).Error; err != nil {
		return nil, fmt.Errorf("store: insert %s %s: %w", table, id, err)
	}
	return s.get(ctx, table, id)
}

// Update applies patch to the row with the given id and returns the result.
func (s *GormStore) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if _, err := s.get(ctx, table, id); err != nil {
		return nil, err
	}
	patch = patch.Clone()
	delete(patch, "id")
	if len(patch) > 0 {
		if err := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(map[string]any(patch)).Error; err != nil {
			return nil, fmt.Errorf("store: update %s %s: %w", table, id, err)
		}
	}
	return s.get(ctx, table, id)
}

// Delete removes the row with the given id; a missing row is ErrNotFound.
func (s *GormStore) Delete(ctx context.Context, table, id string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.db.Statement.Quote(table))
	res := s.db.WithContext(ctx).Exec(sql, id)
	if res.Error != nil {
		return fmt.Errorf("store: delete %s %s: %w", table, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return nil
}

// List returns rows matching every column in filter, ordered by id.
func (s *GormStore) List(ctx context.Context, table string, filter Filter) ([]Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Table(table)
	for _, k := range slices.Sorted(maps.Keys(filter)) {
		if err := checkIdent(k); err != nil {
			return nil, err
		}
		q = q.Where(fmt.Sprintf("%s = ?", s.db.Statement.Quote(k)), filter[k])
	}

	var rows []map[string]any
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list %s: %w", table, err)
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record(r)
	}
	return out, nil
}

// Atomic runs fn inside a database transaction.
func (s *GormStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) get(ctx context.Context, table, id string) (Record, error) {
	row := map[string]any{}
	res := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Limit(1).Find(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
		}
		return nil, fmt.Errorf("store: get %s %s: %w", table, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return Record(row), nil
}

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("store: invalid identifier %q", name)
	}
	return nil
}
