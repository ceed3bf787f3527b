// Package configstore persists small JSON blobs such as customised stage
// sets. It is independent of the card database.
package configstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

var keyRe = regexp.MustCompile(`^[A-Za-z0-9_\-]+(/[A-Za-z0-9_\-]+)*$`)

// Store loads and saves configuration blobs by key.
type Store interface {
	// Load returns the blob for key. ok is false when nothing was saved.
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
	Save(ctx context.Context, key string, data []byte) error
}

// ValidKey reports whether key is usable by every backend: slash-separated
// segments of letters, digits, '-' and '_'.
func ValidKey(key string) bool {
	return keyRe.MatchString(key)
}

func checkKey(key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("configstore: invalid key %q", key)
	}
	return nil
}

// MemStore keeps blobs in memory.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// FailSave, when set, makes Save return its result instead of storing.
	FailSave func(key string) error
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (m *MemStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *MemStore) Save(_ context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if m.FailSave != nil {
		if err := m.FailSave(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}
