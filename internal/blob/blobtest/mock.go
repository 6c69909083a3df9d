// Package blobtest provides test doubles for the blob package.
package blobtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/flemzord/sitterd/internal/blob"
)

// MockStore is an in-memory blob.Store that can be told to fail.
type MockStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes []string

	// DeleteErr, when non-nil, is consulted before every Delete. A non-nil
	// return aborts the delete with that error.
	DeleteErr func(key string, attempt int) error
	attempts  map[string]int
}

var _ blob.Store = (*MockStore)(nil)

// NewMockStore creates a store holding the given keys with empty content.
func NewMockStore(keys ...string) *MockStore {
	m := &MockStore{objects: make(map[string][]byte), attempts: make(map[string]int)}
	for _, k := range keys {
		m.objects[k] = nil
	}
	return m
}

// Put implements blob.Store.
func (m *MockStore) Put(_ context.Context, key string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	return nil
}

// Exists implements blob.Store.
func (m *MockStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Delete implements blob.Store.
func (m *MockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	m.attempts[key]++
	attempt := m.attempts[key]
	hook := m.DeleteErr
	m.mu.Unlock()

	if hook != nil {
		if err := hook(key, attempt); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	delete(m.objects, key)
	m.deletes = append(m.deletes, key)
	return nil
}

// Deleted returns the keys successfully deleted, in order.
func (m *MockStore) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// Attempts returns how many times Delete was called for key.
func (m *MockStore) Attempts(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[key]
}
