// Package renderstore keeps per-surface render data until the surface asks
// for it. The store is an explicit dependency handed to the host, never
// ambient global state; deleting a key is the only invalidation.
package renderstore

import (
	"context"
	"sync"
)

// Store holds render data keyed by surface ID.
type Store interface {
	Put(ctx context.Context, surfaceID string, renderData any) error
	// Get returns the render data and whether any was stored.
	Get(ctx context.Context, surfaceID string) (any, bool, error)
	Delete(ctx context.Context, surfaceID string) error
}

// Memory is the in-process Store used when no Redis address is configured.
type Memory struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string]any{}}
}

func (m *Memory) Put(_ context.Context, surfaceID string, renderData any) error {
	m.mu.Lock()
	m.data[surfaceID] = renderData
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, surfaceID string) (any, bool, error) {
	m.mu.RLock()
	v, ok := m.data[surfaceID]
	m.mu.RUnlock()
	return v, ok, nil
}

func (m *Memory) Delete(_ context.Context, surfaceID string) error {
	m.mu.Lock()
	delete(m.data, surfaceID)
	m.mu.Unlock()
	return nil
}
