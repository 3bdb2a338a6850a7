package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrStorageRead marks a durable slot that could not be read or decoded.
// The store logs it and falls back to defaults.
var ErrStorageRead = errors.New("storage read failed")

// KV is the durable key-value contract the store persists through. Values
// are JSON strings; a missing key is reported with ok=false, not an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

type MemoryKV struct {
	mu    sync.RWMutex
	slots map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{slots: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = value
	return nil
}

func (m *MemoryKV) Close() error { return nil }
