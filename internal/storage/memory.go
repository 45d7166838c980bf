package storage

import (
	"context"
	"sync"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
)

var _ cart.Storage = (*Memory)(nil)

// Memory is an in-process cart.Storage. Nothing survives the process.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
	err  error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// FailWith makes every later call return err; nil restores normal operation.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
