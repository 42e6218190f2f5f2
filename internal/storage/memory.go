package storage

import (
	"errors"
	"sync"
)

var errWriteFailed = errors.New("storage: write failed")

// Memory is an in-process KV used by tests and by background-wake simulations
// that share one blob between two scheduler instances.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte

	// FailWrites makes every Set return an error, for degraded-storage tests.
	FailWrites bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWriteFailed
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}
