package ps

import (
	"fmt"
	"slices"
	"sync"
)

// Mem is an in-memory [Store].
//
// The zero value is not usable; create one with [NewMem].
type Mem struct {
	mu      sync.Mutex
	records map[uint16][]uint16
	closed  bool
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{records: make(map[uint16][]uint16)}
}

// Store implements [Store].
func (m *Mem) Store(key uint16, words []uint16) (int, error) {
	if len(words) > MaxWords {
		return 0, fmt.Errorf("store key 0x%04x: %d words: %w", key, len(words), ErrTooLarge)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	if len(words) == 0 {
		delete(m.records, key)

		return 0, nil
	}

	m.records[key] = slices.Clone(words)

	return len(words), nil
}

// Retrieve implements [Store].
func (m *Mem) Retrieve(key uint16, buf []uint16) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	return retrieveInto(m.records[key], buf), nil
}

// Keys implements [Lister].
func (m *Mem) Keys() ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	keys := make([]uint16, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys, nil
}

// Snapshot returns a deep copy of every record.
func (m *Mem) Snapshot() map[uint16][]uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uint16][]uint16, len(m.records))
	for k, v := range m.records {
		out[k] = slices.Clone(v)
	}

	return out
}

// Close marks the store closed. Subsequent calls return [ErrClosed].
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

var (
	_ Store  = (*Mem)(nil)
	_ Lister = (*Mem)(nil)
)
