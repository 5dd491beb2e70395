// Package export stores generated CSV files on local disk or in S3.
package export

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("export not found")

// Sink stores export files by name.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (location string, err error)
	Load(ctx context.Context, name string) ([]byte, error)
}

// MemorySink keeps exports in memory.
type MemorySink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemorySink() *MemorySink {
	return &MemorySink{files: make(map[string][]byte)}
}

func (m *MemorySink) Save(ctx context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), data...)
	return "memory://" + name, nil
}

func (m *MemorySink) Load(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}
