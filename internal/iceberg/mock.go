package iceberg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// MockStore serves objects from memory.
type MockStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Errs    map[string]error
	Opened  []string
}

// Put stores an object.
func (m *MockStore) Put(location string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Objects == nil {
		m.Objects = make(map[string][]byte)
	}
	m.Objects[location] = data
}

func (m *MockStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Opened = append(m.Opened, location)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Errs[location]; ok {
		return nil, err
	}
	data, ok := m.Objects[location]
	if !ok {
		return nil, fmt.Errorf("opening %s: %w", location, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
