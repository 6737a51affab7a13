package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/icemetrics/icemetrics/internal/aggregate"
)

// File keeps the latest baseline of each warehouse in a YAML file.
type File struct {
	Path string

	mu sync.Mutex
}

type historyFile struct {
	Warehouses map[string]aggregate.Baseline `yaml:"warehouses"`
}

func (f *File) Previous(_ context.Context, warehouse string) (*aggregate.Baseline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h, err := f.load()
	if err != nil {
		return nil, err
	}
	b, ok := h.Warehouses[warehouse]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *File) Record(_ context.Context, b aggregate.Baseline) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	h, err := f.load()
	if err != nil {
		return err
	}
	h.Warehouses[b.Warehouse] = b

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f *File) Close(context.Context) error { return nil }

func (f *File) load() (*historyFile, error) {
	h := &historyFile{}
	data, err := os.ReadFile(f.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, h); err != nil {
			return nil, fmt.Errorf("parsing history: %w", err)
		}
	}
	if h.Warehouses == nil {
		h.Warehouses = make(map[string]aggregate.Baseline)
	}
	return h, nil
}
