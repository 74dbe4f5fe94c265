package devicestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Backend is a flat key/value store of raw JSON values.
type Backend interface {
	Get(key string) (json.RawMessage, bool, error)
	Set(key string, value json.RawMessage) error
	Delete(key string) error
	Keys() ([]string, error)
}

// MemoryBackend keeps values in a map. The zero value is not usable; use
// NewMemoryBackend.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]json.RawMessage)}
}

func (m *MemoryBackend) Get(key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return slices.Clone(v), ok, nil
}

func (m *MemoryBackend) Set(key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = slices.Clone(value)
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryBackend) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.values)), nil
}

// FileBackend persists all values as one JSON object in a file. Every
// write replaces the file through a rename.
type FileBackend struct {
	path string

	mu     sync.Mutex
	values map[string]json.RawMessage
}

// OpenFileBackend loads path, treating a missing file as empty.
func OpenFileBackend(path string) (*FileBackend, error) {
	b := &FileBackend{path: path, values: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return b, nil
	case err != nil:
		return nil, fmt.Errorf("devicestore: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b.values); err != nil {
		return nil, fmt.Errorf("devicestore: parse %s: %w", path, err)
	}
	if b.values == nil {
		b.values = make(map[string]json.RawMessage)
	}
	return b, nil
}

func (b *FileBackend) Get(key string) (json.RawMessage, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return slices.Clone(v), ok, nil
}

func (b *FileBackend) Set(key string, value json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, had := b.values[key]
	b.values[key] = slices.Clone(value)
	if err := b.flush(); err != nil {
		if had {
			b.values[key] = prev
		} else {
			delete(b.values, key)
		}
		return err
	}
	return nil
}

func (b *FileBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, had := b.values[key]
	if !had {
		return nil
	}
	delete(b.values, key)
	if err := b.flush(); err != nil {
		b.values[key] = prev
		return err
	}
	return nil
}

func (b *FileBackend) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Keys(b.values)), nil
}

// flush must be called with mu held.
func (b *FileBackend) flush() error {
	data, err := json.Marshal(b.values)
	if err != nil {
		return fmt.Errorf("devicestore: encode: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("devicestore: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".devicestore-*")
	if err != nil {
		return fmt.Errorf("devicestore: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("devicestore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("devicestore: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("devicestore: replace %s: %w", b.path, err)
	}
	return nil
}
