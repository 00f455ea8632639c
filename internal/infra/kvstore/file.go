package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/boddenberg/repartos-bfa-go/internal/port"

	"go.uber.org/zap"
)

// File keeps every key in one JSON document on disk. Writes go to a temp
// file that is renamed over the original.
type File struct {
	mu     sync.Mutex
	path   string
	items  map[string]string
	logger *zap.Logger
}

// NewFile opens (or lazily creates) the store at path. An unreadable or
// corrupt document is logged and treated as empty.
func NewFile(path string, logger *zap.Logger) (*File, error) {
	f := &File{path: path, items: make(map[string]string), logger: logger}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read kv file: %w", err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.items); err != nil {
		logger.Warn("kv file is corrupt, starting empty",
			zap.String("path", path),
			zap.Error(err),
		)
		f.items = make(map[string]string)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[key]
	if !ok {
		return "", port.ErrKeyNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = value
	return f.flush()
}

func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.items, k)
	}
	return f.flush()
}

// flush must be called with mu held.
func (f *File) flush() error {
	raw, err := json.MarshalIndent(f.items, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".kv-*")
	if err != nil {
		return fmt.Errorf("create temp kv file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write kv file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace kv file: %w", err)
	}
	return nil
}
