// Package kvstore provides the persisted key-value backends behind session
// preferences: in-memory, a JSON file and Redis.
package kvstore

import (
	"context"
	"strings"
	"sync"

	"github.com/boddenberg/repartos-bfa-go/internal/port"
)

// Memory is a process-local store. Contents are lost on restart.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return "", port.ErrKeyNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Namespaced prefixes every key with "<namespace>:" so each session gets its
// own keyspace on a shared backend.
type Namespaced struct {
	inner     port.KVStore
	namespace string
}

// WithNamespace wraps a store.
func WithNamespace(inner port.KVStore, namespace string) *Namespaced {
	return &Namespaced{inner: inner, namespace: namespace}
}

func (n *Namespaced) key(k string) string {
	if n.namespace == "" {
		return k
	}
	return n.namespace + ":" + k
}

func (n *Namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.inner.Get(ctx, n.key(key))
}

func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.key(key), value)
}

func (n *Namespaced) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = n.key(k)
	}
	return n.inner.Delete(ctx, full...)
}

// Namespace returns the prefix without the separator.
func (n *Namespaced) Namespace() string {
	return strings.TrimSuffix(n.namespace, ":")
}
