package tokenstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps sealed tokens in process memory; contents vanish on restart.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string]string)}
}

func (m *MemoryBackend) Put(_ context.Context, namespace, kind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]string, len(Kinds))
		m.data[namespace] = ns
	}
	ns[kind] = value
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, namespace, kind string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[namespace][kind]
	return v, ok, nil
}

func (m *MemoryBackend) Delete(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, namespace)
	return nil
}

// Len reports how many namespaces currently hold tokens.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
