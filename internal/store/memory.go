package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process document store. Used by every handler test and as
// the dev-mode backend; values round-trip through JSON so behavior matches
// the redis-backed store exactly.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]json.RawMessage, 1024)}
}

func memKey(kind, key string) string {
	return kind + ":" + key
}

func (m *Memory) Get(_ context.Context, kind, key string, out any) error {
	m.mu.RLock()
	raw, ok := m.docs[memKey(kind, key)]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s:%s", ErrNotFound, kind, key)
	}
	return json.Unmarshal(raw, out)
}

func (m *Memory) Put(_ context.Context, kind, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal %s:%s: %w", kind, key, err)
	}

	m.mu.Lock()
	m.docs[memKey(kind, key)] = raw
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Dump returns a deterministic serialization of the full store contents.
// Replay tests compare dumps byte for byte.
func (m *Memory) Dump() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, m.docs[k]...)
		buf = append(buf, '\n')
	}
	return buf
}
