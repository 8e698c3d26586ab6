package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	version     int
	collections map[string]map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

// deepCopy returns a deep copy of a document by round-tripping through JSON.
func deepCopy(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	// Documents only ever come from JSON decoding or Report.ToDocument, so
	// they always marshal and the output always unmarshals back.
	b, _ := json.Marshal(src)
	var dst map[string]any
	_ = json.Unmarshal(b, &dst)
	return dst
}

func (m *MemoryStore) Open(_ context.Context, version int, collections ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkVersion(m.version, version); err != nil {
		return err
	}
	for _, name := range collections {
		if _, ok := m.collections[name]; !ok {
			m.collections[name] = make(map[string]map[string]any)
		}
	}
	m.version = version
	return nil
}

func (m *MemoryStore) Version(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

func (m *MemoryStore) ListCollections(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) GetAll(_ context.Context, collection string) (map[string]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil, unknownCollection(collection)
	}
	result := make(map[string]map[string]any, len(coll))
	for k, v := range coll {
		result[k] = deepCopy(v)
	}
	return result, nil
}

func (m *MemoryStore) Get(_ context.Context, collection, key string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil, unknownCollection(collection)
	}
	doc, ok := coll[key]
	if !ok {
		return nil, nil
	}
	return deepCopy(doc), nil
}

func (m *MemoryStore) Put(_ context.Context, collection, key string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return unknownCollection(collection)
	}
	coll[key] = deepCopy(data)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return false, unknownCollection(collection)
	}
	if _, exists := coll[key]; !exists {
		return false, nil
	}
	delete(coll, key)
	return true, nil
}

func (m *MemoryStore) Close() error { return nil }
