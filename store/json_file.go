package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// JsonFileStore stores each collection as a separate JSON file on disk.
//
// Layout:
//
//	data_dir/
//	  _meta.json          # {"version": 4, "collections": [...]}
//	  reports.json        # "reports" collection
//	  saved_reports.json  # "saved_reports" collection
type JsonFileStore struct {
	mu   sync.RWMutex
	dir  string
	meta *jsonMeta
}

type jsonMeta struct {
	Version     int      `json:"version"`
	Collections []string `json:"collections"`
}

func (m *jsonMeta) has(collection string) bool {
	for _, c := range m.Collections {
		if c == collection {
			return true
		}
	}
	return false
}

func NewJsonFileStore(dir string) *JsonFileStore {
	return &JsonFileStore{dir: dir}
}

func (s *JsonFileStore) collectionPath(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *JsonFileStore) metaPath() string {
	return filepath.Join(s.dir, "_meta.json")
}

// saveFile writes atomically so a crash never leaves a truncated collection.
func (s *JsonFileStore) saveFile(path string, data any) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *JsonFileStore) loadMeta() (*jsonMeta, error) {
	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &jsonMeta{}, nil
		}
		return nil, err
	}
	var m jsonMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.metaPath(), err)
	}
	return &m, nil
}

// loadCollection loads a file as map[string]map[string]any.
func (s *JsonFileStore) loadCollection(collection string) (map[string]map[string]any, error) {
	path := s.collectionPath(collection)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]any{}, nil
		}
		return nil, err
	}
	result := map[string]map[string]any{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return result, nil
}

// check must be called with s.mu held.
func (s *JsonFileStore) check(collection string) error {
	if s.meta == nil {
		return ErrNotOpen
	}
	if !s.meta.has(collection) {
		return unknownCollection(collection)
	}
	return nil
}

func (s *JsonFileStore) Open(_ context.Context, version int, collections ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return unavailable(err)
	}
	meta, err := s.loadMeta()
	if err != nil {
		return unavailable(err)
	}
	if err := checkVersion(meta.Version, version); err != nil {
		return err
	}
	changed := meta.Version != version
	for _, name := range collections {
		if meta.has(name) {
			continue
		}
		if _, err := os.Stat(s.collectionPath(name)); os.IsNotExist(err) {
			if err := s.saveFile(s.collectionPath(name), map[string]any{}); err != nil {
				return unavailable(err)
			}
		}
		meta.Collections = append(meta.Collections, name)
		changed = true
	}
	if changed {
		meta.Version = version
		sort.Strings(meta.Collections)
		if err := s.saveFile(s.metaPath(), meta); err != nil {
			return unavailable(err)
		}
	}
	s.meta = meta
	return nil
}

func (s *JsonFileStore) Version(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.meta != nil {
		return s.meta.Version, nil
	}
	meta, err := s.loadMeta()
	if err != nil {
		return 0, err
	}
	return meta.Version, nil
}

func (s *JsonFileStore) ListCollections(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.meta == nil {
		return nil, ErrNotOpen
	}
	return append([]string(nil), s.meta.Collections...), nil
}

func (s *JsonFileStore) GetAll(_ context.Context, collection string) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(collection); err != nil {
		return nil, err
	}
	return s.loadCollection(collection)
}

func (s *JsonFileStore) Get(_ context.Context, collection, key string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(collection); err != nil {
		return nil, err
	}
	coll, err := s.loadCollection(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := coll[key]
	if !ok {
		return nil, nil
	}
	return doc, nil
}

func (s *JsonFileStore) Put(_ context.Context, collection, key string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(collection); err != nil {
		return err
	}
	coll, err := s.loadCollection(collection)
	if err != nil {
		return err
	}
	coll[key] = data
	return s.saveFile(s.collectionPath(collection), coll)
}

func (s *JsonFileStore) Delete(_ context.Context, collection, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(collection); err != nil {
		return false, err
	}
	coll, err := s.loadCollection(collection)
	if err != nil {
		return false, err
	}
	if _, ok := coll[key]; !ok {
		return false, nil
	}
	delete(coll, key)
	return true, s.saveFile(s.collectionPath(collection), coll)
}

func (s *JsonFileStore) Close() error { return nil }
