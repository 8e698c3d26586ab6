package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqliteStore stores all collections in a single SQLite database.
//
// Tables:
//
//	collections(name)                 PRIMARY KEY (name)
//	documents(collection, key, data)  PRIMARY KEY (collection, key)
//
// The schema version lives in PRAGMA user_version.
type SqliteStore struct {
	mu          sync.RWMutex
	path        string
	db          *sql.DB
	collections map[string]bool
}

func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{path: dbPath}
}

func (s *SqliteStore) connect(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, err
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return db, nil
}

func (s *SqliteStore) Open(ctx context.Context, version int, collections ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		db, err := s.connect(ctx)
		if err != nil {
			return unavailable(err)
		}
		s.db = db
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return unavailable(fmt.Errorf("get user_version: %w", err))
	}
	if err := checkVersion(current, version); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY
	)`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	)`); err != nil {
		return err
	}
	for _, name := range collections {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO collections (name) VALUES (?)", name); err != nil {
			return err
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	names, err := s.queryCollections(ctx)
	if err != nil {
		return err
	}
	s.collections = make(map[string]bool, len(names))
	for _, n := range names {
		s.collections[n] = true
	}
	return nil
}

func (s *SqliteStore) queryCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// conn returns the open database after checking the collection exists.
func (s *SqliteStore) conn(collection string) (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	if collection != "" && !s.collections[collection] {
		return nil, unknownCollection(collection)
	}
	return s.db, nil
}

func (s *SqliteStore) Version(ctx context.Context) (int, error) {
	db, err := s.conn("")
	if err != nil {
		return 0, err
	}
	var v int
	err = db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

func (s *SqliteStore) ListCollections(ctx context.Context) ([]string, error) {
	if _, err := s.conn(""); err != nil {
		return nil, err
	}
	return s.queryCollections(ctx)
}

func (s *SqliteStore) GetAll(ctx context.Context, collection string) (map[string]map[string]any, error) {
	db, err := s.conn(collection)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT key, data FROM documents WHERE collection = ?", collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
		result[key] = doc
	}
	return result, rows.Err()
}

func (s *SqliteStore) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	db, err := s.conn(collection)
	if err != nil {
		return nil, err
	}
	var raw string
	err = db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND key = ?",
		collection, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SqliteStore) Put(ctx context.Context, collection, key string, data map[string]any) error {
	db, err := s.conn(collection)
	if err != nil {
		return err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO documents (collection, key, data) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET data = excluded.data`,
		collection, key, string(b),
	)
	return err
}

func (s *SqliteStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	db, err := s.conn(collection)
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND key = ?",
		collection, key,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.collections = nil
	return err
}
