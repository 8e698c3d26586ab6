package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore keeps collections in a shared PostgreSQL database. It lets
// several clients on one host share a cache.
//
// Tables:
//
//	storysync_meta(id, version)                  single row, id = 1
//	storysync_collections(name)                  PRIMARY KEY (name)
//	storysync_documents(collection, key, data)   PRIMARY KEY (collection, key)
type PostgresStore struct {
	mu          sync.RWMutex
	dsn         string
	db          *sql.DB
	collections map[string]bool
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{dsn: dsn}
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS storysync_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS storysync_collections (
		name TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS storysync_documents (
		collection TEXT NOT NULL REFERENCES storysync_collections(name),
		key TEXT NOT NULL,
		data JSONB NOT NULL,
		PRIMARY KEY (collection, key)
	);
`

func (p *PostgresStore) Open(ctx context.Context, version int, collections ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		db, err := sql.Open("postgres", p.dsn)
		if err != nil {
			return unavailable(fmt.Errorf("failed to open database: %w", err))
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return unavailable(fmt.Errorf("failed to connect to database: %w", err))
		}
		p.db = db
	}

	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, "SELECT version FROM storysync_meta WHERE id = 1 FOR UPDATE").Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("get version: %w", err)
	}
	if err := checkVersion(current, version); err != nil {
		return err
	}
	for _, name := range collections {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO storysync_collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", name,
		); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO storysync_meta (id, version) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version
	`, version); err != nil {
		return fmt.Errorf("set version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	names, err := p.queryCollections(ctx)
	if err != nil {
		return err
	}
	p.collections = make(map[string]bool, len(names))
	for _, n := range names {
		p.collections[n] = true
	}
	return nil
}

func (p *PostgresStore) queryCollections(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT name FROM storysync_collections ORDER BY name")
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

func (p *PostgresStore) conn(collection string) (*sql.DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrNotOpen
	}
	if collection != "" && !p.collections[collection] {
		return nil, unknownCollection(collection)
	}
	return p.db, nil
}

func (p *PostgresStore) Version(ctx context.Context) (int, error) {
	db, err := p.conn("")
	if err != nil {
		return 0, err
	}
	var v int
	err = db.QueryRowContext(ctx, "SELECT version FROM storysync_meta WHERE id = 1").Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}

func (p *PostgresStore) ListCollections(ctx context.Context) ([]string, error) {
	if _, err := p.conn(""); err != nil {
		return nil, err
	}
	return p.queryCollections(ctx)
}

func (p *PostgresStore) GetAll(ctx context.Context, collection string) (map[string]map[string]any, error) {
	db, err := p.conn(collection)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT key, data FROM storysync_documents WHERE collection = $1", collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]map[string]any)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
		result[key] = doc
	}
	return result, rows.Err()
}

func (p *PostgresStore) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	db, err := p.conn(collection)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = db.QueryRowContext(ctx,
		"SELECT data FROM storysync_documents WHERE collection = $1 AND key = $2",
		collection, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) Put(ctx context.Context, collection, key string, data map[string]any) error {
	db, err := p.conn(collection)
	if err != nil {
		return err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO storysync_documents (collection, key, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE SET data = EXCLUDED.data
	`, collection, key, string(b))
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	db, err := p.conn(collection)
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx,
		"DELETE FROM storysync_documents WHERE collection = $1 AND key = $2",
		collection, key,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *PostgresStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	p.collections = nil
	return err
}
