package store

import (
	"fmt"
	"path/filepath"
)

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"     - JSON files in dataDir
//	"sqlite"   - SQLite database at dataDir/story.db (default)
//	"postgres" - PostgreSQL reachable through dsn
//	"memory"   - In-memory (ephemeral, for testing)
//
// The returned store is not opened; call Open before use.
func New(backend, dataDir, dsn string) (Store, error) {
	switch backend {
	case "sqlite", "":
		return NewSqliteStore(filepath.Join(dataDir, "story.db")), nil
	case "json":
		return NewJsonFileStore(dataDir), nil
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("postgres backend requires a dsn")
		}
		return NewPostgresStore(dsn), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, postgres, memory)", backend)
	}
}
