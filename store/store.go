// Package store defines the versioned document store used for local
// persistence and its backend implementations.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the backing storage could not be opened or reached.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrVersionDowngrade is returned by Open when the persisted schema version
	// is newer than the requested one.
	ErrVersionDowngrade = errors.New("schema version downgrade")

	// ErrUnknownCollection is returned for operations on a collection that was
	// never created by Open.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrNotOpen is returned when an operation runs before Open succeeded.
	ErrNotOpen = errors.New("store not open")
)

// Store is the interface that all backing stores must implement.
// It operates on named collections, where each collection contains
// documents keyed by a string identifier. Implementations are safe for
// concurrent use; a Put or Delete on a single key is atomic.
type Store interface {
	// Open prepares the store at the given schema version and creates any of
	// the named collections that do not exist yet. Existing data is never
	// removed. Calling Open again with the same arguments is a no-op.
	Open(ctx context.Context, version int, collections ...string) error

	// Version returns the persisted schema version, 0 for a fresh store.
	Version(ctx context.Context) (int, error)

	// ListCollections returns the names of all created collections, sorted.
	ListCollections(ctx context.Context) ([]string, error)

	// GetAll returns every document in a collection as a map of key -> document.
	GetAll(ctx context.Context, collection string) (map[string]map[string]any, error)

	// Get returns a single document by key, or nil if not found.
	Get(ctx context.Context, collection, key string) (map[string]any, error)

	// Put inserts or replaces a document.
	Put(ctx context.Context, collection, key string, data map[string]any) error

	// Delete removes a document. Returns true if it existed.
	Delete(ctx context.Context, collection, key string) (bool, error)

	// Close releases the underlying resources.
	Close() error
}

// checkVersion enforces that versions only move forward.
func checkVersion(current, requested int) error {
	if requested < current {
		return fmt.Errorf("%w: stored version %d, requested %d", ErrVersionDowngrade, current, requested)
	}
	return nil
}

func unknownCollection(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
