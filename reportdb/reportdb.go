// Package reportdb is the local report database: a cache of the most recently
// fetched feed and an independent collection of reports the user saved.
package reportdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/stevemurr/story-sync/report"
	"github.com/stevemurr/story-sync/schema"
	"github.com/stevemurr/story-sync/store"
)

const (
	// SchemaVersion is the version the database is opened at. Bumping it
	// creates missing collections; it never drops data.
	SchemaVersion = 4

	// ReportsCollection mirrors the last successfully fetched feed.
	ReportsCollection = "reports"
	// SavedCollection holds reports the user explicitly saved.
	SavedCollection = "saved_reports"
)

var (
	// ErrStorageUnavailable means the platform refused persistent storage.
	ErrStorageUnavailable = errors.New("local storage unavailable")
	// ErrWrite means a record could not be validated, encoded or written.
	ErrWrite = errors.New("local storage write failed")
)

// DB is a handle to the local report database. The underlying store is
// opened lazily on first use and shared by every caller of the handle.
type DB struct {
	store  store.Store
	logger *slog.Logger

	mu     sync.Mutex
	opened bool
}

// New wraps s. A nil logger uses slog.Default().
func New(s store.Store, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{store: s, logger: logger}
}

// Open establishes the connection and creates both collections if needed.
// Concurrent callers wait for the same open; after a failure the next call
// tries again.
func (db *DB) Open(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.opened {
		return nil
	}
	if err := db.store.Open(ctx, SchemaVersion, ReportsCollection, SavedCollection); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	db.opened = true
	db.logger.Debug("local database opened", "version", SchemaVersion)
	return nil
}

// Close closes the underlying store. The handle can be reopened.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.opened = false
	return db.store.Close()
}

// UpsertReport inserts or overwrites r in the feed cache.
func (db *DB) UpsertReport(ctx context.Context, r report.Report) error {
	return db.put(ctx, ReportsCollection, r)
}

// UpsertSaved inserts or overwrites r in the saved collection.
func (db *DB) UpsertSaved(ctx context.Context, r report.Report) error {
	return db.put(ctx, SavedCollection, r)
}

// ListReports returns every cached feed report, newest first.
func (db *DB) ListReports(ctx context.Context) ([]report.Report, error) {
	return db.list(ctx, ReportsCollection)
}

// ListSaved returns every saved report, newest first.
func (db *DB) ListSaved(ctx context.Context) ([]report.Report, error) {
	return db.list(ctx, SavedCollection)
}

// GetReport looks up a cached feed report. The bool is false when absent.
func (db *DB) GetReport(ctx context.Context, id string) (report.Report, bool, error) {
	return db.get(ctx, ReportsCollection, id)
}

// GetSaved looks up a saved report. The bool is false when absent.
func (db *DB) GetSaved(ctx context.Context, id string) (report.Report, bool, error) {
	return db.get(ctx, SavedCollection, id)
}

// IsSaved reports whether id is in the saved collection. Lookup failures are
// logged and reported as not saved.
func (db *DB) IsSaved(ctx context.Context, id string) bool {
	_, ok, err := db.GetSaved(ctx, id)
	if err != nil {
		db.logger.Warn("saved lookup failed", "id", id, "error", err)
		return false
	}
	return ok
}

// RemoveSaved deletes id from the saved collection. Removing an id that is
// not saved succeeds.
func (db *DB) RemoveSaved(ctx context.Context, id string) error {
	if err := db.Open(ctx); err != nil {
		return err
	}
	if _, err := db.store.Delete(ctx, SavedCollection, id); err != nil {
		return fmt.Errorf("%w: remove %q: %w", ErrWrite, id, err)
	}
	return nil
}

func (db *DB) put(ctx context.Context, collection string, r report.Report) error {
	if err := db.Open(ctx); err != nil {
		return err
	}
	doc, err := r.ToDocument()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := schema.Report.Validate(doc); err != nil {
		return fmt.Errorf("%w: report %q: %w", ErrWrite, r.ID, err)
	}
	if err := db.store.Put(ctx, collection, r.ID, doc); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrWrite, collection, r.ID, err)
	}
	return nil
}

func (db *DB) get(ctx context.Context, collection, id string) (report.Report, bool, error) {
	if err := db.Open(ctx); err != nil {
		return report.Report{}, false, err
	}
	doc, err := db.store.Get(ctx, collection, id)
	if err != nil {
		return report.Report{}, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if doc == nil {
		return report.Report{}, false, nil
	}
	r, err := report.FromDocument(doc)
	if err != nil {
		return report.Report{}, false, err
	}
	return r, true, nil
}

func (db *DB) list(ctx context.Context, collection string) ([]report.Report, error) {
	if err := db.Open(ctx); err != nil {
		return nil, err
	}
	docs, err := db.store.GetAll(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	reports := make([]report.Report, 0, len(docs))
	for key, doc := range docs {
		r, err := report.FromDocument(doc)
		if err != nil {
			db.logger.Warn("skipping undecodable record", "collection", collection, "id", key, "error", err)
			continue
		}
		reports = append(reports, r)
	}
	sortNewestFirst(reports)
	return reports, nil
}

func sortNewestFirst(reports []report.Report) {
	sort.Slice(reports, func(i, j int) bool {
		ti, tj := reports[i].Created(), reports[j].Created()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return reports[i].ID < reports[j].ID
	})
}
