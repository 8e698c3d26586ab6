// Package feed keeps the local report database in step with the remote API.
//
// A load cycle fetches the feed from the gateway and writes every record
// through to the local cache. When the gateway fails the cached feed is
// served instead; only when the cache is empty too does the cycle end
// Degraded. Saving and unsaving never touch the network unless a report has
// to be fetched by id.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/story-sync/gateway"
	"github.com/stevemurr/story-sync/report"
	"github.com/stevemurr/story-sync/reportdb"
)

// ErrNotFound is returned by Save when the report is neither cached nor
// retrievable from the server.
var ErrNotFound = errors.New("report not found")

// Status is the terminal state of a load cycle.
type Status string

const (
	// Ready means reports are available, fresh or cached.
	Ready Status = "ready"
	// Degraded means neither the server nor the cache had anything.
	Degraded Status = "degraded"
)

// Source says where an outcome's reports came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceNone   Source = "none"
)

// Outcome is the result of one load cycle.
type Outcome struct {
	Status     Status
	Source     Source
	Reports    []report.Report
	Generation uint64
	// HydrationFailures counts fetched reports that could not be cached.
	HydrationFailures int
	// RemoteErr is the gateway failure that forced a fallback.
	RemoteErr error
	// CacheErr is set when the fallback read failed as well.
	CacheErr error
}

// Remote lists the feed.
type Remote interface {
	ListReports(ctx context.Context, opts gateway.ListOptions) gateway.Result[[]report.Report]
}

// PointFetcher is implemented by remotes that can fetch one report by id.
type PointFetcher interface {
	GetReport(ctx context.Context, id string) gateway.Result[report.Report]
}

// Poster is implemented by remotes that accept new reports.
type Poster interface {
	CreateReport(ctx context.Context, draft report.Draft) gateway.Result[struct{}]
}

const defaultHydrationConcurrency = 8

// Options configures a Synchronizer.
type Options struct {
	// List is sent with every feed request.
	List gateway.ListOptions
	// HydrationConcurrency bounds concurrent cache writes per cycle.
	HydrationConcurrency int
	Logger               *slog.Logger
	// Registerer receives the synchronizer's metrics. Nil disables export.
	Registerer prometheus.Registerer
}

// Synchronizer orchestrates the remote feed and the local database.
type Synchronizer struct {
	db      *reportdb.DB
	remote  Remote
	opts    Options
	logger  *slog.Logger
	bus     *Bus
	metrics *metrics

	generation atomic.Uint64
}

// New creates a Synchronizer.
func New(db *reportdb.DB, remote Remote, opts Options) *Synchronizer {
	if opts.HydrationConcurrency <= 0 {
		opts.HydrationConcurrency = defaultHydrationConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		db:      db,
		remote:  remote,
		opts:    opts,
		logger:  logger,
		bus:     NewBus(),
		metrics: newMetrics(opts.Registerer),
	}
}

// Subscribe registers fn for every event the synchronizer emits.
func (s *Synchronizer) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// IsCurrent reports whether gen belongs to the most recently started load.
// Callers use it to drop results of superseded cycles.
func (s *Synchronizer) IsCurrent(gen uint64) bool {
	return s.generation.Load() == gen
}

// Load runs one feed cycle: fetch, hydrate the cache, or fall back to it.
func (s *Synchronizer) Load(ctx context.Context) Outcome {
	gen := s.generation.Add(1)

	res := s.remote.ListReports(ctx, s.opts.List)
	if res.OK {
		failures := s.hydrate(ctx, res.Data)
		out := Outcome{
			Status:            Ready,
			Source:            SourceRemote,
			Reports:           res.Data,
			Generation:        gen,
			HydrationFailures: failures,
		}
		s.finish(out)
		return out
	}

	s.logger.Warn("remote feed unavailable, falling back to cache",
		"generation", gen, "message", res.Message, "error", res.Err)

	cached, err := s.db.ListReports(ctx)
	if err != nil {
		s.logger.Error("cache read failed", "generation", gen, "error", err)
	}
	if len(cached) == 0 {
		out := Outcome{
			Status:     Degraded,
			Source:     SourceNone,
			Reports:    []report.Report{},
			Generation: gen,
			RemoteErr:  res.Err,
			CacheErr:   err,
		}
		s.finish(out)
		return out
	}
	out := Outcome{
		Status:     Ready,
		Source:     SourceCache,
		Reports:    cached,
		Generation: gen,
		RemoteErr:  res.Err,
	}
	s.finish(out)
	return out
}

// hydrate writes every report to the cache. Each write is independent:
// failures are logged and counted and never cancel the others.
func (s *Synchronizer) hydrate(ctx context.Context, reports []report.Report) int {
	var g errgroup.Group
	g.SetLimit(s.opts.HydrationConcurrency)

	var failures atomic.Int64
	for _, r := range reports {
		g.Go(func() error {
			if err := s.db.UpsertReport(ctx, r); err != nil {
				failures.Add(1)
				s.logger.Warn("failed to cache report", "id", r.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(failures.Load())
	if n > 0 {
		s.metrics.hydrationFailures.Add(float64(n))
		s.logger.Warn("partial hydration", "failed", n, "total", len(reports))
	}
	return n
}

func (s *Synchronizer) finish(out Outcome) {
	s.metrics.loads.WithLabelValues(string(out.Status), string(out.Source)).Inc()
	kind := FeedRefreshed
	if out.Status == Degraded {
		kind = FeedDegraded
	}
	s.bus.publish(Event{
		Kind:       kind,
		Generation: out.Generation,
		Source:     out.Source,
		Count:      len(out.Reports),
	})
}

// Save copies a report into the saved collection. The cached feed is
// consulted first, then the server when the remote can fetch by id. The
// saved copy is frozen: later feed refreshes do not change it.
func (s *Synchronizer) Save(ctx context.Context, id string) error {
	r, ok, err := s.db.GetReport(ctx, id)
	if err != nil {
		s.logger.Warn("cache lookup failed", "id", id, "error", err)
	}
	if !ok {
		if pf, canFetch := s.remote.(PointFetcher); canFetch {
			res := pf.GetReport(ctx, id)
			if res.OK {
				r, ok = res.Data, true
			} else {
				s.logger.Debug("remote lookup failed", "id", id, "error", res.Err)
			}
		}
	}
	if !ok {
		s.metrics.savedOps.WithLabelValues("save", "not_found").Inc()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.db.UpsertSaved(ctx, r); err != nil {
		s.metrics.savedOps.WithLabelValues("save", "error").Inc()
		return err
	}
	s.metrics.savedOps.WithLabelValues("save", "ok").Inc()
	s.bus.publish(Event{Kind: ReportSaved, ReportID: id, Report: &r})
	return nil
}

// Unsave removes a report from the saved collection. Unsaving a report that
// is not saved succeeds.
func (s *Synchronizer) Unsave(ctx context.Context, id string) error {
	if err := s.db.RemoveSaved(ctx, id); err != nil {
		s.metrics.savedOps.WithLabelValues("unsave", "error").Inc()
		return err
	}
	s.metrics.savedOps.WithLabelValues("unsave", "ok").Inc()
	s.bus.publish(Event{Kind: ReportUnsaved, ReportID: id})
	return nil
}

// IsSaved reports whether id is saved.
func (s *Synchronizer) IsSaved(ctx context.Context, id string) bool {
	return s.db.IsSaved(ctx, id)
}

// ListSaved returns the saved reports.
func (s *Synchronizer) ListSaved(ctx context.Context) ([]report.Report, error) {
	return s.db.ListSaved(ctx)
}

// Post uploads a new report and then runs a load cycle so the feed includes
// it.
func (s *Synchronizer) Post(ctx context.Context, draft report.Draft) (Outcome, error) {
	poster, ok := s.remote.(Poster)
	if !ok {
		return Outcome{}, errors.New("remote does not accept new reports")
	}
	res := poster.CreateReport(ctx, draft)
	if !res.OK {
		return Outcome{}, res.Err
	}
	s.bus.publish(Event{Kind: ReportPosted})
	return s.Load(ctx), nil
}
