package feed

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stevemurr/story-sync/report"
)

// EventKind names something the synchronizer did.
type EventKind string

const (
	FeedRefreshed EventKind = "feed_refreshed"
	FeedDegraded  EventKind = "feed_degraded"
	ReportSaved   EventKind = "report_saved"
	ReportUnsaved EventKind = "report_unsaved"
	ReportPosted  EventKind = "report_posted"
)

// Event is delivered to subscribers after the state change it describes.
type Event struct {
	Kind       EventKind
	At         time.Time
	Generation uint64
	Source     Source
	// Count is the number of reports in a feed event.
	Count int
	// ReportID is set for save and unsave events.
	ReportID string
	// Report is set when the full record is known.
	Report *report.Report
}

// Bus fans events out to subscribers. Delivery is synchronous and in
// subscription order.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *Bus) publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// LogNotifier returns a subscriber that writes every event to logger.
func LogNotifier(logger *slog.Logger) func(Event) {
	return func(e Event) {
		attrs := []any{"event", string(e.Kind), "generation", e.Generation}
		if e.ReportID != "" {
			attrs = append(attrs, "id", e.ReportID)
		}
		if e.Kind == FeedRefreshed || e.Kind == FeedDegraded {
			attrs = append(attrs, "source", string(e.Source), "count", e.Count)
		}
		logger.Info("story event", attrs...)
	}
}
