package feed_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/story-sync/feed"
	"github.com/stevemurr/story-sync/gateway"
	"github.com/stevemurr/story-sync/report"
	"github.com/stevemurr/story-sync/reportdb"
	"github.com/stevemurr/story-sync/store"
)

type fakeRemote struct {
	mu      sync.Mutex
	reports []report.Report
	byID    map[string]report.Report
	down    bool
	lists   int
	posted  []report.Draft
	// onPost is applied to reports after a successful post.
	onPost func([]report.Report) []report.Report
}

func (f *fakeRemote) ListReports(context.Context, gateway.ListOptions) gateway.Result[[]report.Report] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.down {
		return gateway.Result[[]report.Report]{
			Message: "offline",
			Err:     fmt.Errorf("%w: offline", gateway.ErrNetwork),
		}
	}
	out := make([]report.Report, len(f.reports))
	copy(out, f.reports)
	return gateway.Result[[]report.Report]{OK: true, Message: "Stories fetched successfully", Data: out}
}

func (f *fakeRemote) GetReport(_ context.Context, id string) gateway.Result[report.Report] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byID[id]; ok && !f.down {
		return gateway.Result[report.Report]{OK: true, Data: r}
	}
	return gateway.Result[report.Report]{Message: "not found", Err: gateway.ErrServerRejected}
}

func (f *fakeRemote) CreateReport(_ context.Context, d report.Draft) gateway.Result[struct{}] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return gateway.Result[struct{}]{Message: "offline", Err: gateway.ErrNetwork}
	}
	f.posted = append(f.posted, d)
	if f.onPost != nil {
		f.reports = f.onPost(f.reports)
	}
	return gateway.Result[struct{}]{OK: true, Message: "Story created successfully"}
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// listOnly hides everything but ListReports.
type listOnly struct{ r *fakeRemote }

func (l listOnly) ListReports(ctx context.Context, o gateway.ListOptions) gateway.Result[[]report.Report] {
	return l.r.ListReports(ctx, o)
}

// flakyStore fails writes for the listed keys.
type flakyStore struct {
	store.Store
	fail map[string]bool
}

func (f flakyStore) Put(ctx context.Context, collection, key string, data map[string]any) error {
	if f.fail[key] {
		return errors.New("quota exceeded")
	}
	return f.Store.Put(ctx, collection, key, data)
}

// deadStore refuses to open.
type deadStore struct{ store.Store }

func (deadStore) Open(context.Context, int, ...string) error { return store.ErrUnavailable }

func story(id, created string) report.Report {
	return report.Report{
		ID:          id,
		Name:        "Budi",
		Description: "story " + id,
		PhotoURL:    "https://example.test/" + id + ".jpg",
		CreatedAt:   created,
	}
}

func newSync(t *testing.T, s store.Store, remote feed.Remote) (*feed.Synchronizer, *reportdb.DB) {
	t.Helper()
	db := reportdb.New(s, nil)
	t.Cleanup(func() { db.Close() })
	return feed.New(db, remote, feed.Options{HydrationConcurrency: 2}), db
}

func ids(reports []report.Report) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.ID)
	}
	return out
}

func TestLoadRemoteHydratesCache(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{
		story("a", "2024-01-02T00:00:00Z"),
		story("b", "2024-01-01T00:00:00Z"),
	}}
	s, db := newSync(t, store.NewMemoryStore(), remote)

	out := s.Load(ctx)
	assert.Equal(t, feed.Ready, out.Status)
	assert.Equal(t, feed.SourceRemote, out.Source)
	assert.Equal(t, []string{"a", "b"}, ids(out.Reports))
	assert.Zero(t, out.HydrationFailures)
	assert.NoError(t, out.RemoteErr)

	cached, err := db.ListReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(cached))
}

func TestLoadFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{
		story("old", "2024-01-01T00:00:00Z"),
		story("new", "2024-03-01T00:00:00Z"),
	}}
	s, _ := newSync(t, store.NewMemoryStore(), remote)
	require.Equal(t, feed.Ready, s.Load(ctx).Status)

	remote.setDown(true)
	out := s.Load(ctx)
	assert.Equal(t, feed.Ready, out.Status)
	assert.Equal(t, feed.SourceCache, out.Source)
	assert.Equal(t, []string{"new", "old"}, ids(out.Reports))
	assert.ErrorIs(t, out.RemoteErr, gateway.ErrNetwork)
}

func TestLoadDegradedWhenCacheEmpty(t *testing.T) {
	remote := &fakeRemote{down: true}
	s, _ := newSync(t, store.NewMemoryStore(), remote)

	out := s.Load(context.Background())
	assert.Equal(t, feed.Degraded, out.Status)
	assert.Equal(t, feed.SourceNone, out.Source)
	assert.NotNil(t, out.Reports)
	assert.Empty(t, out.Reports)
	assert.NoError(t, out.CacheErr)
}

func TestLoadDegradedWhenStorageUnavailable(t *testing.T) {
	remote := &fakeRemote{down: true}
	s, _ := newSync(t, deadStore{store.NewMemoryStore()}, remote)

	out := s.Load(context.Background())
	assert.Equal(t, feed.Degraded, out.Status)
	assert.ErrorIs(t, out.CacheErr, reportdb.ErrStorageUnavailable)
}

func TestLoadServesRemoteWhenStorageUnavailable(t *testing.T) {
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	s, _ := newSync(t, deadStore{store.NewMemoryStore()}, remote)

	out := s.Load(context.Background())
	assert.Equal(t, feed.Ready, out.Status)
	assert.Equal(t, feed.SourceRemote, out.Source)
	assert.Equal(t, 1, out.HydrationFailures)
}

func TestLoadPartialHydration(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{
		story("a", "2024-01-03T00:00:00Z"),
		story("b", "2024-01-02T00:00:00Z"),
		story("c", "2024-01-01T00:00:00Z"),
	}}
	s, db := newSync(t, flakyStore{Store: store.NewMemoryStore(), fail: map[string]bool{"b": true}}, remote)

	out := s.Load(ctx)
	assert.Equal(t, feed.Ready, out.Status)
	assert.Len(t, out.Reports, 3)
	assert.Equal(t, 1, out.HydrationFailures)

	cached, err := db.ListReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(cached))
}

func TestUnusualCoordinatesStayAvailableOffline(t *testing.T) {
	ctx := context.Background()
	r := story("far", "2024-01-01T00:00:00Z")
	r.Lat = report.Float(95)
	r.Lon = report.Float(200)
	remote := &fakeRemote{reports: []report.Report{r}}
	s, _ := newSync(t, store.NewMemoryStore(), remote)

	out := s.Load(ctx)
	assert.Equal(t, feed.Ready, out.Status)
	assert.Zero(t, out.HydrationFailures)

	require.NoError(t, s.Save(ctx, "far"))
	assert.True(t, s.IsSaved(ctx, "far"))

	remote.setDown(true)
	out = s.Load(ctx)
	assert.Equal(t, feed.Ready, out.Status)
	assert.Equal(t, feed.SourceCache, out.Source)
	assert.Equal(t, []string{"far"}, ids(out.Reports))
}

func TestLoadEmptyRemoteIsReady(t *testing.T) {
	s, _ := newSync(t, store.NewMemoryStore(), &fakeRemote{})

	out := s.Load(context.Background())
	assert.Equal(t, feed.Ready, out.Status)
	assert.Equal(t, feed.SourceRemote, out.Source)
	assert.Empty(t, out.Reports)
}

func TestCacheKeepsReportsMissingFromRefresh(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	s, db := newSync(t, store.NewMemoryStore(), remote)
	s.Load(ctx)

	remote.reports = []report.Report{story("b", "2024-02-01T00:00:00Z")}
	s.Load(ctx)

	cached, err := db.ListReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(cached))
}

func TestGenerations(t *testing.T) {
	ctx := context.Background()
	s, _ := newSync(t, store.NewMemoryStore(), &fakeRemote{})

	first := s.Load(ctx)
	assert.True(t, s.IsCurrent(first.Generation))

	second := s.Load(ctx)
	assert.Greater(t, second.Generation, first.Generation)
	assert.False(t, s.IsCurrent(first.Generation))
	assert.True(t, s.IsCurrent(second.Generation))
}

func TestConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{
		story("a", "2024-01-01T00:00:00Z"),
		story("b", "2024-01-02T00:00:00Z"),
	}}
	s, db := newSync(t, store.NewMemoryStore(), remote)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, feed.Ready, s.Load(ctx).Status)
		}()
	}
	wg.Wait()

	cached, err := db.ListReports(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestSaveFromCache(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	s, _ := newSync(t, store.NewMemoryStore(), remote)
	s.Load(ctx)
	remote.setDown(true)

	assert.False(t, s.IsSaved(ctx, "a"))
	require.NoError(t, s.Save(ctx, "a"))
	assert.True(t, s.IsSaved(ctx, "a"))

	saved, err := s.ListSaved(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(saved))
}

func TestSaveFetchesUncachedReport(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{byID: map[string]report.Report{"x": story("x", "2024-01-01T00:00:00Z")}}
	s, _ := newSync(t, store.NewMemoryStore(), remote)

	require.NoError(t, s.Save(ctx, "x"))
	assert.True(t, s.IsSaved(ctx, "x"))
}

func TestSaveNotFound(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	s, _ := newSync(t, store.NewMemoryStore(), remote)

	assert.ErrorIs(t, s.Save(ctx, "ghost"), feed.ErrNotFound)

	lo, _ := newSync(t, store.NewMemoryStore(), listOnly{remote})
	assert.ErrorIs(t, lo.Save(ctx, "ghost"), feed.ErrNotFound)
	assert.False(t, lo.IsSaved(ctx, "ghost"))
}

func TestSavedCopyIsFrozen(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	s, db := newSync(t, store.NewMemoryStore(), remote)
	s.Load(ctx)
	require.NoError(t, s.Save(ctx, "a"))

	edited := story("a", "2024-01-01T00:00:00Z")
	edited.Description = "edited upstream"
	remote.reports = []report.Report{edited}
	s.Load(ctx)

	saved, ok, err := db.GetSaved(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "story a", saved.Description)

	cached, _, err := db.GetReport(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "edited upstream", cached.Description)
}

func TestSavedSurvivesFeedChanges(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	s, _ := newSync(t, store.NewMemoryStore(), remote)
	s.Load(ctx)
	require.NoError(t, s.Save(ctx, "a"))

	remote.reports = nil
	s.Load(ctx)
	assert.True(t, s.IsSaved(ctx, "a"))
}

func TestUnsaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	s, _ := newSync(t, store.NewMemoryStore(), remote)
	s.Load(ctx)
	require.NoError(t, s.Save(ctx, "a"))

	require.NoError(t, s.Unsave(ctx, "a"))
	assert.False(t, s.IsSaved(ctx, "a"))
	require.NoError(t, s.Unsave(ctx, "a"))
	require.NoError(t, s.Unsave(ctx, "never-saved"))
}

func TestIsSavedWithoutStorage(t *testing.T) {
	s, _ := newSync(t, deadStore{store.NewMemoryStore()}, &fakeRemote{})
	assert.False(t, s.IsSaved(context.Background(), "a"))
}

func TestPostReloadsFeed(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		onPost: func(rs []report.Report) []report.Report {
			return append(rs, story("fresh", "2024-06-01T00:00:00Z"))
		},
	}
	s, _ := newSync(t, store.NewMemoryStore(), remote)

	out, err := s.Post(ctx, report.Draft{Description: "hello", Photo: bytes.NewReader([]byte("jpg"))})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids(out.Reports))
	assert.Len(t, remote.posted, 1)
	assert.Equal(t, 1, remote.lists)
}

func TestPostFailureSkipsReload(t *testing.T) {
	remote := &fakeRemote{down: true}
	s, _ := newSync(t, store.NewMemoryStore(), remote)

	_, err := s.Post(context.Background(), report.Draft{Description: "hello", Photo: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, gateway.ErrNetwork)
	assert.Zero(t, remote.lists)

	lo, _ := newSync(t, store.NewMemoryStore(), listOnly{remote})
	_, err = lo.Post(context.Background(), report.Draft{Description: "hello", Photo: bytes.NewReader(nil)})
	assert.Error(t, err)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	s, _ := newSync(t, store.NewMemoryStore(), remote)

	var got []feed.Event
	unsubscribe := s.Subscribe(func(e feed.Event) { got = append(got, e) })

	out := s.Load(ctx)
	require.NoError(t, s.Save(ctx, "a"))
	require.NoError(t, s.Unsave(ctx, "a"))

	remote.setDown(true)
	remote.reports = nil
	empty, _ := newSync(t, store.NewMemoryStore(), remote)
	empty.Subscribe(func(e feed.Event) { got = append(got, e) })
	empty.Load(ctx)

	require.Len(t, got, 4)
	assert.Equal(t, feed.FeedRefreshed, got[0].Kind)
	assert.Equal(t, out.Generation, got[0].Generation)
	assert.Equal(t, feed.SourceRemote, got[0].Source)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, feed.ReportSaved, got[1].Kind)
	assert.Equal(t, "a", got[1].ReportID)
	require.NotNil(t, got[1].Report)
	assert.Equal(t, "story a", got[1].Report.Description)
	assert.Equal(t, feed.ReportUnsaved, got[2].Kind)
	assert.Equal(t, feed.FeedDegraded, got[3].Kind)
	for _, e := range got {
		assert.False(t, e.At.IsZero())
	}

	unsubscribe()
	s.Load(ctx)
	assert.Len(t, got, 4)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	db := reportdb.New(flakyStore{Store: store.NewMemoryStore(), fail: map[string]bool{"a": true}}, nil)
	s := feed.New(db, remote, feed.Options{Registerer: reg})
	// A second synchronizer on the same registry shares the collectors.
	feed.New(db, remote, feed.Options{Registerer: reg})

	s.Load(ctx)
	remote.setDown(true)
	s.Load(ctx)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			values[key] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, values["storysync_feed_loads_total,source=remote,status=ready"])
	assert.Equal(t, 1.0, values["storysync_feed_loads_total,source=none,status=degraded"])
	assert.Equal(t, 1.0, values["storysync_hydration_failures_total"])
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	remote := &fakeRemote{reports: []report.Report{story("a", "2024-01-01T00:00:00Z")}}
	s, _ := newSync(t, store.NewMemoryStore(), remote)
	s.Subscribe(feed.LogNotifier(logger))

	s.Load(context.Background())
	require.NoError(t, s.Save(context.Background(), "a"))

	out := buf.String()
	assert.Contains(t, out, "event=feed_refreshed")
	assert.Contains(t, out, "source=remote count=1")
	assert.Contains(t, out, "event=report_saved")
	assert.Contains(t, out, "id=a")
}
