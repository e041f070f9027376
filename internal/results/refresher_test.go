package results

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awardvote/internal/catalog"
)

type stubLoader struct {
	mu    sync.Mutex
	cat   *catalog.Catalog
	err   error
	calls atomic.Int32
	// gate, when set, blocks each load until a value arrives.
	gate chan struct{}
}

func (l *stubLoader) Load(ctx context.Context, sortByVotes bool) (*catalog.Catalog, error) {
	l.calls.Add(1)
	l.mu.Lock()
	cat, err, gate := l.cat, l.err, l.gate
	l.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return cat, err
}

func (l *stubLoader) set(cat *catalog.Catalog, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cat, l.err = cat, err
}

type memCache struct {
	mu   sync.Mutex
	snap *Snapshot
	ttl  time.Duration
}

func (c *memCache) Save(_ context.Context, snap Snapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap, c.ttl = &snap, ttl
	return nil
}

func (c *memCache) Load(context.Context) (Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return Snapshot{}, false, nil
	}
	return *c.snap, true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog(a, b int) *catalog.Catalog {
	return catalog.New([]catalog.Category{{ID: "c1", Name: "Best", Nominees: []catalog.Nominee{
		{ID: "a", Votes: a},
		{ID: "b", Votes: b},
	}}})
}

func TestRefreshIsIdempotent(t *testing.T) {
	loader := &stubLoader{cat: testCatalog(3, 1)}
	r := NewRefresher(loader, time.Minute, WithLogger(discardLogger()))

	first, err := r.Refresh(context.Background())
	require.NoError(t, err)
	second, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Categories, second.Categories)
	assert.Equal(t, first.TotalVotes, second.TotalVotes)
	assert.Greater(t, second.Sequence, first.Sequence)
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	loader := &stubLoader{cat: testCatalog(3, 1)}
	r := NewRefresher(loader, time.Minute, WithLogger(discardLogger()))

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	loader.set(nil, errors.New("record store down"))
	_, err = r.Refresh(context.Background())
	require.Error(t, err)
	require.Error(t, r.LastError())

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, snap.TotalVotes)

	loader.set(testCatalog(5, 5), nil)
	snap, err = r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, snap.TotalVotes)
	assert.NoError(t, r.LastError())
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	r := NewRefresher(&stubLoader{}, time.Minute, WithLogger(discardLogger()))

	newer := Aggregate(testCatalog(9, 9), time.Now())
	newer.Sequence = 2
	older := Aggregate(testCatalog(1, 1), time.Now())
	older.Sequence = 1

	assert.True(t, r.apply(newer))
	assert.False(t, r.apply(older))

	cur, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cur.Sequence)
	assert.Equal(t, 18, cur.TotalVotes)
}

func TestConcurrentRefreshesShareOneFetch(t *testing.T) {
	gate := make(chan struct{})
	loader := &stubLoader{cat: testCatalog(1, 1), gate: gate}
	r := NewRefresher(loader, time.Minute, WithLogger(discardLogger()))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Let the callers pile onto the in-flight fetch before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, loader.calls.Load(), int32(5))
	cur, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, cur.TotalVotes)
}

func TestCancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	gate := make(chan struct{})
	loader := &stubLoader{cat: testCatalog(4, 1), gate: gate}
	r := NewRefresher(loader, time.Minute, WithLogger(discardLogger()))

	reqCtx, cancelReq := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Refresh(reqCtx)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		snap Snapshot
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		snap, err := r.Refresh(context.Background())
		second <- outcome{snap, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelReq()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 5, got.snap.TotalVotes)
	assert.NoError(t, r.LastError())
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestSnapshotFallsBackToSharedCache(t *testing.T) {
	cache := &memCache{}
	shared := Aggregate(testCatalog(7, 0), time.Now())
	require.NoError(t, cache.Save(context.Background(), shared, time.Minute))

	loader := &stubLoader{err: errors.New("should not be called")}
	r := NewRefresher(loader, time.Minute, WithCache(cache), WithLogger(discardLogger()))

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, snap.TotalVotes)
	assert.Zero(t, loader.calls.Load())
}

func TestRefreshSharesSnapshot(t *testing.T) {
	cache := &memCache{}
	r := NewRefresher(&stubLoader{cat: testCatalog(2, 2)}, 30*time.Second, WithCache(cache), WithLogger(discardLogger()))

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	got, ok, err := cache.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, got.TotalVotes)
	assert.Equal(t, time.Minute, cache.ttl)
}

func TestStartAndStop(t *testing.T) {
	loader := &stubLoader{cat: testCatalog(1, 0)}
	r := NewRefresher(loader, 10*time.Millisecond, WithLogger(discardLogger()))

	r.Start(context.Background())
	require.Eventually(t, func() bool { return loader.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	r.Stop()

	calls := loader.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, loader.calls.Load())
	r.Stop()
}

func TestHandler(t *testing.T) {
	loader := &stubLoader{cat: testCatalog(50, 50)}
	refreshedAt := time.Now().Add(-2 * time.Minute)
	r := NewRefresher(loader, time.Minute, WithLogger(discardLogger()), WithClock(func() time.Time { return refreshedAt }))

	router := chi.NewRouter()
	NewHandler(r, discardLogger()).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 100, view.TotalVotes)
	assert.Equal(t, "2 minutes ago", view.RefreshedAgo)
	assert.Empty(t, view.LastError)

	loader.set(nil, errors.New("down"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/results/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 100, view.TotalVotes)
	assert.NotEmpty(t, view.LastError)
}

func TestHandlerUnavailableBeforeFirstLoad(t *testing.T) {
	r := NewRefresher(&stubLoader{err: errors.New("down")}, time.Minute, WithLogger(discardLogger()))
	router := chi.NewRouter()
	NewHandler(r, discardLogger()).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerFailedRefreshWithoutSnapshotFetchesOnce(t *testing.T) {
	loader := &stubLoader{err: errors.New("down")}
	r := NewRefresher(loader, time.Minute, WithLogger(discardLogger()))
	router := chi.NewRouter()
	NewHandler(r, discardLogger()).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/results/refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int32(1), loader.calls.Load())
}
