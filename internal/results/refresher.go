package results

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"awardvote/internal/catalog"
	"awardvote/internal/results/metrics"
)

// ErrNoSnapshot is returned before the first successful refresh.
var ErrNoSnapshot = errors.New("results not loaded yet")

const defaultFetchTimeout = 30 * time.Second

// Loader fetches the catalog with live tallies.
type Loader interface {
	Load(ctx context.Context, sortByVotes bool) (*catalog.Catalog, error)
}

// SnapshotCache shares snapshots between gateway replicas.
type SnapshotCache interface {
	Save(ctx context.Context, snap Snapshot, ttl time.Duration) error
	Load(ctx context.Context) (Snapshot, bool, error)
}

// Refresher keeps the current snapshot up to date on a fixed interval and on
// demand. Every fetch takes a sequence number when it starts; a fetch that
// lands after a newer one has already been applied is discarded.
type Refresher struct {
	loader   Loader
	cache    SnapshotCache
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	seq   atomic.Uint64
	group singleflight.Group

	mu      sync.RWMutex
	current *Snapshot
	lastErr error

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

type RefresherOption func(*Refresher)

func WithCache(cache SnapshotCache) RefresherOption {
	return func(r *Refresher) {
		r.cache = cache
	}
}

func WithLogger(logger *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) RefresherOption {
	return func(r *Refresher) {
		r.metrics = m
	}
}

// WithFetchTimeout bounds one shared fetch. The fetch is not tied to any
// single caller's context.
func WithFetchTimeout(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock is used by tests to pin RefreshedAt.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

func NewRefresher(loader Loader, interval time.Duration, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		loader:   loader,
		interval: interval,
		timeout:  defaultFetchTimeout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start loads once and then refreshes every interval until Stop is called or
// ctx ends.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "initial results refresh failed", "error", err)
		}
		if r.interval <= 0 {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
					r.logger.WarnContext(ctx, "results refresh failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the refresh loop. A fetch already in flight finishes within the
// fetch timeout.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		<-r.done
	})
}

// Refresh fetches and aggregates now. Concurrent callers share one fetch; a
// caller that gives up returns its own context error and leaves the fetch
// running for the others.
func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	ch := r.group.DoChan("refresh", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.fetch(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

func (r *Refresher) fetch(ctx context.Context) (Snapshot, error) {
	seq := r.seq.Add(1)
	start := time.Now()
	cat, err := r.loader.Load(ctx, true)
	if r.metrics != nil {
		r.metrics.ObserveRefresh(start)
	}
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		r.record("failed")
		return Snapshot{}, err
	}

	snap := Aggregate(cat, r.now())
	snap.Sequence = seq
	if !r.apply(snap) {
		r.record("stale")
		return r.Current()
	}
	r.record("applied")
	if r.metrics != nil {
		r.metrics.SetTotalVotes(snap.TotalVotes)
	}
	if r.cache != nil {
		if err := r.cache.Save(ctx, snap, 2*r.interval); err != nil {
			r.logger.WarnContext(ctx, "failed to share results snapshot", "error", err)
		}
	}
	return snap, nil
}

// Apply installs snap unless a newer fetch has already landed.
func (r *Refresher) apply(snap Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.Sequence >= snap.Sequence {
		return false
	}
	r.current = &snap
	r.lastErr = nil
	return true
}

// Current returns the last applied snapshot without fetching.
func (r *Refresher) Current() (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	return *r.current, nil
}

// Snapshot returns the current standings. Before the first local refresh it
// falls back to a snapshot shared by another replica, then to a fetch.
func (r *Refresher) Snapshot(ctx context.Context) (Snapshot, error) {
	if snap, err := r.Current(); err == nil {
		return snap, nil
	}
	if r.cache != nil {
		snap, ok, err := r.cache.Load(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to read shared results snapshot", "error", err)
		} else if ok {
			return snap, nil
		}
	}
	return r.Refresh(ctx)
}

// LastError is the error from the most recent failed refresh, cleared by the
// next successful one.
func (r *Refresher) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *Refresher) record(outcome string) {
	if r.metrics != nil {
		r.metrics.IncrementRefresh(outcome)
	}
}
