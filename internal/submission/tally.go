package submission

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"awardvote/internal/recordstore"
	"awardvote/internal/submission/lock"
	"awardvote/internal/submission/metrics"
)

// TallyStore reads and overwrites nominee tallies.
type TallyStore interface {
	GetNominee(ctx context.Context, nomineeID string) (recordstore.NomineeRecord, error)
	UpdateNomineeVotes(ctx context.Context, nomineeID string, votes int) error
}

// TallyUpdater applies per-nominee increments with a read-then-write held
// under a per-nominee lock, so concurrent submissions cannot lose updates.
type TallyUpdater struct {
	store       TallyStore
	locker      lock.Locker
	lockTTL     time.Duration
	lockWait    time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// TallyUpdateError describes one nominee whose tally could not be updated.
// It is logged and never fails a submission.
type TallyUpdateError struct {
	NomineeID string
	Increment int
	Err       error
}

func (e *TallyUpdateError) Error() string {
	return fmt.Sprintf("tally update for nominee %s (+%d): %v", e.NomineeID, e.Increment, e.Err)
}

func (e *TallyUpdateError) Unwrap() error {
	return e.Err
}

func NewTallyUpdater(store TallyStore, locker lock.Locker, logger *slog.Logger, m *metrics.Metrics) *TallyUpdater {
	return &TallyUpdater{
		store:       store,
		locker:      locker,
		lockTTL:     10 * time.Second,
		lockWait:    5 * time.Second,
		concurrency: 8,
		logger:      logger,
		metrics:     m,
	}
}

// Apply runs one locked read-then-write per nominee and returns the sorted IDs
// of nominees whose update failed.
func (u *TallyUpdater) Apply(ctx context.Context, increments map[string]int) []string {
	var (
		mu       sync.Mutex
		failures []string
	)
	var g errgroup.Group
	g.SetLimit(u.concurrency)
	for nomineeID, inc := range increments {
		if inc <= 0 {
			continue
		}
		g.Go(func() error {
			if err := u.applyOne(ctx, nomineeID, inc); err != nil {
				u.logger.WarnContext(ctx, "tally update skipped",
					"nominee_id", nomineeID,
					"increment", inc,
					"error", err,
				)
				if u.metrics != nil {
					u.metrics.IncrementTallyFailure()
				}
				mu.Lock()
				failures = append(failures, nomineeID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(failures)
	return failures
}

func (u *TallyUpdater) applyOne(ctx context.Context, nomineeID string, inc int) error {
	waitCtx, cancel := context.WithTimeout(ctx, u.lockWait)
	defer cancel()

	start := time.Now()
	release, err := u.locker.Acquire(waitCtx, "tally:"+nomineeID, u.lockTTL)
	if u.metrics != nil {
		u.metrics.ObserveLockWait(start)
	}
	if err != nil {
		return &TallyUpdateError{NomineeID: nomineeID, Increment: inc, Err: err}
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			u.logger.WarnContext(ctx, "failed to release tally lock", "nominee_id", nomineeID, "error", err)
		}
	}()

	current, err := u.store.GetNominee(ctx, nomineeID)
	if err != nil {
		return &TallyUpdateError{NomineeID: nomineeID, Increment: inc, Err: fmt.Errorf("read: %w", err)}
	}
	if err := u.store.UpdateNomineeVotes(ctx, nomineeID, max(current.Votes, 0)+inc); err != nil {
		return &TallyUpdateError{NomineeID: nomineeID, Increment: inc, Err: fmt.Errorf("write: %w", err)}
	}
	return nil
}
