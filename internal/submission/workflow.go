// Package submission turns a finalized allocation into persisted vote records
// and nominee tally increments.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"awardvote/internal/ballot"
	"awardvote/internal/recordstore"
	"awardvote/internal/submission/ledger"
	"awardvote/internal/submission/metrics"
	id "awardvote/pkg/domain"
	"awardvote/pkg/platform/sentinel"
	"awardvote/pkg/requestcontext"
)

var (
	ErrNothingToSubmit = errors.New("no votes allocated")
	// ErrSubmissionFailed means at least one vote record was not created.
	// Records created before the failure stay; a retry with the same payment
	// reference fills in the rest.
	ErrSubmissionFailed = errors.New("vote submission failed")
	ErrMissingReference = errors.New("payment reference is required")
)

// VoteStore creates vote records. A duplicate vote key reports
// sentinel.ErrConflict.
type VoteStore interface {
	CreateVoteRecord(ctx context.Context, rec recordstore.VoteRecord) error
}

// Ledger claims payment references for submission attempts.
type Ledger interface {
	Begin(ctx context.Context, claim ledger.Claim) (ledger.Entry, error)
	Complete(ctx context.Context, paymentRef string, created int) error
}

// Request is one submission attempt for a session.
type Request struct {
	SessionID  string
	Allocation ballot.Allocation
	// Contact is the voter's raw phone number; only its anonymization token
	// leaves this package.
	Contact    string
	PaymentRef string
}

// Result reports a submission. Replayed is set when the payment reference had
// already completed and nothing was written.
type Result struct {
	SubmissionID  id.SubmissionID `json:"submission_id"`
	Created       int             `json:"created"`
	TallyFailures []string        `json:"tally_failures,omitempty"`
	Replayed      bool            `json:"replayed"`
}

type Workflow struct {
	votes       VoteStore
	ledger      Ledger
	tallies     *TallyUpdater
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Workflow)

func WithConcurrency(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

func New(votes VoteStore, ledger Ledger, tallies *TallyUpdater, opts ...Option) *Workflow {
	w := &Workflow{
		votes:       votes,
		ledger:      ledger,
		tallies:     tallies,
		concurrency: 8,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit creates one vote record per allocated vote, then updates tallies.
// Any failed create fails the submission; tally failures never do.
func (w *Workflow) Submit(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if w.metrics != nil {
		defer w.metrics.ObserveSubmit(start)
	}

	votes := Flatten(req.Allocation)
	if len(votes) == 0 {
		return Result{}, ErrNothingToSubmit
	}
	if req.PaymentRef == "" {
		return Result{}, ErrMissingReference
	}

	entry, err := w.ledger.Begin(ctx, ledger.Claim{
		PaymentRef:  req.PaymentRef,
		SessionID:   req.SessionID,
		Votes:       len(votes),
		Fingerprint: Fingerprint(votes),
	})
	if err != nil {
		w.record("failed")
		if errors.Is(err, ledger.ErrFingerprintMismatch) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: claim payment reference: %w", ErrSubmissionFailed, err)
	}
	if entry.Completed() {
		w.record("replayed")
		w.logger.InfoContext(ctx, "submission already completed",
			"submission_id", entry.SubmissionID,
			"payment_ref", req.PaymentRef,
		)
		return Result{SubmissionID: entry.SubmissionID, Created: entry.Created, Replayed: true}, nil
	}

	token := AnonymizationToken(req.Contact, requestcontext.Now(ctx))
	created, err := w.createAll(ctx, votes, token, req.PaymentRef)
	if err != nil {
		w.record("failed")
		w.logger.ErrorContext(ctx, "vote submission failed",
			"submission_id", entry.SubmissionID,
			"attempt", entry.Attempts,
			"created", created,
			"expected", len(votes),
			"error", err,
		)
		return Result{SubmissionID: entry.SubmissionID, Created: created}, err
	}

	// Marking complete before touching tallies means a crash here can at
	// worst leave tallies short, never counted twice.
	if err := w.ledger.Complete(ctx, req.PaymentRef, created); err != nil {
		w.record("failed")
		return Result{SubmissionID: entry.SubmissionID, Created: created},
			fmt.Errorf("%w: complete ledger entry: %w", ErrSubmissionFailed, err)
	}
	if w.metrics != nil {
		w.metrics.AddVotesRecorded(created)
	}

	failures := w.tallies.Apply(ctx, CountByNominee(votes))
	w.record("completed")
	return Result{SubmissionID: entry.SubmissionID, Created: created, TallyFailures: failures}, nil
}

// createAll issues the creates concurrently. A vote key the store already
// holds counts as created.
func (w *Workflow) createAll(ctx context.Context, votes []Vote, token, paymentRef string) (int, error) {
	var (
		created, failed atomic.Int64
		errOnce         sync.Once
		firstErr        error
	)

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, v := range votes {
		g.Go(func() error {
			err := w.votes.CreateVoteRecord(ctx, recordstore.VoteRecord{
				Nominee:    v.NomineeID,
				Category:   v.CategoryID,
				PhoneHash:  token,
				PaymentRef: paymentRef,
				VoteKey:    VoteKey(paymentRef, v),
			})
			if err == nil || errors.Is(err, sentinel.ErrConflict) {
				created.Add(1)
				return nil
			}
			failed.Add(1)
			errOnce.Do(func() { firstErr = err })
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return int(created.Load()), fmt.Errorf("%w: %d of %d vote records not created: %w",
			ErrSubmissionFailed, n, len(votes), firstErr)
	}
	return int(created.Load()), nil
}

func (w *Workflow) record(outcome string) {
	if w.metrics != nil {
		w.metrics.IncrementSubmission(outcome)
	}
}
