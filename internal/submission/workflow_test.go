package submission_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"awardvote/internal/ballot"
	"awardvote/internal/recordstore"
	"awardvote/internal/recordstore/recordstoretest"
	"awardvote/internal/submission"
	"awardvote/internal/submission/ledger"
	"awardvote/internal/submission/lock"
)

type WorkflowSuite struct {
	suite.Suite
	server   *recordstoretest.Server
	client   *recordstore.Client
	ledger   *ledger.InMemoryStore
	workflow *submission.Workflow
	ctx      context.Context
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.ctx = context.Background()
	s.server = recordstoretest.New()
	s.server.AddCategory("cat", "Artist of the Year")
	s.server.AddNominee("x", "cat", "Ama", 10)
	s.server.AddNominee("y", "cat", "Kofi", 4)
	s.client = recordstore.New(s.server.URL, recordstoretest.Collections, time.Second)
	s.ledger = ledger.NewInMemoryStore()
	s.workflow = s.newWorkflow()
}

func (s *WorkflowSuite) TearDownTest() {
	s.server.Close()
}

func (s *WorkflowSuite) newWorkflow() *submission.Workflow {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tallies := submission.NewTallyUpdater(s.client, lock.NewKeyedMutex(), logger, nil)
	return submission.New(s.client, s.ledger, tallies,
		submission.WithConcurrency(4),
		submission.WithLogger(logger))
}

func (s *WorkflowSuite) request(ref string, alloc ballot.Allocation) submission.Request {
	return submission.Request{SessionID: "s-" + ref, Allocation: alloc, Contact: "0241234567", PaymentRef: ref}
}

// Buy 5, three to X and two to Y, submit.
func (s *WorkflowSuite) TestFiveVotesSplitThreeTwo() {
	res, err := s.workflow.Submit(s.ctx, s.request("ref-a", ballot.Allocation{"cat": {"x", "y", "x", "y", "x"}}))
	s.Require().NoError(err)
	s.Equal(5, res.Created)
	s.Empty(res.TallyFailures)
	s.False(res.Replayed)

	records := s.server.VoteRecords()
	s.Len(records, 5)
	keys := make(map[string]struct{})
	for _, r := range records {
		s.Equal("ref-a", r.PaymentRef)
		s.Len(r.PhoneHash, 16)
		keys[r.VoteKey] = struct{}{}
	}
	s.Len(keys, 5, "every vote has its own key")
	s.Equal(13, s.server.Tally("x"))
	s.Equal(6, s.server.Tally("y"))
}

func (s *WorkflowSuite) TestEmptyAllocationIsRejectedWithoutStoreCalls() {
	_, err := s.workflow.Submit(s.ctx, s.request("ref-b", ballot.Allocation{}))
	s.ErrorIs(err, submission.ErrNothingToSubmit)
	s.Zero(s.server.Creates())
}

func (s *WorkflowSuite) TestFailedCreateFailsSubmissionAndSkipsTally() {
	s.server.FailCreatesFor("y")

	res, err := s.workflow.Submit(s.ctx, s.request("ref-c", ballot.Allocation{"cat": {"x", "y"}}))
	s.ErrorIs(err, submission.ErrSubmissionFailed)
	s.Equal(1, res.Created)
	s.Equal(10, s.server.Tally("x"), "no tally update after a failed create phase")

	s.Run("retry creates only what is missing", func() {
		s.server.FailCreatesFor("")
		res, err := s.workflow.Submit(s.ctx, s.request("ref-c", ballot.Allocation{"cat": {"x", "y"}}))
		s.Require().NoError(err)
		s.Equal(2, res.Created)
		s.Len(s.server.VoteRecords(), 2)
		s.Equal(11, s.server.Tally("x"))
		s.Equal(5, s.server.Tally("y"))
	})

	s.Run("submitting a completed reference again is a replay", func() {
		res, err := s.workflow.Submit(s.ctx, s.request("ref-c", ballot.Allocation{"cat": {"y", "x"}}))
		s.Require().NoError(err)
		s.True(res.Replayed)
		s.Equal(2, res.Created)
		s.Len(s.server.VoteRecords(), 2)
		s.Equal(11, s.server.Tally("x"))
	})

	s.Run("a different allocation cannot reuse the reference", func() {
		_, err := s.workflow.Submit(s.ctx, s.request("ref-c", ballot.Allocation{"cat": {"x", "x"}}))
		s.ErrorIs(err, ledger.ErrFingerprintMismatch)
	})
}

func (s *WorkflowSuite) TestTallyFailureDoesNotFailSubmission() {
	s.server.FailUpdatesFor("y")

	res, err := s.workflow.Submit(s.ctx, s.request("ref-d", ballot.Allocation{"cat": {"x", "y"}}))
	s.Require().NoError(err)
	s.Equal(2, res.Created)
	s.Equal([]string{"y"}, res.TallyFailures)
	s.Equal(11, s.server.Tally("x"))
	s.Equal(4, s.server.Tally("y"))
}

func (s *WorkflowSuite) TestConcurrentSubmissionsDoNotLoseUpdates() {
	const sessions = 20
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref := "ref-concurrent-" + string(rune('a'+i))
			_, err := s.workflow.Submit(s.ctx, s.request(ref, ballot.Allocation{"cat": {"x", "x"}}))
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(10+2*sessions, s.server.Tally("x"))
	s.Len(s.server.VoteRecords(), 2*sessions)
}
