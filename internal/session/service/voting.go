package service

import (
	"context"
	"errors"

	"awardvote/internal/audit"
	"awardvote/internal/ballot"
	"awardvote/internal/catalog"
	"awardvote/internal/session/models"
	"awardvote/internal/submission"
	"awardvote/internal/submission/ledger"
	id "awardvote/pkg/domain"
	dErrors "awardvote/pkg/domain-errors"
	"awardvote/pkg/requestcontext"
)

// Catalog returns categories and nominees for a session on the voting step.
// reload bypasses the cached copy.
func (s *Service) Catalog(ctx context.Context, sessionID id.SessionID, reload bool) (*catalog.Catalog, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != models.StepVoting {
		return nil, dErrors.New(dErrors.CodeInvalidState, "nominees are available once payment succeeds")
	}
	return s.loadCatalog(ctx, reload)
}

func (s *Service) loadCatalog(ctx context.Context, reload bool) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if reload {
		cat, err = s.catalog.Reload(ctx)
	} else {
		cat, err = s.catalog.Get(ctx)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "catalog unavailable", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeCatalogUnavailable, "Failed to load nominees. Please try again.")
	}
	return cat, nil
}

// Allocate spends one vote on a nominee.
func (s *Service) Allocate(ctx context.Context, sessionID id.SessionID, categoryID, nomineeID string) (ballot.Result, *models.Session, error) {
	return s.changeAllocation(ctx, "allocate", sessionID, categoryID, nomineeID, (*ballot.Ballot).Allocate)
}

// Deallocate returns one vote from a nominee to the budget.
func (s *Service) Deallocate(ctx context.Context, sessionID id.SessionID, categoryID, nomineeID string) (ballot.Result, *models.Session, error) {
	return s.changeAllocation(ctx, "deallocate", sessionID, categoryID, nomineeID, (*ballot.Ballot).Deallocate)
}

func (s *Service) changeAllocation(
	ctx context.Context,
	action string,
	sessionID id.SessionID,
	categoryID, nomineeID string,
	apply func(*ballot.Ballot, string, string) (ballot.Result, error),
) (ballot.Result, *models.Session, error) {
	if categoryID == "" || nomineeID == "" {
		s.recordAllocation(action, "invalid")
		return ballot.Result{}, nil, dErrors.New(dErrors.CodeValidation, "category_id and nominee_id are required")
	}

	cat, err := s.loadCatalog(ctx, false)
	if err != nil {
		s.recordAllocation(action, "catalog_unavailable")
		return ballot.Result{}, nil, err
	}
	if !cat.Contains(categoryID, nomineeID) {
		s.recordAllocation(action, "invalid")
		return ballot.Result{}, nil, dErrors.New(dErrors.CodeValidation, "nominee does not belong to category")
	}

	now := requestcontext.Now(ctx)
	var result ballot.Result
	session, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if sess.Step != models.StepVoting || sess.Ballot == nil {
			return dErrors.New(dErrors.CodeInvalidState, "votes can only be allocated on the voting step")
		}
		if sess.Busy(now, s.staleAfter) {
			return dErrors.New(dErrors.CodeConflict, "a submission is in progress")
		}
		if sess.AllocationFrozen() {
			return dErrors.New(dErrors.CodeInvalidState, "allocation is locked after a failed submission; retry or reset")
		}
		r, err := apply(sess.Ballot, categoryID, nomineeID)
		if err != nil {
			return translateBallotError(err)
		}
		result = r
		return nil
	})
	if err != nil {
		s.recordAllocation(action, string(dErrors.CodeOf(err)))
		return ballot.Result{}, nil, translateStoreError(err, "failed to update allocation")
	}
	s.recordAllocation(action, "ok")
	return result, session, nil
}

func translateBallotError(err error) error {
	switch {
	case errors.Is(err, ballot.ErrBudgetExhausted):
		return dErrors.Wrap(err, dErrors.CodeConflict, "No votes remaining")
	case errors.Is(err, ballot.ErrNotAllocated):
		return dErrors.Wrap(err, dErrors.CodeConflict, "No votes allocated to this nominee")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update allocation")
	}
}

func (s *Service) recordAllocation(action, result string) {
	if s.metrics != nil {
		s.metrics.IncrementAllocation(action, result)
	}
}

// Submit records the allocation against the payment reference. A failed
// attempt freezes the allocation; retrying submits the same votes and never
// duplicates those already stored.
func (s *Service) Submit(ctx context.Context, sessionID id.SessionID) (submission.Result, *models.Session, error) {
	now := requestcontext.Now(ctx)
	var req submission.Request
	_, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if sess.Step != models.StepVoting || sess.Ballot == nil {
			return dErrors.New(dErrors.CodeInvalidState, "votes can only be submitted on the voting step")
		}
		if sess.Busy(now, s.staleAfter) {
			return dErrors.New(dErrors.CodeConflict, "a submission is already in progress")
		}
		if sess.Ballot.TotalAllocated() == 0 {
			return dErrors.New(dErrors.CodeValidation, "Please allocate at least one vote")
		}
		req = submission.Request{
			SessionID:  sess.ID.String(),
			Allocation: sess.Ballot.Allocation(),
			Contact:    sess.Phone,
			PaymentRef: sess.PaymentRef,
		}
		sess.LastError = nil
		sess.Claim(models.OpSubmit, now)
		return nil
	})
	if err != nil {
		return submission.Result{}, nil, translateStoreError(err, "failed to start submission")
	}

	result, submitErr := s.submitter.Submit(ctx, req)
	persistCtx := context.WithoutCancel(ctx)
	if submitErr != nil {
		return s.submitFailed(persistCtx, sessionID, req, submitErr)
	}

	session, err := s.store.Update(persistCtx, sessionID, func(sess *models.Session) error {
		sess.ClearClaim()
		return sess.Complete(result.Created)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "votes recorded but session could not advance",
			"session_id", sessionID,
			"payment_ref", req.PaymentRef,
			"submission_id", result.SubmissionID,
			"error", err,
		)
		return submission.Result{}, nil, translateStoreError(err, "failed to complete session")
	}

	eventType := audit.EventVotesSubmitted
	if result.Replayed {
		eventType = audit.EventSubmissionReplay
	}
	s.emit(ctx, audit.Event{
		Type:       eventType,
		SessionID:  sessionID.String(),
		PaymentRef: req.PaymentRef,
		Votes:      result.Created,
	})
	for _, nomineeID := range result.TallyFailures {
		s.emit(ctx, audit.Event{
			Type:       audit.EventTallyUpdateFailed,
			SessionID:  sessionID.String(),
			PaymentRef: req.PaymentRef,
			NomineeID:  nomineeID,
		})
	}
	return result, session, nil
}

func (s *Service) submitFailed(ctx context.Context, sessionID id.SessionID, req submission.Request, submitErr error) (submission.Result, *models.Session, error) {
	var domainErr *dErrors.Error
	switch {
	case errors.Is(submitErr, ledger.ErrFingerprintMismatch):
		domainErr = dErrors.Wrap(submitErr, dErrors.CodeConflict, "This payment was already used for a different set of votes")
	case errors.Is(submitErr, submission.ErrNothingToSubmit):
		domainErr = dErrors.Wrap(submitErr, dErrors.CodeValidation, "Please allocate at least one vote")
	case errors.Is(submitErr, submission.ErrMissingReference):
		domainErr = dErrors.Wrap(submitErr, dErrors.CodeInvalidState, "session has no payment reference")
	default:
		domainErr = dErrors.Wrap(submitErr, dErrors.CodeSubmissionFailed, "Failed to submit votes. Please try again.")
	}

	session, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		sess.ClearClaim()
		sess.SubmitAttempts++
		sess.SetNotice(domainErr, domainErr.Message)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record submission outcome",
			"session_id", sessionID,
			"error", err,
		)
	}

	s.logger.WarnContext(ctx, "submission failed",
		"session_id", sessionID,
		"payment_ref", req.PaymentRef,
		"error", submitErr,
	)
	s.emit(ctx, audit.Event{
		Type:       audit.EventSubmissionFailed,
		SessionID:  sessionID.String(),
		PaymentRef: req.PaymentRef,
		Reason:     string(domainErr.Code),
	})
	return submission.Result{}, session, domainErr
}
