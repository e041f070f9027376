package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"awardvote/internal/audit"
	"awardvote/internal/ballot"
	"awardvote/internal/payment"
	"awardvote/internal/session/models"
	id "awardvote/pkg/domain"
	dErrors "awardvote/pkg/domain-errors"
	"awardvote/pkg/requestcontext"
)

// Pay charges the voter and, on success, opens a vote budget equal to the
// amount paid. Phone and amount are kept on the session whatever the
// outcome, so a cancelled or failed payment can be retried as-is.
func (s *Service) Pay(ctx context.Context, sessionID id.SessionID, phoneRaw, amountRaw string) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	if s.votingClosed(now) {
		return nil, dErrors.New(dErrors.CodeVotingClosed, "voting has closed")
	}

	phone := normalizePhone(phoneRaw)
	amount, err := s.parseAmount(amountRaw)
	if err != nil {
		return nil, err
	}
	if phone == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Please enter your phone number")
	}
	if err := payment.ValidatePhone(phone); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "Please enter a valid Ghana phone number")
	}

	_, err = s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if sess.Step != models.StepPayment {
			return dErrors.New(dErrors.CodeInvalidState, "payment is only accepted on the payment step")
		}
		if sess.Busy(now, s.staleAfter) {
			return dErrors.New(dErrors.CodeConflict, "a payment is already in progress")
		}
		sess.RememberPaymentInput(phone, amount.Decimal)
		sess.LastError = nil
		sess.Claim(models.OpPayment, now)
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to start payment")
	}

	start := time.Now()
	receipt, chargeErr := s.gateway.Charge(ctx, payment.ChargeRequest{
		Phone:    phone,
		Amount:   amount,
		Currency: s.currency,
	})
	if s.metrics != nil {
		s.metrics.ObservePayment(start)
	}

	// The claim must be released even if the caller went away mid-charge.
	persistCtx := context.WithoutCancel(ctx)
	if chargeErr != nil {
		return s.paymentFailed(persistCtx, sessionID, chargeErr)
	}

	b, err := ballot.New(amount.Votes())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open vote budget")
	}
	session, err := s.store.Update(persistCtx, sessionID, func(sess *models.Session) error {
		sess.ClearClaim()
		return sess.BeginVoting(receipt.Reference.String(), b)
	})
	if err != nil {
		// The voter has paid; keep the reference in the logs for support.
		s.logger.ErrorContext(ctx, "payment succeeded but session could not advance",
			"session_id", sessionID,
			"payment_ref", receipt.Reference,
			"error", err,
		)
		return nil, translateStoreError(err, "failed to record payment")
	}

	s.logger.InfoContext(ctx, "payment succeeded",
		"session_id", sessionID,
		"payment_ref", receipt.Reference,
		"votes", amount.Votes(),
		"provider", receipt.Provider,
	)
	s.emit(ctx, audit.Event{
		Type:       audit.EventPaymentSucceeded,
		SessionID:  sessionID.String(),
		PaymentRef: receipt.Reference.String(),
		Votes:      amount.Votes(),
		Amount:     amount.String(),
	})
	if s.metrics != nil {
		s.metrics.IncrementPayment("success")
	}
	return session, nil
}

func (s *Service) paymentFailed(ctx context.Context, sessionID id.SessionID, chargeErr error) (*models.Session, error) {
	var (
		domainErr *dErrors.Error
		eventType audit.EventType
		outcome   string
	)
	switch {
	case errors.Is(chargeErr, payment.ErrPaymentCancelled):
		domainErr = dErrors.Wrap(chargeErr, dErrors.CodePaymentCancelled, "Payment was cancelled")
		eventType, outcome = audit.EventPaymentCancelled, "cancelled"
	case errors.Is(chargeErr, payment.ErrInvalidPhone), errors.Is(chargeErr, payment.ErrInvalidAmount):
		domainErr = dErrors.Wrap(chargeErr, dErrors.CodeValidation, "Please check your phone number and amount")
		eventType, outcome = audit.EventPaymentFailed, "rejected"
	default:
		domainErr = dErrors.Wrap(chargeErr, dErrors.CodePaymentFailed, "Payment failed. Please try again.")
		eventType, outcome = audit.EventPaymentFailed, "failed"
	}

	session, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		sess.ClearClaim()
		sess.SetNotice(domainErr, domainErr.Message)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record payment outcome",
			"session_id", sessionID,
			"error", err,
		)
	}

	s.logger.WarnContext(ctx, "payment did not complete",
		"session_id", sessionID,
		"outcome", outcome,
		"error", chargeErr,
	)
	s.emit(ctx, audit.Event{Type: eventType, SessionID: sessionID.String(), Reason: outcome})
	if s.metrics != nil {
		s.metrics.IncrementPayment(outcome)
	}
	return session, domainErr
}

func (s *Service) parseAmount(raw string) (payment.Amount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return payment.Amount{}, dErrors.New(dErrors.CodeValidation, "Please select an amount")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return payment.Amount{}, dErrors.Wrap(err, dErrors.CodeValidation, "Please select an amount")
	}
	allowed := false
	for _, a := range s.amounts {
		if a.Equal(d) {
			allowed = true
			break
		}
	}
	if !allowed {
		return payment.Amount{}, dErrors.New(dErrors.CodeValidation, "Please select one of the offered amounts")
	}
	amount, err := payment.NewAmount(d)
	if err != nil {
		return payment.Amount{}, dErrors.Wrap(err, dErrors.CodeValidation, "Please select an amount")
	}
	return amount, nil
}
