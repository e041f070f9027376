package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"awardvote/internal/audit"
	"awardvote/internal/catalog"
	"awardvote/internal/payment"
	"awardvote/internal/session/models"
	"awardvote/internal/session/service/mocks"
	"awardvote/internal/session/store"
	"awardvote/internal/submission"
	"awardvote/internal/submission/ledger"
	id "awardvote/pkg/domain"
	dErrors "awardvote/pkg/domain-errors"
	"awardvote/pkg/requestcontext"
)

const validPhone = "0241234567"

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	store     *store.InMemoryStore
	gateway   *mocks.MockPaymentGateway
	catalog   *mocks.MockCatalogProvider
	submitter *mocks.MockSubmitter
	tokens    *mocks.MockTokenIssuer
	events    *audit.InMemoryStore
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.gateway = mocks.NewMockPaymentGateway(ctrl)
	s.catalog = mocks.NewMockCatalogProvider(ctrl)
	s.submitter = mocks.NewMockSubmitter(ctrl)
	s.tokens = mocks.NewMockTokenIssuer(ctrl)
	s.events = audit.NewInMemoryStore()
	s.service = New(s.store, s.gateway, s.catalog, s.submitter, s.tokens,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(audit.NewPublisher(s.events)),
		WithCurrency("GHS"),
		WithDeadline(s.now.Add(24*time.Hour)),
	)
	s.catalog.EXPECT().Get(gomock.Any()).Return(testCatalog(), nil).AnyTimes()
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Category{
		{ID: "c1", Name: "Artiste of the Year", Nominees: []catalog.Nominee{
			{ID: "x", CategoryID: "c1", Name: "X"},
			{ID: "y", CategoryID: "c1", Name: "Y"},
		}},
		{ID: "c2", Name: "Song of the Year", Nominees: []catalog.Nominee{
			{ID: "z", CategoryID: "c2", Name: "Z"},
		}},
	})
}

func (s *ServiceSuite) open() *models.Session {
	s.tokens.EXPECT().GenerateSessionToken(gomock.Any(), s.now, defaultSessionTTL).Return("token", nil)
	session, token, err := s.service.Open(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal("token", token)
	return session
}

func (s *ServiceSuite) paid(amount string) *models.Session {
	session := s.open()
	s.gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(payment.Receipt{Reference: "ref-1", Provider: payment.ProviderMTN}, nil)
	session, err := s.service.Pay(s.ctx, session.ID, validPhone, amount)
	s.Require().NoError(err)
	return session
}

func (s *ServiceSuite) eventTypes(sessionID id.SessionID) []audit.EventType {
	events, err := s.events.ListBySession(s.ctx, sessionID.String())
	s.Require().NoError(err)
	types := make([]audit.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func (s *ServiceSuite) TestOpen() {
	session := s.open()
	s.Equal(models.StepPayment, session.Step)
	s.Equal(s.now.Add(defaultSessionTTL), session.ExpiresAt)
	s.Equal([]audit.EventType{audit.EventSessionCreated}, s.eventTypes(session.ID))
}

func (s *ServiceSuite) TestFullVotingFlow() {
	session := s.paid("5")
	s.Require().Equal(models.StepVoting, session.Step)
	s.Equal(5, session.Ballot.Purchased())
	s.Equal("ref-1", session.PaymentRef)

	for range 3 {
		_, _, err := s.service.Allocate(s.ctx, session.ID, "c1", "x")
		s.Require().NoError(err)
	}
	for range 2 {
		_, _, err := s.service.Allocate(s.ctx, session.ID, "c1", "y")
		s.Require().NoError(err)
	}

	s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req submission.Request) (submission.Result, error) {
			s.Equal("ref-1", req.PaymentRef)
			s.Equal(validPhone, req.Contact)
			s.Equal([]string{"x", "x", "x", "y", "y"}, req.Allocation["c1"])
			return submission.Result{SubmissionID: id.NewSubmissionID(), Created: 5}, nil
		})
	result, session, err := s.service.Submit(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(5, result.Created)
	s.Equal(models.StepSuccess, session.Step)
	s.Equal(5, session.SubmittedVotes)
	s.Equal(models.OpNone, session.InFlight)

	s.Equal([]audit.EventType{
		audit.EventSessionCreated,
		audit.EventPaymentSucceeded,
		audit.EventVotesSubmitted,
	}, s.eventTypes(session.ID))
}

func (s *ServiceSuite) TestPay() {
	s.Run("cancelled payment keeps inputs for retry", func() {
		session := s.open()
		s.gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(payment.Receipt{}, payment.ErrPaymentCancelled)

		_, err := s.service.Pay(s.ctx, session.ID, validPhone, "2")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePaymentCancelled))

		stored, err := s.service.Get(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(models.StepPayment, stored.Step)
		s.Equal(validPhone, stored.Phone)
		s.Require().NotNil(stored.Amount)
		s.True(stored.Amount.Equal(decimal.NewFromInt(2)))
		s.Require().NotNil(stored.LastError)
		s.Equal("Payment was cancelled", stored.LastError.Message)
		s.Equal(models.OpNone, stored.InFlight)

		s.gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(payment.Receipt{Reference: "ref-2"}, nil)
		stored, err = s.service.Pay(s.ctx, session.ID, stored.Phone, stored.Amount.String())
		s.Require().NoError(err)
		s.Equal(models.StepVoting, stored.Step)
		s.Equal(2, stored.Ballot.Remaining())
		s.Nil(stored.LastError)
	})

	s.Run("gateway failure maps to payment_failed", func() {
		session := s.open()
		s.gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(payment.Receipt{}, errors.New("boom"))

		stored, err := s.service.Pay(s.ctx, session.ID, validPhone, "1")
		s.True(dErrors.HasCode(err, dErrors.CodePaymentFailed))
		s.Require().NotNil(stored)
		s.Equal(models.StepPayment, stored.Step)
	})

	s.Run("charge carries phone amount and currency", func() {
		session := s.open()
		s.gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req payment.ChargeRequest) (payment.Receipt, error) {
				s.Equal(validPhone, req.Phone)
				s.Equal(10, req.Amount.Votes())
				s.Equal("GHS", req.Currency)
				return payment.Receipt{Reference: "ref-3"}, nil
			})
		_, err := s.service.Pay(s.ctx, session.ID, "024 123 4567", "10")
		s.Require().NoError(err)
	})

	s.Run("validation happens before any charge", func() {
		session := s.open()
		cases := []struct {
			phone, amount string
		}{
			{validPhone, ""},
			{validPhone, "3"},
			{validPhone, "abc"},
			{"", "1"},
			{"12345", "1"},
		}
		for _, tc := range cases {
			_, err := s.service.Pay(s.ctx, session.ID, tc.phone, tc.amount)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "phone=%q amount=%q", tc.phone, tc.amount)
		}
	})

	s.Run("second payment on a voting session is rejected", func() {
		session := s.paid("1")
		_, err := s.service.Pay(s.ctx, session.ID, validPhone, "1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("payment already in flight is a conflict", func() {
		session := s.open()
		_, err := s.store.Update(s.ctx, session.ID, func(sess *models.Session) error {
			sess.Claim(models.OpPayment, s.now)
			return nil
		})
		s.Require().NoError(err)

		_, err = s.service.Pay(s.ctx, session.ID, validPhone, "1")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown session", func() {
		_, err := s.service.Pay(s.ctx, id.NewSessionID(), validPhone, "1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestVotingClosed() {
	session := s.open()
	late := requestcontext.WithTime(context.Background(), s.now.Add(25*time.Hour))

	_, err := s.service.Pay(late, session.ID, validPhone, "1")
	s.True(dErrors.HasCode(err, dErrors.CodeVotingClosed))

	_, _, err = s.service.Open(late)
	s.True(dErrors.HasCode(err, dErrors.CodeVotingClosed))
}

func (s *ServiceSuite) TestAllocate() {
	s.Run("budget and pairing rules", func() {
		session := s.paid("2")

		_, _, err := s.service.Allocate(s.ctx, session.ID, "c1", "z")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, _, err = s.service.Deallocate(s.ctx, session.ID, "c1", "x")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		result, _, err := s.service.Allocate(s.ctx, session.ID, "c1", "x")
		s.Require().NoError(err)
		s.Equal(1, result.Remaining)
		s.Equal(1, result.NomineeCount)

		result, _, err = s.service.Allocate(s.ctx, session.ID, "c2", "z")
		s.Require().NoError(err)
		s.Equal(0, result.Remaining)

		_, _, err = s.service.Allocate(s.ctx, session.ID, "c1", "y")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		result, stored, err := s.service.Deallocate(s.ctx, session.ID, "c2", "z")
		s.Require().NoError(err)
		s.Equal(1, result.Remaining)
		s.Equal(0, result.NomineeCount)
		s.Equal(1, stored.Ballot.TotalAllocated())
		s.NoError(stored.Ballot.CheckInvariant())
	})

	s.Run("not before payment", func() {
		session := s.open()
		_, _, err := s.service.Allocate(s.ctx, session.ID, "c1", "x")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("catalog outage", func() {
		ctrl := gomock.NewController(s.T())
		failing := mocks.NewMockCatalogProvider(ctrl)
		failing.EXPECT().Get(gomock.Any()).Return(nil, errors.New("down"))
		svc := New(s.store, s.gateway, failing, s.submitter, s.tokens)

		_, _, err := svc.Allocate(s.ctx, id.NewSessionID(), "c1", "x")
		s.True(dErrors.HasCode(err, dErrors.CodeCatalogUnavailable))
	})
}

func (s *ServiceSuite) TestPaymentClaimOutlivesGatewayPolling() {
	claimAt := func(session *models.Session, at time.Time) {
		_, err := s.store.Update(s.ctx, session.ID, func(sess *models.Session) error {
			sess.Claim(models.OpPayment, at)
			return nil
		})
		s.Require().NoError(err)
	}

	s.Run("claim within a long payment timeout blocks a second charge", func() {
		s.service = New(s.store, s.gateway, s.catalog, s.submitter, s.tokens,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithPaymentTimeout(10*time.Minute),
		)
		session := s.open()
		claimAt(session, s.now.Add(-6*time.Minute))

		_, err := s.service.Pay(s.ctx, session.ID, validPhone, "2")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("short timeout keeps the default window", func() {
		s.service = New(s.store, s.gateway, s.catalog, s.submitter, s.tokens,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithPaymentTimeout(time.Minute),
		)
		session := s.open()
		claimAt(session, s.now.Add(-4*time.Minute))
		_, err := s.service.Pay(s.ctx, session.ID, validPhone, "2")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		claimAt(session, s.now.Add(-6*time.Minute))
		s.gateway.EXPECT().Charge(gomock.Any(), gomock.Any()).Return(payment.Receipt{Reference: "ref-2", Provider: payment.ProviderMTN}, nil)
		paid, err := s.service.Pay(s.ctx, session.ID, validPhone, "2")
		s.Require().NoError(err)
		s.Equal(models.StepVoting, paid.Step)
	})
}

func (s *ServiceSuite) TestCatalog() {
	session := s.paid("1")

	cat, err := s.service.Catalog(s.ctx, session.ID, false)
	s.Require().NoError(err)
	s.Len(cat.Categories, 2)

	s.catalog.EXPECT().Reload(gomock.Any()).Return(nil, errors.New("timeout"))
	_, err = s.service.Catalog(s.ctx, session.ID, true)
	s.True(dErrors.HasCode(err, dErrors.CodeCatalogUnavailable))
}

func (s *ServiceSuite) TestSubmitFailureFreezesAllocation() {
	session := s.paid("5")
	for _, nom := range []string{"x", "x", "y"} {
		_, _, err := s.service.Allocate(s.ctx, session.ID, "c1", nom)
		s.Require().NoError(err)
	}

	var first submission.Request
	s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req submission.Request) (submission.Result, error) {
			first = req
			return submission.Result{}, submission.ErrSubmissionFailed
		})
	_, stored, err := s.service.Submit(s.ctx, session.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeSubmissionFailed))
	s.Require().NotNil(stored)
	s.Equal(models.StepVoting, stored.Step)
	s.Equal(1, stored.SubmitAttempts)
	s.Equal("Failed to submit votes. Please try again.", stored.LastError.Message)
	s.Equal(models.OpNone, stored.InFlight)

	_, _, err = s.service.Allocate(s.ctx, session.ID, "c1", "x")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req submission.Request) (submission.Result, error) {
			s.Equal(first, req)
			return submission.Result{Created: 3}, nil
		})
	_, stored, err = s.service.Submit(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.StepSuccess, stored.Step)

	s.Contains(s.eventTypes(session.ID), audit.EventSubmissionFailed)
}

func (s *ServiceSuite) TestSubmitErrors() {
	s.Run("nothing allocated", func() {
		session := s.paid("1")
		_, _, err := s.service.Submit(s.ctx, session.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("payment reused for different votes", func() {
		session := s.paid("1")
		_, _, err := s.service.Allocate(s.ctx, session.ID, "c2", "z")
		s.Require().NoError(err)
		s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(submission.Result{}, ledger.ErrFingerprintMismatch)

		_, _, err = s.service.Submit(s.ctx, session.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("tally failures are reported but do not fail the submission", func() {
		session := s.paid("1")
		_, _, err := s.service.Allocate(s.ctx, session.ID, "c2", "z")
		s.Require().NoError(err)
		s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(submission.Result{Created: 1, TallyFailures: []string{"z"}}, nil)

		result, stored, err := s.service.Submit(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal([]string{"z"}, result.TallyFailures)
		s.Equal(models.StepSuccess, stored.Step)
		s.Contains(s.eventTypes(session.ID), audit.EventTallyUpdateFailed)
	})
}

func (s *ServiceSuite) TestReset() {
	s.Run("from success", func() {
		session := s.paid("1")
		_, _, err := s.service.Allocate(s.ctx, session.ID, "c2", "z")
		s.Require().NoError(err)
		s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(submission.Result{Created: 1}, nil)
		_, _, err = s.service.Submit(s.ctx, session.ID)
		s.Require().NoError(err)

		stored, err := s.service.Reset(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(models.StepPayment, stored.Step)
		s.Empty(stored.Phone)
		s.Nil(stored.Ballot)
		s.Empty(stored.PaymentRef)
	})

	s.Run("unspent votes are protected", func() {
		session := s.paid("1")
		_, err := s.service.Reset(s.ctx, session.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestTranslateStoreError(t *testing.T) {
	assert.True(t, dErrors.HasCode(translateStoreError(store.ErrNotFound, "x"), dErrors.CodeNotFound))
	assert.True(t, dErrors.HasCode(translateStoreError(store.ErrConflict, "x"), dErrors.CodeConflict))
	assert.True(t, dErrors.HasCode(translateStoreError(errors.New("io"), "x"), dErrors.CodeInternal))

	domainErr := dErrors.New(dErrors.CodeInvalidState, "nope")
	require.ErrorIs(t, translateStoreError(domainErr, "x"), domainErr)
}
