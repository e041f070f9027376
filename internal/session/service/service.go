// Package service drives a voting session through payment, voting and
// success. It owns the transitions; stores only persist the result.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"awardvote/internal/audit"
	"awardvote/internal/catalog"
	"awardvote/internal/payment"
	"awardvote/internal/session/metrics"
	"awardvote/internal/session/models"
	"awardvote/internal/submission"
	id "awardvote/pkg/domain"
	dErrors "awardvote/pkg/domain-errors"
	"awardvote/pkg/platform/sentinel"
	"awardvote/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Update(ctx context.Context, sessionID id.SessionID, fn func(*models.Session) error) (*models.Session, error)
}

type PaymentGateway interface {
	Charge(ctx context.Context, req payment.ChargeRequest) (payment.Receipt, error)
}

type CatalogProvider interface {
	Get(ctx context.Context) (*catalog.Catalog, error)
	Reload(ctx context.Context) (*catalog.Catalog, error)
}

type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (submission.Result, error)
}

type TokenIssuer interface {
	GenerateSessionToken(sessionID id.SessionID, issuedAt time.Time, expiresIn time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	defaultSessionTTL = time.Hour
	// A claim older than this is treated as abandoned by a crashed replica.
	staleClaimAfter = 5 * time.Minute
	claimGrace      = time.Minute
)

// Service orchestrates session transitions.
type Service struct {
	store          Store
	gateway        PaymentGateway
	catalog        CatalogProvider
	submitter      Submitter
	tokens         TokenIssuer
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	amounts        []decimal.Decimal
	currency       string
	deadline       time.Time
	sessionTTL     time.Duration
	staleAfter     time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithAmounts restricts purchasable bundles, in major currency units.
func WithAmounts(amounts []decimal.Decimal) Option {
	return func(s *Service) {
		if len(amounts) > 0 {
			s.amounts = amounts
		}
	}
}

func WithCurrency(currency string) Option {
	return func(s *Service) {
		s.currency = currency
	}
}

// WithDeadline stops new payments after t. A zero t leaves voting open.
func WithDeadline(t time.Time) Option {
	return func(s *Service) {
		s.deadline = t
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithPaymentTimeout keeps a payment claim live for as long as the gateway may
// still be polling, so a second charge cannot start beside it.
func WithPaymentTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.staleAfter = max(staleClaimAfter, d+claimGrace)
	}
}

func New(store Store, gateway PaymentGateway, cat CatalogProvider, submitter Submitter, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		gateway:    gateway,
		catalog:    cat,
		submitter:  submitter,
		tokens:     tokens,
		logger:     slog.Default(),
		amounts:    []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(5), decimal.NewFromInt(10)},
		sessionTTL: defaultSessionTTL,
		staleAfter: staleClaimAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Amounts lists the purchasable bundles.
func (s *Service) Amounts() []decimal.Decimal {
	return append([]decimal.Decimal(nil), s.amounts...)
}

// Deadline is zero when voting has no closing time.
func (s *Service) Deadline() time.Time {
	return s.deadline
}

// Open starts a session on the payment step and returns its bearer token.
func (s *Service) Open(ctx context.Context) (*models.Session, string, error) {
	now := requestcontext.Now(ctx)
	if s.votingClosed(now) {
		return nil, "", dErrors.New(dErrors.CodeVotingClosed, "voting has closed")
	}

	session := models.New(id.NewSessionID(), now, s.sessionTTL)
	if err := s.store.Create(ctx, session); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}
	token, err := s.tokens.GenerateSessionToken(session.ID, now, s.sessionTTL)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session token")
	}

	s.emit(ctx, audit.Event{Type: audit.EventSessionCreated, SessionID: session.ID.String()})
	if s.metrics != nil {
		s.metrics.IncrementSessionsCreated()
	}
	return session, token, nil
}

func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, translateStoreError(err, "failed to load session")
	}
	return session, nil
}

// Reset returns the session to an empty payment step. From voting it is only
// allowed after a failed submission, so a paid budget is not thrown away by
// accident.
func (s *Service) Reset(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	session, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if sess.Busy(now, s.staleAfter) {
			return dErrors.New(dErrors.CodeConflict, "an operation is in progress for this session")
		}
		if sess.Step == models.StepVoting && !sess.AllocationFrozen() {
			return dErrors.New(dErrors.CodeInvalidState, "reset would discard unspent votes")
		}
		sess.Reset()
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to reset session")
	}
	s.emit(ctx, audit.Event{Type: audit.EventSessionReset, SessionID: sessionID.String()})
	return session, nil
}

func (s *Service) votingClosed(now time.Time) bool {
	return !s.deadline.IsZero() && now.After(s.deadline)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"type", event.Type,
			"session_id", event.SessionID,
			"error", err,
		)
	}
}

// translateStoreError keeps domain errors raised inside update functions and
// maps infrastructure errors to codes.
func translateStoreError(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "session was modified concurrently, please retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func normalizePhone(raw string) string {
	return strings.Join(strings.Fields(raw), "")
}
