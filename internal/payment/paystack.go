package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"awardvote/internal/platform/metrics"
	"awardvote/pkg/platform/circuit"
)

const upstreamName = "payment"

// PaystackGateway charges mobile-money wallets through a Paystack-compatible
// API: a charge call followed by verify polling until a terminal status.
type PaystackGateway struct {
	baseURL      string
	secretKey    string
	currency     string
	pollInterval time.Duration
	timeout      time.Duration
	httpClient   *http.Client
	breaker      *circuit.Breaker
	tracer       trace.Tracer
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*PaystackGateway)

func WithHTTPClient(hc *http.Client) Option {
	return func(g *PaystackGateway) {
		g.httpClient = hc
	}
}

// WithPolling sets the verify poll interval and the overall wait for a
// terminal status.
func WithPolling(interval, timeout time.Duration) Option {
	return func(g *PaystackGateway) {
		if interval > 0 {
			g.pollInterval = interval
		}
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

func WithCurrency(currency string) Option {
	return func(g *PaystackGateway) {
		if currency != "" {
			g.currency = currency
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(g *PaystackGateway) {
		g.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *PaystackGateway) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *PaystackGateway) {
		g.metrics = m
	}
}

func NewPaystackGateway(baseURL, secretKey string, opts ...Option) *PaystackGateway {
	g := &PaystackGateway{
		baseURL:      strings.TrimRight(baseURL, "/"),
		secretKey:    secretKey,
		currency:     "GHS",
		pollInterval: 3 * time.Second,
		timeout:      3 * time.Minute,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		breaker:      circuit.New(upstreamName),
		tracer:       otel.Tracer("awardvote/payment"),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type chargePayload struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	MobileMoney mobileMoney    `json:"mobile_money"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type mobileMoney struct {
	Phone    string   `json:"phone"`
	Provider Provider `json:"provider"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    transactionData `json:"data"`
}

type transactionData struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	DisplayText string `json:"display_text"`
}

// Charge starts a mobile-money charge and waits for the voter to approve it on
// their handset.
func (g *PaystackGateway) Charge(ctx context.Context, req ChargeRequest) (receipt Receipt, err error) {
	ctx, span := g.tracer.Start(ctx, "payment.Charge")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := ValidatePhone(req.Phone); err != nil {
		return Receipt{}, err
	}
	if !req.Amount.IsPositive() {
		return Receipt{}, ErrInvalidAmount
	}
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}
	email := req.Email
	if email == "" {
		email = DefaultEmail(req.Phone)
	}
	provider := ProviderFor(req.Phone)
	span.SetAttributes(
		attribute.String("payment.provider", string(provider)),
		attribute.Int64("payment.amount_minor", req.Amount.MinorUnits()),
	)

	payload := chargePayload{
		Email:    email,
		Amount:   req.Amount.MinorUnits(),
		Currency: currency,
		MobileMoney: mobileMoney{
			Phone:    localNumber(req.Phone),
			Provider: provider,
		},
		Metadata: map[string]any{
			"phone": req.Phone,
			"custom_fields": []map[string]string{{
				"display_name":  "Phone Number",
				"variable_name": "phone_number",
				"value":         req.Phone,
			}},
		},
	}

	var charged envelope
	if err := g.call(ctx, http.MethodPost, g.baseURL+"/charge", payload, &charged); err != nil {
		return Receipt{}, err
	}
	ref := Reference(charged.Data.Reference)
	if ref == "" {
		return Receipt{}, g.fail(ctx, "charge", fmt.Errorf("%w: gateway returned no reference", ErrPaymentFailed))
	}

	status := charged.Data.Status
	deadline := time.Now().Add(g.timeout)
	for {
		terminal, outcome := classify(status)
		if terminal {
			if outcome != nil {
				g.logger.InfoContext(ctx, "payment did not complete",
					"reference", ref, "status", status)
				return Receipt{}, outcome
			}
			break
		}
		if time.Now().After(deadline) {
			return Receipt{}, g.fail(ctx, "verify", fmt.Errorf("%w: timed out waiting for approval (last status %q)", ErrPaymentFailed, status))
		}
		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("%w: %v", ErrPaymentFailed, ctx.Err())
		case <-time.After(g.pollInterval):
		}

		var verified envelope
		if err := g.call(ctx, http.MethodGet, g.baseURL+"/transaction/verify/"+url.PathEscape(string(ref)), nil, &verified); err != nil {
			return Receipt{}, err
		}
		status = verified.Data.Status
		if status == "success" && verified.Data.Amount != 0 && verified.Data.Amount != req.Amount.MinorUnits() {
			return Receipt{}, g.fail(ctx, "verify", fmt.Errorf("%w: settled amount %d does not match %d",
				ErrPaymentFailed, verified.Data.Amount, req.Amount.MinorUnits()))
		}
	}

	return Receipt{Reference: ref, Amount: req.Amount, Provider: provider}, nil
}

// classify maps a gateway transaction status to an outcome. Non-terminal
// statuses (pending, send_otp, pay_offline, ongoing) keep polling.
func classify(status string) (terminal bool, outcome error) {
	switch status {
	case "success":
		return true, nil
	case "abandoned", "cancelled":
		return true, ErrPaymentCancelled
	case "failed", "reversed":
		return true, fmt.Errorf("%w: status %s", ErrPaymentFailed, status)
	default:
		return false, nil
	}
}

func (g *PaystackGateway) call(ctx context.Context, method, target string, body any, out *envelope) error {
	if !g.breaker.Allow() {
		return g.fail(ctx, "circuit", fmt.Errorf("%w: gateway circuit open", ErrPaymentFailed))
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrPaymentFailed, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		return g.fail(ctx, "transport", fmt.Errorf("%w: %v", ErrPaymentFailed, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		g.breaker.RecordFailure()
		return g.fail(ctx, "upstream", fmt.Errorf("%w: gateway status %d", ErrPaymentFailed, resp.StatusCode))
	}
	g.breaker.RecordSuccess()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return g.fail(ctx, "bad_data", fmt.Errorf("%w: decode response: %v", ErrPaymentFailed, err))
	}
	if resp.StatusCode >= 400 || !env.Status {
		// A declined charge still carries a terminal data.status; let the
		// caller classify it when present.
		if terminal, outcome := classify(env.Data.Status); terminal && outcome != nil {
			return outcome
		}
		return g.fail(ctx, "rejected", fmt.Errorf("%w: %s", ErrPaymentFailed, env.Message))
	}
	if out != nil {
		*out = env
	}
	return nil
}

func (g *PaystackGateway) fail(ctx context.Context, category string, err error) error {
	if g.metrics != nil {
		g.metrics.IncrementUpstreamError(upstreamName, category)
	}
	g.logger.WarnContext(ctx, "payment gateway call failed", "category", category, "error", err)
	return err
}

// AmountFromMinor converts a minor-unit integer back to an Amount.
func AmountFromMinor(minor int64) Amount {
	return Amount{decimal.New(minor, -2)}
}
