// Package recordstore is the HTTP client for the external collection-oriented
// record service that owns categories, nominees, vote records and tallies.
// It carries no business logic.
package recordstore

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"awardvote/internal/platform/metrics"
	"awardvote/pkg/platform/circuit"
	"awardvote/pkg/platform/sentinel"
)

const (
	upstreamName = "recordstore"
	listPageSize = 500
	maxBodyBytes = 4 << 20
)

// Client talks to {baseURL}/api/collections/... endpoints.
type Client struct {
	baseURL     string
	collections Collections
	httpClient  *http.Client
	breaker     *circuit.Breaker
	tracer      trace.Tracer
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New constructs a Client. The timeout applies per HTTP request.
func New(baseURL string, collections Collections, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		collections: collections,
		httpClient:  &http.Client{Timeout: timeout},
		breaker:     circuit.New(upstreamName),
		tracer:      otel.Tracer("awardvote/recordstore"),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collections returns the configured collection names.
func (c *Client) Collections() Collections {
	return c.collections
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]CategoryRecord, error) {
	q := url.Values{}
	q.Set("perPage", fmt.Sprint(listPageSize))
	var resp listResponse[CategoryRecord]
	if err := c.do(ctx, "ListCategories", http.MethodGet, c.recordsPath(c.collections.Categories, "", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ListNominees returns the nominees of one category, optionally pre-sorted by
// descending votes.
func (c *Client) ListNominees(ctx context.Context, categoryID string, sortByVotes bool) ([]NomineeRecord, error) {
	q := url.Values{}
	q.Set("filter", fmt.Sprintf("(category='%s')", escapeFilterValue(categoryID)))
	q.Set("perPage", fmt.Sprint(listPageSize))
	if sortByVotes {
		q.Set("sort", "-votes")
	}
	var resp listResponse[NomineeRecord]
	if err := c.do(ctx, "ListNominees", http.MethodGet, c.recordsPath(c.collections.Nominees, "", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetNominee reads one nominee, including its current tally.
func (c *Client) GetNominee(ctx context.Context, nomineeID string) (NomineeRecord, error) {
	var rec NomineeRecord
	if err := c.do(ctx, "GetNominee", http.MethodGet, c.recordsPath(c.collections.Nominees, nomineeID, nil), nil, &rec); err != nil {
		return NomineeRecord{}, err
	}
	return rec, nil
}

// UpdateNomineeVotes overwrites a nominee's tally.
func (c *Client) UpdateNomineeVotes(ctx context.Context, nomineeID string, votes int) error {
	return c.do(ctx, "UpdateNomineeVotes", http.MethodPatch, c.recordsPath(c.collections.Nominees, nomineeID, nil), votesPatch{Votes: votes}, nil)
}

// CreateVoteRecord persists one vote. A duplicate vote key surfaces as
// sentinel.ErrConflict.
func (c *Client) CreateVoteRecord(ctx context.Context, rec VoteRecord) error {
	return c.do(ctx, "CreateVoteRecord", http.MethodPost, c.recordsPath(c.collections.VoteRecords, "", nil), rec, nil)
}

// ImageURL builds the deterministic file URL for a record attachment. Any
// missing part yields an empty string.
func (c *Client) ImageURL(collectionID, recordID, filename string) string {
	if collectionID == "" || recordID == "" || filename == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/files/%s/%s/%s", c.baseURL,
		url.PathEscape(collectionID), url.PathEscape(recordID), url.PathEscape(filename))
}

func (c *Client) recordsPath(collection, recordID string, q url.Values) string {
	p := c.baseURL + "/api/collections/" + url.PathEscape(collection) + "/records"
	if recordID != "" {
		p += "/" + url.PathEscape(recordID)
	}
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	return p
}

func (c *Client) do(ctx context.Context, op, method, target string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "recordstore."+op, trace.WithAttributes(
		attribute.String("http.method", method),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if c.metrics != nil {
				c.metrics.IncrementUpstreamError(upstreamName, category(err))
			}
		}
		span.End()
	}()

	if !c.breaker.Allow() {
		return &Error{Op: op, Err: fmt.Errorf("%w: circuit open", sentinel.ErrUnavailable)}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(ctx, op)
		return &Error{Op: op, Err: fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.recordFailure(ctx, op)
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: read body: %v", sentinel.ErrUnavailable, err)}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 500 {
		c.recordFailure(ctx, op)
		return &Error{Op: op, Status: resp.StatusCode, Err: sentinel.ErrUnavailable}
	}
	c.breaker.RecordSuccess()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, Status: resp.StatusCode, Err: classifyStatus(resp.StatusCode, raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

func (c *Client) recordFailure(ctx context.Context, op string) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "record store circuit opened", "op", op)
	}
}

// errorBody is the store's validation error envelope.
type errorBody struct {
	Message string                     `json:"message"`
	Data    map[string]fieldValidation `json:"data"`
}

type fieldValidation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func classifyStatus(status int, raw []byte) error {
	switch status {
	case http.StatusNotFound:
		return sentinel.ErrNotFound
	case http.StatusConflict:
		return sentinel.ErrConflict
	case http.StatusBadRequest:
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			for _, fv := range eb.Data {
				if fv.Code == "validation_not_unique" {
					return sentinel.ErrConflict
				}
			}
			if eb.Message != "" {
				return fmt.Errorf("%w: %s", ErrRejected, eb.Message)
			}
		}
	}
	return ErrRejected
}

// escapeFilterValue keeps a caller-supplied ID from breaking out of the
// quoted filter literal.
func escapeFilterValue(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
