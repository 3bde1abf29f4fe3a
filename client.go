package piwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.pilab.hu/piwatch/api"
	"go.pilab.hu/piwatch/internal/metrics"
)

const maxAttempts = 2

// attemptOutcome tags the result of a single upstream attempt so the retry
// policy stays an explicit bounded loop instead of exception-driven control
// flow.
type attemptOutcome int

const (
	outcomeDone attemptOutcome = iota
	outcomeRetryAuth
	outcomeRetryTransport
)

type requestOptions struct {
	timeout time.Duration
	query   url.Values
	body    []byte
	err     error
}

// RequestOption mutates a single upstream request.
type RequestOption func(*requestOptions)

// WithTimeout overrides the client's default per-request timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(ro *requestOptions) { ro.timeout = d }
}

// WithQuery adds one query string parameter.
func WithQuery(key, value string) RequestOption {
	return func(ro *requestOptions) {
		if ro.query == nil {
			ro.query = url.Values{}
		}
		ro.query.Set(key, value)
	}
}

// WithJSONBody marshals v as the request body.
func WithJSONBody(v any) RequestOption {
	return func(ro *requestOptions) {
		payload, err := json.Marshal(v)
		if err != nil {
			ro.err = fmt.Errorf("encoding request body: %w", err)
			return
		}
		ro.body = payload
	}
}

// Client executes appliance API calls with the current session header,
// replaying once after a 401 (invalidate, re-login, retry) and once after a
// transport failure (short fixed backoff, retry). Any other response is
// returned as-is without interpretation.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	sessions      *SessionManager
	timeout       time.Duration
	healthTimeout time.Duration
	backoff       time.Duration
}

// NewClient builds a client for the appliance at host (authority only, no
// scheme). timeout is the default per-request deadline; healthTimeout is the
// shorter deadline used by the Status probe.
func NewClient(host string, sessions *SessionManager, timeout, healthTimeout time.Duration) *Client {
	return &Client{
		baseURL:       "http://" + host + "/api",
		httpClient:    &http.Client{},
		sessions:      sessions,
		timeout:       timeout,
		healthTimeout: healthTimeout,
		backoff:       time.Second,
	}
}

// Do performs method against the appliance endpoint (path relative to /api).
// The caller owns the response body. A *TransportError is returned only once
// both attempts failed at the network level; HTTP error statuses are not
// errors here.
func (c *Client) Do(ctx context.Context, method, endpoint string, opts ...RequestOption) (*http.Response, error) {
	ro := requestOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.err != nil {
		return nil, ro.err
	}

	var (
		resp    *http.Response
		lastErr error
	)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		final := attempt == maxAttempts-1

		var outcome attemptOutcome
		resp, outcome, lastErr = c.attempt(ctx, method, endpoint, &ro, final)

		switch outcome {
		case outcomeDone:
			return resp, lastErr
		case outcomeRetryAuth:
			metrics.AuthRetriesTotal.Inc()
			// Clearing the store makes the replayed attempt's token lookup
			// perform the re-login.
			c.sessions.Invalidate()
		case outcomeRetryTransport:
			metrics.TransportRetriesTotal.Inc()
			time.Sleep(c.backoff)
		}
	}

	return resp, lastErr
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, ro *requestOptions, final bool) (*http.Response, attemptOutcome, error) {
	target := c.baseURL + "/" + endpoint
	if len(ro.query) > 0 {
		target += "?" + ro.query.Encode()
	}

	var body io.Reader
	if ro.body != nil {
		body = bytes.NewReader(ro.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, outcomeDone, err
	}
	req.Header.Set("X-FTL-SID", c.sessions.Token(ctx))
	req.Header.Set("Content-Type", "application/json")

	// Shallow copy so the per-request timeout covers the body read too,
	// which a per-request context deadline would cut off after Do returns.
	hc := *c.httpClient
	hc.Timeout = ro.timeout

	resp, err := hc.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		terr := &TransportError{Op: method + " " + endpoint, Err: err}
		if final {
			return nil, outcomeDone, terr
		}
		return nil, outcomeRetryTransport, terr
	}

	if resp.StatusCode == http.StatusUnauthorized && !final {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "unauthorized").Inc()
		resp.Body.Close()
		return nil, outcomeRetryAuth, nil
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	return resp, outcomeDone, nil
}

// Queries fetches the most recent DNS query records. The v6 API has no
// server-side status filter, so callers over-fetch and filter locally.
func (c *Client) Queries(ctx context.Context, limit int) ([]api.Query, error) {
	resp, err := c.Do(ctx, http.MethodGet, "queries", WithQuery("limit", strconv.Itoa(limit)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp)
	}

	var body api.QueriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding queries response: %w", err)
	}

	return body.Queries, nil
}

// AllowDomain adds an exact-match allow rule for domain.
func (c *Client) AllowDomain(ctx context.Context, domain string) error {
	resp, err := c.Do(ctx, http.MethodPost, "domains/allow/exact",
		WithJSONBody(map[string]string{"domain": domain}))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return upstreamError(resp)
	}

	return nil
}

// Status probes the appliance for reachability with the short health
// timeout. A nil return means a 200 was received.
func (c *Client) Status(ctx context.Context) error {
	resp, err := c.Do(ctx, http.MethodGet, "status", WithTimeout(c.healthTimeout))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstreamError(resp)
	}

	return nil
}

// upstreamError folds a non-2xx response into an UpstreamError, pulling the
// message out of the v6 error envelope when present.
func upstreamError(resp *http.Response) *UpstreamError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &UpstreamError{Status: resp.StatusCode, Message: msg}
}
