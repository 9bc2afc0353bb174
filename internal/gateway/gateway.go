// Package gateway talks to the hosted payment gateway: it starts
// transactions and verifies their outcome by reference.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL   string
	SecretKey string
	// Timeout bounds every call, including time spent waiting on the breaker.
	Timeout time.Duration
}

type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	}
	return "unknown"
}

// Verification is the gateway's answer for one reference.
type Verification struct {
	Reference   string
	Outcome     Outcome
	Status      string
	AmountCents int64
	Currency    string
}

type InitRequest struct {
	Email       string
	AmountCents int64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

type InitResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Client is a JSON client for a Paystack-style transaction API.
type Client struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
	http      HTTPDoer
	breaker   *gobreaker.CircuitBreaker[[]byte]
}

// ErrUnexpectedStatus marks a verify answer whose status is neither a success
// nor a known failure.
var ErrUnexpectedStatus = errors.New("gateway: unexpected transaction status")

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		timeout:   cfg.Timeout,
		http:      &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "payment-gateway",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// SetHTTPClient replaces the transport, for tests.
func (c *Client) SetHTTPClient(doer HTTPDoer) {
	c.http = doer
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

func (c *Client) Initialize(ctx context.Context, in InitRequest) (*InitResponse, error) {
	payload := map[string]any{
		"email":     in.Email,
		"amount":    in.AmountCents,
		"currency":  in.Currency,
		"reference": in.Reference,
	}
	if in.CallbackURL != "" {
		payload["callback_url"] = in.CallbackURL
	}
	if len(in.Metadata) > 0 {
		payload["metadata"] = in.Metadata
	}
	raw, err := c.call(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}
	var d initData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("gateway: decode initialize: %w", err)
	}
	if d.AuthorizationURL == "" {
		return nil, errors.New("gateway: initialize returned no authorization url")
	}
	if d.Reference == "" {
		d.Reference = in.Reference
	}
	return &InitResponse{AuthorizationURL: d.AuthorizationURL, AccessCode: d.AccessCode, Reference: d.Reference}, nil
}

// Verify asks the gateway for the outcome of reference. A transaction still
// in flight yields ErrUnexpectedStatus.
func (c *Client) Verify(ctx context.Context, reference string) (*Verification, error) {
	raw, err := c.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	var d verifyData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("gateway: decode verify: %w", err)
	}
	v := &Verification{
		Reference:   reference,
		Status:      d.Status,
		AmountCents: d.Amount,
		Currency:    strings.ToUpper(d.Currency),
		Outcome:     classify(d.Status),
	}
	if v.Outcome == OutcomeUnknown {
		return v, fmt.Errorf("%w %q for %s", ErrUnexpectedStatus, d.Status, reference)
	}
	return v, nil
}

func classify(status string) Outcome {
	switch strings.ToLower(status) {
	case "success":
		return OutcomeSuccess
	case "failed", "reversed", "abandoned":
		return OutcomeFailure
	}
	return OutcomeUnknown
}

// call runs one request through the breaker under the client timeout and
// returns the envelope's data.
func (c *Client) call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path, body)
	})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("gateway: decode response: %w", err)
	}
	if !env.Status {
		return nil, fmt.Errorf("gateway: %s", env.Message)
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("gateway error (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		// An enveloped client error does not count against the breaker.
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Message != "" {
			return respBody, nil
		}
		return nil, fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
