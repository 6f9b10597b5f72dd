package shopify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"shipsync/pkg/logger"

	"go.uber.org/zap"
)

const HeaderAccessToken = "Access-Token"

// Policy bounds a single logical call: up to MaxRetries attempts, each
// capped at AttemptTimeout, with the inter-attempt delay doubling from
// InitialDelay.
type Policy struct {
	MaxRetries     int
	InitialDelay   time.Duration
	AttemptTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialDelay:   time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

type RequestSpec struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

type Response struct {
	Status   int
	Body     []byte
	Attempts int
}

// Client issues requests to the external platform. It holds no mutable
// state; concurrent Execute calls never interfere.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	// Per-attempt deadlines come from the policy, not the transport.
	return &Client{httpClient: &http.Client{}}
}

// Execute performs one logical call with bounded retries. Retryable
// failures (network, timeout, 5xx, 429) are absorbed until MaxRetries is
// hit, then surfaced as *RetriesExhaustedError. A terminal rejection
// returns immediately as *APIError.
func (c *Client) Execute(ctx context.Context, spec RequestSpec, policy Policy) (*Response, error) {
	if spec.Headers[HeaderAccessToken] == "" {
		return nil, ErrMissingToken
	}
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}

	delay := policy.InitialDelay
	var last *APIError

	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		resp, apiErr := c.attempt(ctx, spec, policy.AttemptTimeout)
		if apiErr == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		if !apiErr.Retryable() {
			return nil, apiErr
		}

		last = apiErr
		logger.Warn("shopify call failed, will retry",
			zap.String("url", spec.URL),
			zap.Int("attempt", attempt),
			zap.String("kind", string(apiErr.Kind)),
			zap.Error(apiErr))
	}

	return nil, &RetriesExhaustedError{Attempts: policy.MaxRetries, Last: last}
}

func (c *Client) attempt(ctx context.Context, spec RequestSpec, timeout time.Duration) (*Response, *APIError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, spec.Method, spec.URL, bytes.NewReader(spec.Body))
	if err != nil {
		return nil, &APIError{Kind: KindRejected, Err: err}
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &APIError{Kind: KindTimeout, Err: err}
		}
		return nil, &APIError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Response{Status: resp.StatusCode, Body: body}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{Kind: KindServer, Status: resp.StatusCode, Body: string(body)}
	default:
		return nil, &APIError{Kind: KindRejected, Status: resp.StatusCode, Body: string(body)}
	}
}
