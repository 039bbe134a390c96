package upstream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/quillfeed/backend/internal/infrastructure/logging"
	"github.com/quillfeed/backend/internal/infrastructure/monitoring"
)

// RetriesExhaustedError is returned when every attempt failed. It wraps
// the last underlying cause.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// Config defines retry behavior.
type Config struct {
	MaxRetries int
	BaseWait   time.Duration
	MaxWait    time.Duration
}

// Client wraps a raw Transport with bounded, jittered retries.
type Client struct {
	transport Transport
	cfg       Config
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewClient creates a retrying client around transport.
func NewClient(transport Transport, cfg Config, logger *logging.Logger) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseWait <= 0 {
		cfg.BaseWait = 500 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{transport: transport, cfg: cfg, logger: logger}
}

// WithMetrics attaches retry counters. Returns the client for chaining.
func (c *Client) WithMetrics(m *monitoring.Metrics) *Client {
	c.metrics = m
	return c
}

// Get fetches url and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.Send(ctx, Request{Method: "GET", URL: rawURL})
}

// Post sends body to url and returns the response body.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte) ([]byte, error) {
	return c.Send(ctx, Request{Method: "POST", URL: rawURL, Body: body})
}

// Send performs req with up to MaxRetries+1 attempts. Before each retry
// it waits an exponentially growing, jittered interval; the wait aborts
// immediately if ctx is cancelled, surfacing the cancellation rather
// than a retries-exhausted error.
func (c *Client) Send(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		if attempt > 1 {
			if err := c.wait(ctx, attempt-1); err != nil {
				return nil, err
			}
			c.logger.Debug("retrying upstream call",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			if c.metrics != nil {
				c.metrics.RecordRetry(requestHost(req.URL))
			}
		}

		body, err := c.send(ctx, req, attempt)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, &RetriesExhaustedError{Attempts: c.cfg.MaxRetries + 1, Last: lastErr}
}

func (c *Client) send(ctx context.Context, req Request, attempt int) ([]byte, error) {
	// Each attempt presents an identity drawn independently from the pool.
	header := make(map[string]string, len(req.Header)+1)
	for k, v := range req.Header {
		header[k] = v
	}
	header["User-Agent"] = randomUserAgent()

	attemptReq := req
	attemptReq.Header = header
	return c.transport.Send(ctx, attemptReq)
}

// wait sleeps for backoff(retry) or until ctx fires.
func (c *Client) wait(ctx context.Context, retry int) error {
	timer := time.NewTimer(c.backoff(retry))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff computes min(base * 2^(retry-1), max) plus up to 25% uniform
// jitter of the capped value.
func (c *Client) backoff(retry int) time.Duration {
	base := float64(c.cfg.BaseWait) * math.Pow(2, float64(retry-1))
	capped := math.Min(base, float64(c.cfg.MaxWait))
	jitter := rand.Float64() * 0.25 * capped
	return time.Duration(capped + jitter)
}

// requestHost extracts a low-cardinality metric label from a URL.
func requestHost(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}

// retryable classifies the previous attempt's failure. Network errors,
// timeouts, and 5xx-class responses are transient; 4xx-class responses
// mean the request itself is bad and repeating it cannot help.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
