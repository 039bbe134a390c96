package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header map[string]string
}

// Transport is the raw send primitive: open a connection, write the
// request, read the response body or an error. Retrying lives in Client,
// not here.
type Transport interface {
	Send(ctx context.Context, req Request) ([]byte, error)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.Code, e.URL)
}

// Retryable reports whether the status class indicates a transient
// condition worth retrying.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == 429
}

// RestyTransport sends requests through a resty client with outbound
// pacing. The underlying http.Transport comes from retryablehttp for its
// connection pool tuning; library-level retries stay disabled because
// Client owns the retry loop.
type RestyTransport struct {
	resty   *resty.Client
	limiter *rate.Limiter
}

// NewRestyTransport creates a production transport with the given
// per-request timeout. rps <= 0 disables outbound pacing.
func NewRestyTransport(timeout time.Duration, rps float64) *RestyTransport {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}

	return &RestyTransport{resty: restyClient, limiter: limiter}
}

// Send performs the request and returns the response body. Non-2xx
// responses surface as *StatusError with the body discarded.
func (t *RestyTransport) Send(ctx context.Context, req Request) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("outbound pacing: %w", err)
	}

	r := t.resty.R().SetContext(ctx)
	for k, v := range req.Header {
		r.SetHeader(k, v)
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), URL: req.URL}
	}
	return resp.Body(), nil
}
