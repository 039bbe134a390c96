package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillfeed/backend/internal/degrade"
	"github.com/quillfeed/backend/internal/infrastructure/logging"
	"github.com/quillfeed/backend/internal/infrastructure/monitoring"
	"github.com/quillfeed/backend/internal/infrastructure/resilience"
	"github.com/quillfeed/backend/internal/infrastructure/tracing"
	"github.com/quillfeed/backend/internal/stream"
	"github.com/quillfeed/backend/internal/summary"
	"github.com/quillfeed/backend/internal/upstream"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	Degrader *degrade.Service
	Client   *upstream.Client
	Breakers *resilience.Manager
	Producer *summary.Producer
	Sessions *stream.Limiter
	Sources  map[string]string
	Metrics  *monitoring.Metrics
	Logger   *logging.Logger
}

// Handlers serves the API endpoints.
type Handlers struct {
	deps  Deps
	start time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Handlers{deps: deps, start: time.Now()}
}

// Root describes the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "quillfeed-backend",
		"status":  "running",
		"endpoints": gin.H{
			"feed":     "/api/feed/:source",
			"fresh":    "/api/feed/:source/fresh",
			"stream":   "/stream/summary",
			"breakers": "/api/breakers",
			"health":   "/health",
			"metrics":  "/metrics",
		},
	})
}

// Health reports liveness plus the state of every circuit breaker.
func (h *Handlers) Health(c *gin.Context) {
	breakers := gin.H{}
	for _, name := range h.deps.Breakers.Names() {
		breakers[name] = h.deps.Breakers.Get(name).State().String()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.start).Seconds(),
		"breakers":       breakers,
		"active_streams": h.deps.Sessions.Current(),
	})
}

// GetFeed serves a source through the circuit-breaking fallback policy.
// A degraded response carries the last known payload with X-Degraded set.
func (h *Handlers) GetFeed(c *gin.Context) {
	source := c.Param("source")
	url, ok := h.deps.Sources[source]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source: " + source})
		return
	}

	outcome, err := h.deps.Degrader.WithCircuitBreaker(
		c.Request.Context(), source, feedKey(source), 0, h.fetcher(source, url))
	if err != nil {
		h.replyFetchError(c, source, err)
		return
	}

	h.replyFeed(c, outcome)
}

// GetFeedFresh serves a source through the stale-while-revalidate policy:
// bounded wait for fresh data, stale payload when the fetch is slow.
func (h *Handlers) GetFeedFresh(c *gin.Context) {
	source := c.Param("source")
	url, ok := h.deps.Sources[source]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source: " + source})
		return
	}

	outcome, err := h.deps.Degrader.AsyncRefresh(
		c.Request.Context(), feedKey(source), 0, h.fetcher(source, url))
	if err != nil {
		h.replyFetchError(c, source, err)
		return
	}

	h.replyFeed(c, outcome)
}

// ListBreakers reports the state of every registered breaker.
func (h *Handlers) ListBreakers(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, name := range h.deps.Breakers.Names() {
		out = append(out, gin.H{
			"name":  name,
			"state": h.deps.Breakers.Get(name).State().String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"breakers": out})
}

// ResetBreakers force-closes every breaker.
func (h *Handlers) ResetBreakers(c *gin.Context) {
	h.deps.Breakers.ResetAll()
	h.deps.Logger.Info("all circuit breakers reset")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// Stats serves the JSON metrics snapshot.
func (h *Handlers) Stats(c *gin.Context) {
	if h.deps.Metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	snap := h.deps.Metrics.GetSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"total_requests":  snap.TotalRequests,
		"total_errors":    snap.TotalErrors,
		"degraded_serves": snap.DegradedServes,
		"active_sessions": snap.ActiveSessions,
		"uptime_seconds":  snap.UptimeSeconds,
	})
}

// StreamSummary pushes a source's payload to the client as an SSE token
// stream. Admission is bounded by the session limiter; the slot is held
// for exactly the lifetime of the stream.
func (h *Handlers) StreamSummary(c *gin.Context) {
	source := c.DefaultQuery("source", "news")
	url, ok := h.deps.Sources[source]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source: " + source})
		return
	}

	if !h.deps.Sessions.Acquire() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many active streams"})
		return
	}
	defer h.deps.Sessions.Release()

	sess, err := stream.New(c.Request.Context(), c.Writer, h.deps.Logger)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer sess.Close()

	if h.deps.Metrics != nil {
		h.deps.Metrics.SessionOpened()
		defer h.deps.Metrics.SessionClosed()
	}

	events := h.deps.Producer.Events(
		c.Request.Context(), sess.Done(), feedKey(source), h.fetcher(source, url))

	if err := sess.StreamFrom(h.counted(events, sess.Done())); err != nil {
		h.deps.Logger.Warn("summary stream aborted",
			zap.String("source", source), zap.Error(err))
	}
}

// fetcher builds the upstream fetch for one source, with per-fetch
// outcome metrics. The caller's trace identity rides along on the
// outbound request headers.
func (h *Handlers) fetcher(source, url string) degrade.Fetcher {
	return func(ctx context.Context) ([]byte, error) {
		header := make(map[string]string)
		tracing.InjectTraceContext(ctx, header)

		start := time.Now()
		data, err := h.deps.Client.Send(ctx, upstream.Request{
			Method: "GET",
			URL:    url,
			Header: header,
		})
		if h.deps.Metrics != nil {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			h.deps.Metrics.RecordFetch(source, outcome, time.Since(start))
		}
		return data, err
	}
}

func (h *Handlers) replyFeed(c *gin.Context, outcome degrade.Outcome) {
	if outcome.Degraded {
		c.Header("X-Degraded", "true")
	}
	if outcome.FromCache {
		c.Header("X-From-Cache", "true")
	}
	c.Data(http.StatusOK, "application/json", outcome.Data)
}

func (h *Handlers) replyFetchError(c *gin.Context, source string, err error) {
	h.deps.Logger.Warn("feed request failed",
		zap.String("source", source), zap.Error(err))

	if errors.Is(err, degrade.ErrNoFallbackData) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "source unavailable"})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
}

// counted forwards events while counting them, so the stream metrics see
// every frame that reaches the wire path.
func (h *Handlers) counted(events <-chan stream.Event, done <-chan struct{}) <-chan stream.Event {
	if h.deps.Metrics == nil {
		return events
	}

	out := make(chan stream.Event)
	go func() {
		defer close(out)
		for ev := range events {
			h.deps.Metrics.RecordEventSent()
			select {
			case out <- ev:
			case <-done:
				return
			}
		}
	}()
	return out
}

func feedKey(source string) string {
	return "feed:" + source
}
