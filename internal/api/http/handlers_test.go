package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfeed/backend/internal/degrade"
	"github.com/quillfeed/backend/internal/infrastructure/resilience"
	"github.com/quillfeed/backend/internal/stream"
	"github.com/quillfeed/backend/internal/summary"
	"github.com/quillfeed/backend/internal/upstream"
)

// scriptedTransport returns canned responses keyed by URL.
type scriptedTransport struct {
	responses map[string][]byte
	err       error
	calls     atomic.Int64
}

func (t *scriptedTransport) Send(ctx context.Context, req upstream.Request) ([]byte, error) {
	t.calls.Add(1)
	if t.err != nil {
		return nil, t.err
	}
	body, ok := t.responses[req.URL]
	if !ok {
		return nil, &upstream.StatusError{Code: http.StatusNotFound, URL: req.URL}
	}
	return body, nil
}

type fixture struct {
	router    *gin.Engine
	handlers  *Handlers
	transport *scriptedTransport
	cache     *degrade.MemoryCache
	sessions  *stream.Limiter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	transport := &scriptedTransport{responses: map[string][]byte{
		"https://news.test/feed.json": []byte(`{"items":["a","b"]}`),
	}}
	client := upstream.NewClient(transport, upstream.Config{MaxRetries: 0}, nil)

	cache := degrade.NewMemoryCache(time.Hour)
	t.Cleanup(cache.Stop)

	breakers := resilience.NewManager(resilience.Settings{
		MaxFailures: 2,
		OpenTimeout: time.Minute,
	})
	degrader := degrade.NewService(cache, breakers, degrade.Config{
		CacheTTL:   time.Minute,
		FastWindow: time.Second,
	}, nil)

	sessions := stream.NewLimiter(2)
	handlers := NewHandlers(Deps{
		Degrader: degrader,
		Client:   client,
		Breakers: breakers,
		Producer: summary.NewProducer(degrader, 8),
		Sessions: sessions,
		Sources:  map[string]string{"news": "https://news.test/feed.json"},
	})

	r := gin.New()
	r.GET("/", handlers.Root)
	r.GET("/health", handlers.Health)
	r.GET("/api/feed/:source", handlers.GetFeed)
	r.GET("/api/feed/:source/fresh", handlers.GetFeedFresh)
	r.GET("/api/breakers", handlers.ListBreakers)
	r.POST("/api/breakers/reset", handlers.ResetBreakers)
	r.GET("/stream/summary", handlers.StreamSummary)

	return &fixture{
		router:    r,
		handlers:  handlers,
		transport: transport,
		cache:     cache,
		sessions:  sessions,
	}
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetFeedServesUpstreamPayload(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/api/feed/news")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"items":["a","b"]}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get("X-Degraded"))
}

func TestGetFeedUnknownSource(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/api/feed/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFeedDegradesToCache(t *testing.T) {
	f := newFixture(t)

	// Warm the cache, then break the upstream.
	require.Equal(t, http.StatusOK, f.get("/api/feed/news").Code)
	f.transport.err = errors.New("connection refused")

	rec := f.get("/api/feed/news")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"items":["a","b"]}`, rec.Body.String())
	assert.Equal(t, "true", rec.Header().Get("X-Degraded"))
	assert.Equal(t, "true", rec.Header().Get("X-From-Cache"))
}

func TestGetFeedUnavailableWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("connection refused")

	rec := f.get("/api/feed/news")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetFeedOpenBreakerSkipsUpstream(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.get("/api/feed/news").Code)

	f.transport.err = errors.New("connection refused")
	before := f.transport.calls.Load()

	// Two failures trip the breaker.
	f.get("/api/feed/news")
	f.get("/api/feed/news")
	assert.Equal(t, before+2, f.transport.calls.Load())

	// Open breaker: served from cache without touching the upstream.
	rec := f.get("/api/feed/news")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Degraded"))
	assert.Equal(t, before+2, f.transport.calls.Load())
}

func TestGetFeedFreshServesPayload(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/api/feed/news/fresh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"items":["a","b"]}`, rec.Body.String())
}

func TestStreamSummaryEmitsFrames(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/stream/summary?source=news")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: token\n")
	assert.Contains(t, body, "event: done\n")
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestStreamSummaryUnknownSource(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/stream/summary?source=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamSummaryRejectsWhenFull(t *testing.T) {
	f := newFixture(t)

	// Occupy every slot out of band.
	require.True(t, f.sessions.Acquire())
	require.True(t, f.sessions.Acquire())

	rec := f.get("/stream/summary?source=news")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Releasing a slot restores admission.
	f.sessions.Release()
	assert.Equal(t, http.StatusOK, f.get("/stream/summary?source=news").Code)
}

func TestStreamSummaryReleasesSlot(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, f.get("/stream/summary?source=news").Code)
	}
	assert.Equal(t, uint32(0), f.sessions.Current())
}

func TestBreakerAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("connection refused")

	// Trip the breaker.
	f.get("/api/feed/news")
	f.get("/api/feed/news")

	rec := f.get("/api/breakers")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"open"`)

	req := httptest.NewRequest("POST", "/api/breakers/reset", nil)
	resetRec := httptest.NewRecorder()
	f.router.ServeHTTP(resetRec, req)
	assert.Equal(t, http.StatusOK, resetRec.Code)

	rec = f.get("/api/breakers")
	assert.Contains(t, rec.Body.String(), `"state":"closed"`)
}

func TestHealthReportsBreakerStates(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.get("/api/feed/news").Code)

	rec := f.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"news":"closed"`)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestRootListsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/stream/summary")
}
