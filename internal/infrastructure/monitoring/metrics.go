package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Upstream fetch metrics
	FetchesTotal  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	RetriesTotal  *prometheus.CounterVec

	// Degradation metrics
	DegradedServes prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter

	// Circuit breaker metrics
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec

	// Rate limit metrics
	RateLimitRejections *prometheus.CounterVec

	// Streaming metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	EventsSent     prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for the JSON API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests  int64
	TotalErrors    int64
	DegradedServes int64
	ActiveSessions int64
	UptimeSeconds  float64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		FetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_upstream_fetches_total",
				Help: "Total number of upstream fetches",
			},
			[]string{"source", "outcome"},
		),
		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_upstream_fetch_duration_seconds",
				Help:    "Upstream fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_upstream_retries_total",
				Help: "Total number of upstream retry attempts",
			},
			[]string{"source"},
		),

		DegradedServes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "backend_degraded_serves_total",
				Help: "Responses served from cache because the upstream failed",
			},
		),
		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "backend_cache_hits_total",
				Help: "Total number of fallback cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "backend_cache_misses_total",
				Help: "Total number of fallback cache misses",
			},
		),

		BreakerTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"breaker", "from", "to"},
		),
		BreakerRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_breaker_rejections_total",
				Help: "Calls rejected by an open circuit breaker",
			},
			[]string{"breaker"},
		),

		RateLimitRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_rate_limit_rejections_total",
				Help: "Requests rejected by the inbound rate limiter",
			},
			[]string{"limiter"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_stream_sessions_active",
				Help: "Currently open streaming sessions",
			},
		),
		SessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "backend_stream_sessions_total",
				Help: "Total streaming sessions opened",
			},
		),
		EventsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "backend_stream_events_sent_total",
				Help: "Total streaming events written",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "backend_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if len(status) > 0 && status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordFetch records an upstream fetch outcome
func (m *Metrics) RecordFetch(source, outcome string, duration time.Duration) {
	m.FetchesTotal.WithLabelValues(source, outcome).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordRetry records a retry attempt against a source
func (m *Metrics) RecordRetry(source string) {
	m.RetriesTotal.WithLabelValues(source).Inc()
}

// RecordDegradedServe records a response served from stale cache
func (m *Metrics) RecordDegradedServe() {
	m.DegradedServes.Inc()

	m.mu.Lock()
	m.snapshot.DegradedServes++
	m.mu.Unlock()
}

// RecordCacheHit records a fallback cache hit
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a fallback cache miss
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordBreakerTransition records a circuit breaker state change
func (m *Metrics) RecordBreakerTransition(breaker, from, to string) {
	m.BreakerTransitions.WithLabelValues(breaker, from, to).Inc()
}

// RecordBreakerRejection records a call short-circuited by an open breaker
func (m *Metrics) RecordBreakerRejection(breaker string) {
	m.BreakerRejections.WithLabelValues(breaker).Inc()
}

// RecordRateLimitRejection records a rate-limited request
func (m *Metrics) RecordRateLimitRejection(limiter string) {
	m.RateLimitRejections.WithLabelValues(limiter).Inc()
}

// SessionOpened records a new streaming session
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()

	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// SessionClosed records a closed streaming session
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()

	m.mu.Lock()
	if m.snapshot.ActiveSessions > 0 {
		m.snapshot.ActiveSessions--
	}
	m.mu.Unlock()
}

// RecordEventSent records one streamed event
func (m *Metrics) RecordEventSent() {
	m.EventsSent.Inc()
}

// GetSnapshot returns current metric values for the JSON API
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
