package degrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quillfeed/backend/internal/infrastructure/logging"
	"github.com/quillfeed/backend/internal/infrastructure/monitoring"
	"github.com/quillfeed/backend/internal/infrastructure/resilience"
)

var (
	// ErrNoFallbackData is returned when a fetch failed and the cache
	// holds nothing for the key. The upstream cause is attached as a
	// wrapped error.
	ErrNoFallbackData = errors.New("no fallback data available")
	// ErrFetcherFailed is returned where no fallback policy masks the
	// original fetch failure, wrapping it.
	ErrFetcherFailed = errors.New("fetcher failed")
)

// Fetcher goes and gets fresh data from some upstream. The upstream-
// specific logic is entirely owned by the caller; the service only
// supplies the context, which for background refreshes is detached from
// the triggering request.
type Fetcher func(ctx context.Context) ([]byte, error)

// Outcome is the result of a degradation policy. Degraded is true
// whenever Data did not come from a successful fresh fetch in this call.
type Outcome struct {
	Data      []byte
	Degraded  bool
	FromCache bool
}

// Config defines degradation policy timing.
type Config struct {
	// CacheTTL is how long fetched values stay servable as fallback.
	CacheTTL time.Duration
	// FastWindow is how long AsyncRefresh waits for the fetch before
	// serving stale data.
	FastWindow time.Duration
	// RefreshTimeout is the hard bound on a detached background refresh.
	RefreshTimeout time.Duration
}

// Service composes the cache, the breaker registry, and caller-supplied
// fetch functions into fallback policies.
type Service struct {
	cache    Cache
	breakers *resilience.Manager
	cfg      Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	inflight *refreshGroup
}

// NewService creates a degradation service.
func NewService(cache Cache, breakers *resilience.Manager, cfg Config, logger *logging.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.FastWindow <= 0 {
		cfg.FastWindow = 2 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Service{
		cache:    cache,
		breakers: breakers,
		cfg:      cfg,
		logger:   logger,
		inflight: newRefreshGroup(),
	}
}

// WithMetrics attaches a metrics collector.
func (s *Service) WithMetrics(m *monitoring.Metrics) *Service {
	s.metrics = m
	return s
}

// WithFallback calls fetch and writes the result through to the cache.
// On fetch failure it serves the last-known-good cached value as
// degraded; with no cached value it returns ErrNoFallbackData wrapping
// the fetch error.
func (s *Service) WithFallback(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) (Outcome, error) {
	data, err := fetch(ctx)
	if err == nil {
		s.cacheSet(key, data, ttl)
		return Outcome{Data: data}, nil
	}
	return s.cacheOrFail(key, err)
}

// WithCircuitBreaker is WithFallback behind the named breaker. While the
// breaker is open the fetch is skipped entirely and the cache is
// consulted directly, so no latency is spent on a call known to be
// failing.
func (s *Service) WithCircuitBreaker(ctx context.Context, breakerName, key string, ttl time.Duration, fetch Fetcher) (Outcome, error) {
	breaker := s.breakers.Get(breakerName)

	if breaker.State() == resilience.StateOpen {
		if s.metrics != nil {
			s.metrics.RecordBreakerRejection(breakerName)
		}
		return s.cacheOrFail(key, resilience.ErrCircuitOpen)
	}

	var data []byte
	err := breaker.Execute(func() error {
		d, fetchErr := fetch(ctx)
		if fetchErr != nil {
			return fetchErr
		}
		data = d
		return nil
	})
	if err == nil {
		s.cacheSet(key, data, ttl)
		return Outcome{Data: data}, nil
	}

	if errors.Is(err, resilience.ErrCircuitOpen) && s.metrics != nil {
		s.metrics.RecordBreakerRejection(breakerName)
	}
	return s.cacheOrFail(key, err)
}

// AsyncRefresh reads the cache and races the fetch against a fast
// window. A fetch resolving inside the window wins regardless of cache
// state. Once the window elapses, cached data is served immediately as
// degraded while the fetch continues in the background to warm the
// cache; with no cached data the call keeps waiting for the fetch until
// it resolves or ctx fires. Concurrent calls for the same key share a
// single in-flight fetch.
func (s *Service) AsyncRefresh(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) (Outcome, error) {
	cached, hasCached := s.cacheGet(key)

	flight, leader := s.inflight.claim(key)
	if leader {
		go s.runRefresh(key, ttl, flight, fetch)
	}

	window := time.NewTimer(s.cfg.FastWindow)
	defer window.Stop()

	select {
	case <-flight.done:
		return s.resolveRefresh(flight, cached, hasCached)

	case <-window.C:
		if hasCached {
			// Stale-while-revalidate: the caller gets the cached value
			// now and the detached refresh keeps running.
			s.logger.Debug("fast window elapsed, serving stale", zap.String("key", key))
			if s.metrics != nil {
				s.metrics.RecordDegradedServe()
			}
			return Outcome{Data: cached, Degraded: true, FromCache: true}, nil
		}

		// Nothing to degrade to; wait the fetch out.
		select {
		case <-flight.done:
			return s.resolveRefresh(flight, nil, false)
		case <-ctx.Done():
			return Outcome{Degraded: true}, ctx.Err()
		}

	case <-ctx.Done():
		return Outcome{Degraded: true}, ctx.Err()
	}
}

// runRefresh executes one background refresh. Its context is detached
// from the triggering request, since the refresh warms the cache for
// future callers and must survive the request's own cancellation, but
// bounded by a hard timeout so it cannot leak forever.
func (s *Service) runRefresh(key string, ttl time.Duration, flight *refresh, fetch Fetcher) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshTimeout)
	defer cancel()

	data, err := fetch(ctx)
	if err == nil {
		s.cacheSet(key, data, ttl)
	} else {
		s.logger.Warn("background refresh failed", zap.String("key", key), zap.Error(err))
	}
	s.inflight.finish(key, flight, data, err)
}

// resolveRefresh maps a completed refresh to an outcome, falling back to
// the cached value the caller read before the race.
func (s *Service) resolveRefresh(flight *refresh, cached []byte, hasCached bool) (Outcome, error) {
	if flight.err == nil {
		return Outcome{Data: flight.data}, nil
	}
	if hasCached {
		if s.metrics != nil {
			s.metrics.RecordDegradedServe()
		}
		return Outcome{Data: cached, Degraded: true, FromCache: true}, nil
	}
	return Outcome{Degraded: true}, fmt.Errorf("%w: %w", ErrFetcherFailed, flight.err)
}

// cacheOrFail serves the cached value as degraded, or surfaces
// ErrNoFallbackData carrying cause when the cache is empty too.
func (s *Service) cacheOrFail(key string, cause error) (Outcome, error) {
	if cached, ok := s.cacheGet(key); ok {
		if s.metrics != nil {
			s.metrics.RecordDegradedServe()
		}
		return Outcome{Data: cached, Degraded: true, FromCache: true}, nil
	}
	return Outcome{Degraded: true}, fmt.Errorf("%w: %w", ErrNoFallbackData, cause)
}

func (s *Service) cacheGet(key string) ([]byte, bool) {
	data, ok := s.cache.Get(key)
	if s.metrics != nil {
		if ok {
			s.metrics.RecordCacheHit()
		} else {
			s.metrics.RecordCacheMiss()
		}
	}
	return data, ok
}

func (s *Service) cacheSet(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.cfg.CacheTTL
	}
	if err := s.cache.Set(key, data, ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
