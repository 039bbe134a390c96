package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/quillfeed/backend/internal/api/http"
	"github.com/quillfeed/backend/internal/api/middleware"
	"github.com/quillfeed/backend/internal/api/ws"
	"github.com/quillfeed/backend/internal/degrade"
	"github.com/quillfeed/backend/internal/infrastructure/config"
	"github.com/quillfeed/backend/internal/infrastructure/logging"
	"github.com/quillfeed/backend/internal/infrastructure/monitoring"
	"github.com/quillfeed/backend/internal/infrastructure/resilience"
	"github.com/quillfeed/backend/internal/infrastructure/tracing"
	"github.com/quillfeed/backend/internal/ratelimit"
	"github.com/quillfeed/backend/internal/stream"
	"github.com/quillfeed/backend/internal/summary"
	"github.com/quillfeed/backend/internal/upstream"
)

const cacheSweepInterval = time.Minute

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router   *gin.Engine
	httpSrv  *http.Server
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	limiter  ratelimit.Limiter
	cache    *degrade.MemoryCache
	breakers *resilience.Manager
	stopCh   chan struct{}
}

// NewServer creates a new server instance from configuration.
func NewServer(cfg *config.Config, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewDefault()
	}

	metrics := monitoring.NewMetrics()

	breakers := resilience.NewManager(resilience.Settings{
		MaxFailures:       cfg.Breaker.MaxFailures,
		OpenTimeout:       cfg.Breaker.OpenTimeout,
		HalfOpenMaxProbes: cfg.Breaker.HalfOpenMaxProbes,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})

	cache := degrade.NewMemoryCache(cacheSweepInterval)
	degrader := degrade.NewService(cache, breakers, degrade.Config{
		CacheTTL:       cfg.Degrade.CacheTTL,
		FastWindow:     cfg.Degrade.FastWindow,
		RefreshTimeout: cfg.Degrade.RefreshTimeout,
	}, logger.Named("degrade")).WithMetrics(metrics)

	transport := upstream.NewRestyTransport(cfg.Retry.RequestTimeout, cfg.Upstream.RequestsPerSecond)
	client := upstream.NewClient(transport, upstream.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseWait:   cfg.Retry.BaseWait,
		MaxWait:    cfg.Retry.MaxWait,
	}, logger.Named("upstream")).WithMetrics(metrics)

	producer := summary.NewProducer(degrader, 0)
	sessions := stream.NewLimiter(cfg.Stream.MaxSessions)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Algorithm == "sliding_window" {
			limiter = ratelimit.NewSlidingWindow(ratelimit.SlidingWindowConfig{
				Rate:          cfg.RateLimit.RequestsPerSecond,
				WindowSize:    cfg.RateLimit.WindowSize,
				SweepInterval: cfg.RateLimit.SweepInterval,
				IdleExpiry:    cfg.RateLimit.IdleExpiry,
			})
		} else {
			limiter = ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
				Capacity:      cfg.RateLimit.Burst,
				RefillRate:    cfg.RateLimit.RequestsPerSecond,
				SweepInterval: cfg.RateLimit.SweepInterval,
				IdleExpiry:    cfg.RateLimit.IdleExpiry,
			})
		}
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Degrader: degrader,
		Client:   client,
		Breakers: breakers,
		Producer: producer,
		Sessions: sessions,
		Sources:  cfg.Upstream.Sources,
		Metrics:  metrics,
		Logger:   logger.Named("api"),
	})
	wsHandler := ws.NewHandler(producer, client, sessions, cfg.Upstream.Sources, metrics, logger.Named("ws"))

	tracer := tracing.New("backend", logger.Named("tracing"))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if limiter != nil {
		router.Use(middleware.RateLimit(limiter, nil, metrics))
	}

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Feed reads
	router.GET("/api/feed/:source", handlers.GetFeed)
	router.GET("/api/feed/:source/fresh", handlers.GetFeedFresh)

	// Circuit breaker admin
	router.GET("/api/breakers", handlers.ListBreakers)
	router.POST("/api/breakers/reset", handlers.ResetBreakers)

	// Observability
	router.GET("/api/stats", handlers.Stats)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Streaming
	router.GET("/stream/summary", handlers.StreamSummary)
	router.GET("/ws", wsHandler.HandleConnection)

	srv := &Server{
		router:   router,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		limiter:  limiter,
		cache:    cache,
		breakers: breakers,
		stopCh:   make(chan struct{}),
	}
	go srv.trackUptime()
	return srv
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.logger.Info("starting server", zap.String("addr", addr))

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the server down and releases background resources.
func (s *Server) Close() error {
	close(s.stopCh)

	var err error
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = s.httpSrv.Shutdown(ctx)
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.cache.Stop()
	_ = s.logger.Sync()
	return err
}

// Router exposes the Gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) trackUptime() {
	start := time.Now()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.metrics.Uptime.Set(time.Since(start).Seconds())
		case <-s.stopCh:
			return
		}
	}
}
