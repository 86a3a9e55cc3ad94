package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/matcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/resilience"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve match queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	slog.Info("starting match service", "port", cfg.Server.Port, "basename", cfg.Corpus.Basename)

	c, err := a.loadCorpus(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	m := metrics.New()
	stats := c.engine.Stats()
	m.SetCorpus(stats.Records, stats.Terms, stats.Postings)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(m, cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var redisClient *pkgredis.Client
	if cfg.Cache.Enabled && cfg.Cache.UseRedis {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, match cache is process-local", "error", err)
		} else {
			defer redisClient.Close()
		}
	}
	var guarded *cache.Guarded
	if redisClient != nil {
		guarded = cache.Guard(redisClient, resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.CircuitState.WithLabelValues(name).Set(float64(to))
			},
		}))
	}
	caches, err := newCaches(cfg, guarded, stats)
	if err != nil {
		return err
	}

	aggregator := analytics.NewAggregator()
	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.MatchEvents)
		defer producer.Close()
		publisher = producer
		slog.Info("match events enabled", "topic", cfg.Kafka.MatchEvents)
	}
	collector := analytics.NewCollector(publisher, aggregator,
		cfg.Analytics.BufferSize, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	collector.Start(ctx)
	defer collector.Close()

	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		s := c.engine.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d records, %d terms", s.Records, s.Terms),
		}
	})
	if redisClient != nil {
		checker.Register("redis", redisCheck(redisClient, guarded))
	}
	if c.pg != nil {
		checker.Register("postgres", health.OptionalCheck(c.pg.Ping))
	}

	h := handler.New(c.engine,
		handler.WithCaches(caches),
		handler.WithCollector(collector),
		handler.WithMetrics(m),
	)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", m.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartSweeper(ctx)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	return runServer(ctx, &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server)
}

// newCaches builds the result caches. Keys are namespaced by corpus size
// so a rebuilt corpus does not read entries cached for the old one.
func newCaches(cfg *config.Config, guarded *cache.Guarded, stats matcher.Stats) (handler.Caches, error) {
	if !cfg.Cache.Enabled {
		return handler.Caches{}, nil
	}
	var remote cache.Remote
	if guarded != nil {
		remote = guarded
	}
	generation := fmt.Sprintf("%d.%d.%d", stats.Records, stats.Terms, stats.Postings)
	matches, err := cache.New[matcher.MatchResult]("bibmatch:match:"+generation, cfg.Cache.LocalSize, remote, cfg.Redis.CacheTTL)
	if err != nil {
		return handler.Caches{}, err
	}
	counts, err := cache.New[int]("bibmatch:count:"+generation, cfg.Cache.LocalSize, remote, cfg.Redis.CacheTTL)
	if err != nil {
		return handler.Caches{}, err
	}
	slog.Info("match cache enabled", "local_size", cfg.Cache.LocalSize, "redis", remote != nil)
	return handler.Caches{Matches: matches, Counts: counts}, nil
}

// redisCheck reports redis as degraded while it fails to ping or while the
// cache breaker keeps it out of the request path.
func redisCheck(client *pkgredis.Client, guarded *cache.Guarded) health.Check {
	ping := health.OptionalCheck(client.Ping)
	return func(ctx context.Context) health.ComponentHealth {
		h := ping(ctx)
		if h.Status == health.StatusUp && guarded.State() != resilience.StateClosed {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: "cache circuit " + guarded.State().String(),
			}
		}
		return h
	}
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, server *http.Server, cfg config.ServerConfig) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}
