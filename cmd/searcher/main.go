// Command searcher serves hybrid semantic and keyword search over the book
// catalogue.
//
// On startup it loads the last persisted snapshot (when configured), then
// serves search, similar-book, catalogue, ingestion, rebuild and analytics
// endpoints. With Kafka enabled it reloads snapshots announced by peers and
// can rebuild when records are ingested elsewhere.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/redis"
)

const (
	rebuildPath = "/api/v1/index/rebuild"
	syncPath    = "/api/v1/sync"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"encoder", cfg.Encoder.Provider,
		"kafka", cfg.Kafka.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	store, err := records.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open record store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("record store opened", "driver", cfg.Store.Driver)

	engine, enc, err := indexer.FromConfig(store, cfg, m)
	if err != nil {
		slog.Error("failed to create encoder", "error", err)
		os.Exit(1)
	}
	if err := enc.Init(ctx); err != nil {
		slog.Warn("encoder not ready, queries will fail until it initialises", "provider", enc.Provider(), "error", err)
	} else {
		slog.Info("encoder ready", "provider", enc.Provider(), "model", enc.Model(), "dimension", enc.Dimension())
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	analyticsProducer := producerFor(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	aggregator := analytics.NewAggregator()
	collector := analytics.NewCollector(analyticsProducer, analytics.CollectorOptions{Local: aggregator})
	collector.Start(ctx)
	defer collector.Close()

	indexProducer := producerFor(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
	defer indexProducer.Close()
	if queryCache != nil {
		engine.OnSwap(func(ctx context.Context, _ *snapshot.Snapshot, stats indexer.BuildStats) {
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("cache flush after swap failed", "build_id", stats.BuildID, "error", err)
			}
		})
	}
	engine.OnSwap(events.AnnounceHook(indexProducer))
	engine.OnSwap(analytics.RebuildHook(collector))

	if cfg.Indexer.LoadOnStartup {
		if err := engine.Load(ctx); err != nil {
			if errors.Is(err, indexer.ErrModelMismatch) {
				slog.Warn("persisted snapshot ignored, rebuild required", "error", err)
			} else {
				slog.Error("failed to load persisted snapshot", "error", err)
			}
		}
	}

	recordsProducer := producerFor(cfg.Kafka, cfg.Kafka.Topics.RecordsIngested)
	defer recordsProducer.Close()
	pub := publisher.New(store, recordsProducer, publisher.Options{
		Rules:     validator.RulesFromConfig(cfg.Ingestion),
		BatchSize: cfg.Store.BatchSize,
		Metrics:   m,
	})

	if cfg.Kafka.Enabled {
		startConsumers(ctx, cfg, engine)
	}

	rk := ranker.New(enc, ranker.Limits{MaxResults: cfg.Search.MaxResults, MaxWeight: cfg.Search.MaxWeight})
	exec := executor.New(engine, rk, store, ranker.Weights{
		Semantic: cfg.Search.SemanticWeight,
		Keyword:  cfg.Search.KeywordWeight,
	})
	h := handler.New(exec, store, queryCache, collector, m, handler.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		SimilarLimit: cfg.Search.SimilarLimit,
		MaxResults:   cfg.Search.MaxResults,
	})

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		st := engine.Status()
		if st.State != indexer.StateBuilt {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not_indexed"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("build %s, %d records", st.BuildID, st.Records)}
	})
	checker.Register("record_store", health.PingCheck(store.Ping, false))
	checker.Register("encoder", health.PingCheck(enc.Ping, true))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.PingCheck(redisClient.Ping, true)(ctx)
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("POST /api/v1/books", ingesthandler.New(pub).Ingest)
	mux.Handle("POST "+syncPath, ingesthandler.NewSync(pub, cfg.Ingestion.DataDir))
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.HandleFunc("GET /health/components", checker.Handler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.CORS(middleware.NewCORSConfig(cfg.CORS.AllowOrigins)),
	}
	if m != nil {
		mws = append(mws, middleware.Metrics(m))
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.Window)
		defer limiter.Stop()
		mws = append(mws, middleware.RateLimit(limiter, cfg.RateLimit.RequestsPerWindow,
			middleware.RateLimitRule{Prefix: rebuildPath, Method: http.MethodPost, Limit: cfg.RateLimit.RebuildsPerWindow},
			middleware.RateLimitRule{Prefix: syncPath, Method: http.MethodPost, Limit: cfg.RateLimit.RebuildsPerWindow},
		))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout, rebuildPath, syncPath))

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     middleware.Chain(mux, mws...),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "indexed", engine.Status().State == indexer.StateBuilt)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped", "analytics_dropped", collector.Dropped())
}

// producerFor returns a Kafka producer for topic, or a no-op publisher when
// Kafka is disabled.
func producerFor(cfg config.KafkaConfig, topic string) kafka.Publisher {
	if !cfg.Enabled {
		return kafka.NopPublisher{}
	}
	return kafka.NewProducer(cfg, topic)
}

// startConsumers follows index announcements from peers and, when enabled,
// rebuilds after records are ingested by another process. Each replica uses
// its own consumer group for index events so every replica sees every
// announcement.
func startConsumers(ctx context.Context, cfg *config.Config, engine *indexer.Engine) {
	origin := events.Origin()
	indexEvents := consumer.New(kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.IndexEvents,
		origin,
		consumer.HandleIndexRebuilt(engine, origin),
	))
	go func() {
		if err := indexEvents.Start(ctx); err != nil {
			slog.Error("index events consumer error", "error", err)
		}
	}()
	slog.Info("following index announcements", "topic", cfg.Kafka.Topics.IndexEvents, "origin", origin)

	if !cfg.Indexer.RebuildOnIngest {
		return
	}
	ingested := consumer.New(kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.RecordsIngested,
		"searcher",
		consumer.HandleRecordsIngested(engine),
	))
	go func() {
		if err := ingested.Start(ctx); err != nil {
			slog.Error("records consumer error", "error", err)
		}
	}()
	slog.Info("rebuilding on ingest", "topic", cfg.Kafka.Topics.RecordsIngested)
}
