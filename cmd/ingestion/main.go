// Command ingestion starts the book ingestion HTTP service.
//
// The service accepts books via POST /api/v1/books, cleans and validates
// them, upserts them into the record store and announces each write on the
// records-ingested topic for downstream indexing. With -dir it first runs
// the CSV pipeline over every *.csv file in that directory; POST
// /api/v1/sync re-runs it on demand (over -dir, or ingestion.dataDir).
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml] [-dir data]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/middleware"
)

const syncPath = "/api/v1/sync"

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dir := flag.String("dir", "", "ingest every CSV file in this directory before serving")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port, "store", cfg.Store.Driver)

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

	var producer kafka.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RecordsIngested)
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.RecordsIngested)
	}
	defer producer.Close()

	pub := publisher.New(store, producer, publisher.Options{
		Rules:     validator.RulesFromConfig(cfg.Ingestion),
		BatchSize: cfg.Store.BatchSize,
		Metrics:   m,
	})

	if *dir != "" {
		report, err := pub.IngestDir(ctx, *dir)
		if err != nil {
			slog.Error("csv ingestion failed", "dir", *dir, "error", err)
			os.Exit(1)
		}
		slog.Info("csv ingestion finished",
			"files", len(report.Files),
			"inserted", report.Inserted,
			"updated", report.Updated,
			"rejected", report.Rejected,
			"duration", report.Duration,
		)
	}

	checker := health.NewChecker()
	checker.Register("record_store", health.PingCheck(store.Ping, false))

	h := handler.New(pub)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/books", h.Ingest)
	syncDir := cfg.Ingestion.DataDir
	if *dir != "" {
		syncDir = *dir
	}
	mux.Handle("POST "+syncPath, handler.NewSync(pub, syncDir))
	mux.HandleFunc("GET /health", checker.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{middleware.RequestID}
	if m != nil {
		mws = append(mws, middleware.Metrics(m))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout, syncPath))

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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
