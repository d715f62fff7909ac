// Command indexer is the background rebuild worker. It consumes
// records-ingested events, rebuilds the snapshot in the shared data
// directory and announces each committed build on the index-events topic so
// searcher replicas reload it.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-rebuild]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	rebuildAtStart := flag.Bool("rebuild", false, "rebuild once before consuming")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "data_dir", cfg.Indexer.DataDir, "store", cfg.Store.Driver)
	if !cfg.Kafka.Enabled && !*rebuildAtStart {
		slog.Error("kafka is disabled and -rebuild not set, nothing to do")
		os.Exit(1)
	}

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

	engine, _, err := indexer.FromConfig(store, cfg, m)
	if err != nil {
		slog.Error("failed to create encoder", "error", err)
		os.Exit(1)
	}

	var indexProducer, analyticsProducer kafka.Publisher = kafka.NopPublisher{}, kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		indexProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		analyticsProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	}
	defer indexProducer.Close()
	defer analyticsProducer.Close()

	collector := analytics.NewCollector(analyticsProducer, analytics.CollectorOptions{})
	collector.Start(ctx)
	defer collector.Close()

	engine.OnSwap(events.AnnounceHook(indexProducer))
	engine.OnSwap(analytics.RebuildHook(collector))

	if *rebuildAtStart {
		stats, err := engine.Rebuild(ctx)
		if err != nil {
			slog.Error("initial rebuild failed", "error", err)
			os.Exit(1)
		}
		slog.Info("initial rebuild completed",
			"build_id", stats.BuildID,
			"records", stats.RecordsIndexed,
			"skipped", stats.RecordsSkipped,
			"duration", stats.Duration,
		)
	}
	if !cfg.Kafka.Enabled {
		return
	}

	ingested := consumer.New(kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.RecordsIngested,
		"indexer",
		consumer.HandleRecordsIngested(engine),
	))

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.RecordsIngested,
		"group", kafka.GroupID(cfg.Kafka, "indexer"),
	)

	if err := ingested.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	st := engine.Status()
	slog.Info("indexer service stopped", "build_id", st.BuildID, "records", st.Records)
}
