package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/logger"
)

var (
	flagConfig   string
	flagLogLevel string
	flagJSON     bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "bookctl",
	Short:        "Ingest, index and query the book catalogue",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		cfg = c
		slog.SetDefault(logger.New(os.Stderr, flagLogLevel, "text"))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "configs/development.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print JSON instead of tables")
}

// Execute runs the root command and exits non-zero on failure. An
// interrupt cancels the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is the record store and engine a command works against.
type env struct {
	store  records.Store
	engine *indexer.Engine
	exec   *executor.Executor
}

func (e *env) Close() error { return e.store.Close() }

// openEnv opens the store and engine. With load set the persisted snapshot
// is served, so queries see the last committed build.
func openEnv(ctx context.Context, load bool) (*env, error) {
	store, err := records.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}
	engine, enc, err := indexer.FromConfig(store, cfg, nil)
	if err != nil {
		store.Close()
		return nil, err
	}
	if load {
		if err := engine.Load(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	rk := ranker.New(enc, ranker.Limits{MaxResults: cfg.Search.MaxResults, MaxWeight: cfg.Search.MaxWeight})
	exec := executor.New(engine, rk, store, ranker.Weights{
		Semantic: cfg.Search.SemanticWeight,
		Keyword:  cfg.Search.KeywordWeight,
	})
	return &env{store: store, engine: engine, exec: exec}, nil
}
