package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
)

var (
	flagIngestDir     string
	flagIngestRebuild bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Clean CSV exports and upsert them into the record store",
	Args:  cobra.NoArgs,
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&flagIngestDir, "dir", "", "directory of *.csv files (default: ingestion.dataDir)")
	ingestCmd.Flags().BoolVar(&flagIngestRebuild, "rebuild", false, "rebuild the index after ingesting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	dir := flagIngestDir
	if dir == "" {
		dir = cfg.Ingestion.DataDir
	}

	e, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()

	producer := publisherFor(cfg.Kafka.Topics.RecordsIngested)
	defer producer.Close()
	pub := publisher.New(e.store, producer, publisher.Options{
		Rules:     validator.RulesFromConfig(cfg.Ingestion),
		BatchSize: cfg.Store.BatchSize,
	})

	report, err := pub.IngestDir(ctx, dir)
	if err != nil {
		return err
	}
	if len(report.Files) == 0 {
		return fmt.Errorf("no *.csv files in %s", dir)
	}

	if flagJSON {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printTable(cmd.OutOrStdout(), [][2]string{
			{"Files", fmt.Sprint(len(report.Files))},
			{"Rows read", fmt.Sprint(report.Read)},
			{"Cleaned", fmt.Sprint(report.Cleaned)},
			{"Rejected", fmt.Sprint(report.Rejected)},
			{"Duplicates", fmt.Sprint(report.Duplicates)},
			{"Inserted", fmt.Sprint(report.Inserted)},
			{"Updated", fmt.Sprint(report.Updated)},
			{"Duration", report.Duration.Round(time.Millisecond).String()},
		})
	}

	if !flagIngestRebuild {
		return nil
	}
	return rebuild(cmd, e)
}

// publisherFor returns a producer for topic, or a no-op one when Kafka is
// disabled.
func publisherFor(topic string) kafka.Publisher {
	if !cfg.Kafka.Enabled {
		return kafka.NopPublisher{}
	}
	return kafka.NewProducer(cfg.Kafka, topic)
}

// announce registers the index-events announcement on e's engine.
func announce(e *env) (closeFn func() error) {
	producer := publisherFor(cfg.Kafka.Topics.IndexEvents)
	e.engine.OnSwap(events.AnnounceHook(producer))
	return producer.Close
}
