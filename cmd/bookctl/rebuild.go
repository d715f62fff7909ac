package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Build a new snapshot from every record and persist it",
	Long: `Rebuild encodes every record with a description, fits the keyword
vocabulary, persists the snapshot to indexer.dataDir and, when Kafka is
enabled, announces it so running searchers reload.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		return rebuild(cmd, e)
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func rebuild(cmd *cobra.Command, e *env) error {
	closeProducer := announce(e)
	defer closeProducer()

	stats, err := e.engine.Rebuild(cmd.Context())
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), stats)
	}
	printTable(cmd.OutOrStdout(), [][2]string{
		{"Build", stats.BuildID},
		{"Indexed", fmt.Sprint(stats.RecordsIndexed)},
		{"Skipped", fmt.Sprint(stats.RecordsSkipped)},
		{"Model", fmt.Sprintf("%s (%d dims)", stats.Model, stats.Dimension)},
		{"Vocabulary", fmt.Sprint(stats.VocabularySize)},
		{"Duration", stats.Duration.Round(time.Millisecond).String()},
	})
	return nil
}
