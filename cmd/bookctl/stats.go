package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Describe the persisted snapshot and the record store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.Close()

		st := e.exec.Stats(cmd.Context())
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		rows := [][2]string{
			{"Indexed", fmt.Sprint(st.Indexed)},
			{"Build", orDash(st.BuildID)},
			{"Records indexed", fmt.Sprint(st.TotalIndexed)},
			{"Records skipped", fmt.Sprint(st.Skipped)},
			{"Model", fmt.Sprintf("%s (%d dims)", st.Model, st.Dimension)},
			{"Vocabulary", fmt.Sprint(st.VocabularySize)},
		}
		if st.BuiltAt != nil {
			rows = append(rows, [2]string{"Built at", st.BuiltAt.Local().Format("2006-01-02 15:04:05")})
		}
		if st.Records != nil {
			rows = append(rows,
				[2]string{"Stored records", fmt.Sprint(st.Records.Total)},
				[2]string{"With description", fmt.Sprint(st.Records.WithDescription)},
			)
		}
		printTable(cmd.OutOrStdout(), rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
