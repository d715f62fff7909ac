package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

var (
	flagK        int
	flagSemantic float64
	flagKeyword  float64
	flagGenres   []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank books against a free-text query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var similarCmd = &cobra.Command{
	Use:   "similar <isbn>",
	Short: "List the books closest to the given one",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, similarCmd} {
		c.Flags().IntVarP(&flagK, "k", "k", 0, "number of results (default: search.defaultLimit or search.similarLimit)")
		c.Flags().Float64Var(&flagSemantic, "semantic", 0, "semantic weight (default: search.semanticWeight)")
		c.Flags().Float64Var(&flagKeyword, "keyword", 0, "keyword weight (default: search.keywordWeight)")
		rootCmd.AddCommand(c)
	}
	searchCmd.Flags().StringSliceVar(&flagGenres, "genre", nil, "keep only books with a matching genre (repeatable)")
}

// weightFlags returns the weights selected by --semantic and --keyword, or
// nil when neither is set. A weight that is not given keeps its configured
// default.
func weightFlags(cmd *cobra.Command) *ranker.Weights {
	semantic, keyword := cmd.Flags().Changed("semantic"), cmd.Flags().Changed("keyword")
	if !semantic && !keyword {
		return nil
	}
	w := ranker.Weights{Semantic: cfg.Search.SemanticWeight, Keyword: cfg.Search.KeywordWeight}
	if semantic {
		w.Semantic = flagSemantic
	}
	if keyword {
		w.Keyword = flagKeyword
	}
	return &w
}

func limitOr(def int) int {
	if flagK > 0 {
		return flagK
	}
	return def
}

func runSearch(cmd *cobra.Command, args []string) error {
	weights := weightFlags(cmd)
	e, err := openEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.exec.Search(cmd.Context(), executor.Request{
		Query:   strings.Join(args, " "),
		Limit:   limitOr(cfg.Search.DefaultLimit),
		Weights: weights,
		Genres:  flagGenres,
	})
	if err != nil {
		return explain(err)
	}
	return printResult(cmd, result)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	weights := weightFlags(cmd)
	e, err := openEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.exec.SimilarTo(cmd.Context(), args[0], limitOr(cfg.Search.SimilarLimit), weights)
	if err != nil {
		return explain(err)
	}
	return printResult(cmd, result)
}

// explain adds the operator's next step to errors that have one.
func explain(err error) error {
	if errors.Is(err, apperrors.ErrNotIndexed) {
		return fmt.Errorf("%w (run 'bookctl rebuild' first)", err)
	}
	return err
}

func printResult(cmd *cobra.Command, result *executor.SearchResult) error {
	out := cmd.OutOrStdout()
	if flagJSON {
		return printJSON(out, result)
	}
	if len(result.Results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	rows := make([][]string, 0, len(result.Results))
	for i, r := range result.Results {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			fmt.Sprintf("%.4f", r.Score),
			fmt.Sprintf("%.4f", r.SemanticScore),
			fmt.Sprintf("%.4f", r.KeywordScore),
			r.ISBN,
			truncate(r.Title, 60),
		})
	}
	printRows(out, []string{"#", "SCORE", "SEMANTIC", "KEYWORD", "ISBN", "TITLE"}, rows)
	fmt.Fprintf(out, "\n%d of %d, build %s, weights %.2f/%.2f\n",
		len(result.Results), result.Total, result.BuildID, result.Weights.Semantic, result.Weights.Keyword)
	return nil
}
