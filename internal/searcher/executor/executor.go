// Package executor is the serving facade over the index: it resolves the
// current snapshot, runs the hybrid ranker against it and enriches ranked
// positions with record metadata. It is the contract the HTTP handler and the
// CLI depend on.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/logger"
)

const (
	KindSearch  = "search"
	KindSimilar = "similar"
)

// Result is one ranked book. Score is the fused score; SemanticScore and
// KeywordScore are its components.
type Result struct {
	ISBN          string   `json:"isbn"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	PublishDate   string   `json:"publish_date,omitempty"`
	Score         float64  `json:"score"`
	SemanticScore float64  `json:"semantic_score"`
	KeywordScore  float64  `json:"keyword_score"`
}

// SearchResult is the response of Search and SimilarTo.
type SearchResult struct {
	Kind    string         `json:"kind"`
	Query   string         `json:"query,omitempty"`
	ISBN    string         `json:"isbn,omitempty"`
	BuildID string         `json:"build_id"`
	Weights ranker.Weights `json:"weights"`
	Total   int            `json:"total"`
	Results []Result       `json:"results"`
}

// Request is a free-text search. A nil Weights selects the defaults.
type Request struct {
	Query   string          `json:"query"`
	Limit   int             `json:"limit"`
	Weights *ranker.Weights `json:"weights,omitempty"`
	Genres  []string        `json:"genres,omitempty"`
}

// Stats summarises the served index and, when a store is attached, the
// records behind it.
type Stats struct {
	Indexed        bool           `json:"indexed"`
	Building       bool           `json:"building"`
	TotalIndexed   int            `json:"total_indexed"`
	Skipped        int            `json:"skipped"`
	Dimension      int            `json:"embedding_dimension"`
	Model          string         `json:"model"`
	VocabularySize int            `json:"vocabulary_size"`
	BuildID        string         `json:"build_id,omitempty"`
	BuiltAt        *time.Time     `json:"built_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	Records        *records.Stats `json:"records,omitempty"`
}

// Executor serves queries against the engine's current snapshot.
type Executor struct {
	engine   *indexer.Engine
	ranker   *ranker.Ranker
	store    records.Store
	defaults ranker.Weights
	logger   *slog.Logger
}

// New returns an Executor. store may be nil; it only feeds Stats.
func New(engine *indexer.Engine, rk *ranker.Ranker, store records.Store, defaults ranker.Weights) *Executor {
	return &Executor{
		engine:   engine,
		ranker:   rk,
		store:    store,
		defaults: defaults,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// DefaultWeights returns the weights used when a request sets none.
func (e *Executor) DefaultWeights() ranker.Weights { return e.defaults }

// Ranker returns the ranker, whose limits bound request validation.
func (e *Executor) Ranker() *ranker.Ranker { return e.ranker }

// BuildID returns the id of the served snapshot, or "" before the first
// build. Callers caching results key them with it.
func (e *Executor) BuildID() string {
	if snap := e.engine.Current(); snap != nil {
		return snap.Meta().BuildID
	}
	return ""
}

// Search ranks the served snapshot against req.
func (e *Executor) Search(ctx context.Context, req Request) (*SearchResult, error) {
	w := e.weights(req.Weights)
	snap := e.engine.Current()
	ranked, err := e.ranker.Search(ctx, snap, ranker.Query{
		Text:    req.Query,
		TopK:    req.Limit,
		Weights: w,
		Genres:  req.Genres,
	})
	if err != nil {
		return nil, err
	}
	res := e.enrich(snap, ranked)
	logger.FromContext(ctx).Debug("search executed",
		"query", req.Query,
		"limit", req.Limit,
		"genres", req.Genres,
		"results", len(res),
	)
	return &SearchResult{
		Kind:    KindSearch,
		Query:   req.Query,
		BuildID: snap.Meta().BuildID,
		Weights: w,
		Total:   len(res),
		Results: res,
	}, nil
}

// SimilarTo ranks every other indexed book against the one with isbn.
func (e *Executor) SimilarTo(ctx context.Context, isbn string, limit int, weights *ranker.Weights) (*SearchResult, error) {
	w := e.weights(weights)
	snap := e.engine.Current()
	ranked, err := e.ranker.SimilarTo(ctx, snap, isbn, limit, w)
	if err != nil {
		return nil, err
	}
	res := e.enrich(snap, ranked)
	return &SearchResult{
		Kind:    KindSimilar,
		ISBN:    isbn,
		BuildID: snap.Meta().BuildID,
		Weights: w,
		Total:   len(res),
		Results: res,
	}, nil
}

// RebuildIndex rebuilds, persists and swaps in a new snapshot.
func (e *Executor) RebuildIndex(ctx context.Context) (indexer.BuildStats, error) {
	return e.engine.Rebuild(ctx)
}

// Stats reports on the served index. Record store errors are logged and
// leave Records unset.
func (e *Executor) Stats(ctx context.Context) Stats {
	st := e.engine.Status()
	out := Stats{
		Indexed:        st.State == indexer.StateBuilt && st.Records > 0,
		Building:       st.Building,
		TotalIndexed:   st.Records,
		Skipped:        st.Skipped,
		Dimension:      st.Dimension,
		Model:          st.Model,
		VocabularySize: st.VocabularySize,
		BuildID:        st.BuildID,
		LastError:      st.LastError,
	}
	if out.Model == "" {
		out.Model = e.engine.Encoder().Model()
		out.Dimension = e.engine.Encoder().Dimension()
	}
	if !st.BuiltAt.IsZero() {
		t := st.BuiltAt
		out.BuiltAt = &t
	}
	if e.store != nil {
		rs, err := e.store.Stats(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("record store stats unavailable", "error", err)
		} else {
			out.Records = &rs
		}
	}
	return out
}

func (e *Executor) weights(w *ranker.Weights) ranker.Weights {
	if w == nil {
		return e.defaults
	}
	return *w
}

func (e *Executor) enrich(snap *snapshot.Snapshot, ranked []ranker.ScoredDoc) []Result {
	out := make([]Result, len(ranked))
	for i, d := range ranked {
		entry, _ := snap.RecordAt(d.Position)
		out[i] = Result{
			ISBN:          entry.ISBN,
			Title:         entry.Title,
			Authors:       entry.Authors,
			Genres:        entry.Genres,
			PublishDate:   entry.PublishDate,
			Score:         d.Score,
			SemanticScore: d.DenseScore,
			KeywordScore:  d.LexicalScore,
		}
	}
	return out
}
