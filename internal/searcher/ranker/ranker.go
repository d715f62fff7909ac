// Package ranker implements hybrid retrieval over an index snapshot: each
// record's dense (semantic) and lexical (keyword) cosine similarities to the
// query are fused as semantic*α + keyword*β, sorted with a stable tie-break
// on snapshot position and truncated to the requested size.
package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/encoder"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
	DefaultMaxResults     = 1000
	DefaultMaxWeight      = 10.0
)

// Weights are raw multipliers for the two similarity scores. They need not
// sum to one.
type Weights struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
}

// DefaultWeights returns the 0.7/0.3 split.
func DefaultWeights() Weights {
	return Weights{Semantic: DefaultSemanticWeight, Keyword: DefaultKeywordWeight}
}

// ScoredDoc is one ranked record with its score breakdown.
type ScoredDoc struct {
	ID           string  `json:"isbn"`
	Position     int     `json:"-"`
	Score        float64 `json:"score"`
	DenseScore   float64 `json:"semantic_score"`
	LexicalScore float64 `json:"keyword_score"`
}

// Query is a free-text search request.
type Query struct {
	Text    string
	TopK    int
	Weights Weights
	// Genres, when set, keeps only records with a genre containing any of
	// these values, case-insensitively.
	Genres []string
}

// Limits bound what a caller may ask for.
type Limits struct {
	MaxResults int
	MaxWeight  float64
}

// Ranker ranks snapshot records against queries. It is stateless apart from
// the encoder, so one Ranker serves any number of snapshots and goroutines.
type Ranker struct {
	enc    encoder.Encoder
	limits Limits
}

// New returns a Ranker that embeds queries with enc.
func New(enc encoder.Encoder, limits Limits) *Ranker {
	if limits.MaxResults <= 0 {
		limits.MaxResults = DefaultMaxResults
	}
	if limits.MaxWeight <= 0 {
		limits.MaxWeight = DefaultMaxWeight
	}
	return &Ranker{enc: enc, limits: limits}
}

// Limits returns the effective limits.
func (r *Ranker) Limits() Limits { return r.limits }

// Search ranks every record in snap against q. Input is validated before the
// snapshot is touched; an empty or missing snapshot yields ErrNotIndexed.
// When TopK exceeds the number of matching records all of them are returned,
// including those scoring zero.
func (r *Ranker) Search(ctx context.Context, snap *snapshot.Snapshot, q Query) ([]ScoredDoc, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, apperrors.Invalid("query", "must not be empty")
	}
	if err := r.Validate(q.TopK, q.Weights); err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, apperrors.ErrNotIndexed
	}

	qLex, err := snap.Vectorizer().Transform(q.Text)
	if err != nil {
		return nil, err
	}
	qDense, err := r.enc.Encode(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	scores, err := snap.SimilarityScores(qDense, qLex)
	if err != nil {
		return nil, err
	}

	var keep func(pos int) bool
	if genres := normalizeGenres(q.Genres); len(genres) > 0 {
		keep = func(pos int) bool {
			e, _ := snap.RecordAt(pos)
			return matchesGenre(e.Genres, genres)
		}
	}
	return fuse(snap, scores, q.Weights, q.TopK, keep), nil
}

// SimilarTo ranks every other record against the stored vectors of the
// record with id. The record itself is never returned.
func (r *Ranker) SimilarTo(ctx context.Context, snap *snapshot.Snapshot, id string, topK int, w Weights) ([]ScoredDoc, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.Invalid("isbn", "must not be empty")
	}
	if err := r.Validate(topK, w); err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, apperrors.ErrNotIndexed
	}
	seed, ok := snap.Position(id)
	if !ok {
		return nil, apperrors.NotFound("book", id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores, err := snap.SimilarityScores(snap.DenseAt(seed), snap.LexicalAt(seed))
	if err != nil {
		return nil, err
	}
	return fuse(snap, scores, w, topK, func(pos int) bool { return pos != seed }), nil
}

// Validate checks a result size and weight pair against the limits.
func (r *Ranker) Validate(topK int, w Weights) error {
	if topK < 1 || topK > r.limits.MaxResults {
		return apperrors.Invalid("limit", "must be between 1 and %d, got %d", r.limits.MaxResults, topK)
	}
	if err := checkWeight("semantic_weight", w.Semantic, r.limits.MaxWeight); err != nil {
		return err
	}
	if err := checkWeight("keyword_weight", w.Keyword, r.limits.MaxWeight); err != nil {
		return err
	}
	if w.Semantic == 0 && w.Keyword == 0 {
		return apperrors.Invalid("weights", "semantic and keyword weights cannot both be zero")
	}
	return nil
}

func checkWeight(field string, v, max float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return apperrors.Invalid(field, "must be a finite number")
	}
	if v < 0 || v > max {
		return apperrors.Invalid(field, "must be between 0 and %g, got %g", max, v)
	}
	return nil
}

// fuse combines the component scores of records accepted by keep, sorts them
// by fused score with ties in position order and keeps the first topK.
func fuse(snap *snapshot.Snapshot, scores []snapshot.Score, w Weights, topK int, keep func(pos int) bool) []ScoredDoc {
	out := make([]ScoredDoc, 0, len(scores))
	for _, s := range scores {
		if keep != nil && !keep(s.Position) {
			continue
		}
		e, _ := snap.RecordAt(s.Position)
		out = append(out, ScoredDoc{
			ID:           e.ISBN,
			Position:     s.Position,
			Score:        w.Semantic*s.Dense + w.Keyword*s.Lexical,
			DenseScore:   s.Dense,
			LexicalScore: s.Lexical,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func normalizeGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		if g = strings.ToLower(strings.TrimSpace(g)); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func matchesGenre(recordGenres, wanted []string) bool {
	for _, have := range recordGenres {
		have = strings.ToLower(have)
		for _, w := range wanted {
			if strings.Contains(have, w) {
				return true
			}
		}
	}
	return false
}
