// Package snapshot holds the immutable, position-aligned index produced by
// one rebuild: record metadata, a dense embedding matrix, one sparse TF-IDF
// vector per record and the fitted vectorizer those vectors share.
package snapshot

import (
	"fmt"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/lexical"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

// Entry is the record metadata stored at one position.
type Entry struct {
	ISBN        string   `json:"isbn"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	PublishDate string   `json:"publish_date,omitempty"`
}

// Meta describes how and when a snapshot was built.
type Meta struct {
	BuildID   string    `json:"build_id"`
	CreatedAt time.Time `json:"created_at"`
	Model     string    `json:"model"`
	Skipped   int       `json:"skipped"`
}

// Score is the pair of similarities between a query and the record at
// Position.
type Score struct {
	Position int
	Dense    float64
	Lexical  float64
}

// Snapshot is never mutated after New returns, so any number of readers may
// share it.
type Snapshot struct {
	meta       Meta
	entries    []Entry
	dim        int
	dense      []float32 // len(entries) rows of dim values
	lexical    []lexical.Vector
	vectorizer *lexical.Vectorizer
	positions  map[string]int
}

// New assembles a snapshot. entries, dense and lex must be aligned by
// position. Dense rows are L2-normalised on the way in.
func New(meta Meta, entries []Entry, dense [][]float32, lex []lexical.Vector, vec *lexical.Vectorizer) (*Snapshot, error) {
	n := len(entries)
	if len(dense) != n || len(lex) != n {
		return nil, fmt.Errorf("%w: %d entries, %d dense rows, %d lexical rows",
			apperrors.ErrCorruptSnapshot, n, len(dense), len(lex))
	}
	if vec == nil || !vec.Fitted() {
		return nil, fmt.Errorf("%w: vectorizer is not fitted", apperrors.ErrCorruptSnapshot)
	}
	dim := 0
	if n > 0 {
		dim = len(dense[0])
		if dim == 0 {
			return nil, fmt.Errorf("%w: zero-length embeddings", apperrors.ErrCorruptSnapshot)
		}
	}

	s := &Snapshot{
		meta:       meta,
		entries:    entries,
		dim:        dim,
		dense:      make([]float32, n*dim),
		lexical:    lex,
		vectorizer: vec,
		positions:  make(map[string]int, n),
	}
	vocab := int32(vec.VocabularySize())
	for i, e := range entries {
		if _, dup := s.positions[e.ISBN]; dup {
			return nil, fmt.Errorf("%w: duplicate record %q", apperrors.ErrCorruptSnapshot, e.ISBN)
		}
		s.positions[e.ISBN] = i
		if len(dense[i]) != dim {
			return nil, fmt.Errorf("%w: row %d has dimension %d, want %d",
				apperrors.ErrCorruptSnapshot, i, len(dense[i]), dim)
		}
		normalizeInto(s.dense[i*dim:(i+1)*dim], dense[i])
		for _, idx := range lex[i].Indices {
			if idx < 0 || idx >= vocab {
				return nil, fmt.Errorf("%w: row %d references term %d outside vocabulary of %d",
					apperrors.ErrCorruptSnapshot, i, idx, vocab)
			}
		}
	}
	return s, nil
}

// Len returns the number of indexed records. A nil snapshot has none.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

func (s *Snapshot) Meta() Meta { return s.meta }

// Dimension returns the dense vector length.
func (s *Snapshot) Dimension() int { return s.dim }

// Vectorizer returns the frozen lexical model queries must be projected with.
func (s *Snapshot) Vectorizer() *lexical.Vectorizer { return s.vectorizer }

// RecordAt translates a position back to its record.
func (s *Snapshot) RecordAt(pos int) (Entry, error) {
	if pos < 0 || pos >= s.Len() {
		return Entry{}, fmt.Errorf("position %d out of range [0, %d)", pos, s.Len())
	}
	return s.entries[pos], nil
}

// Position returns where isbn is stored.
func (s *Snapshot) Position(isbn string) (int, bool) {
	if s == nil {
		return 0, false
	}
	pos, ok := s.positions[isbn]
	return pos, ok
}

// DenseAt returns the stored unit vector at pos. The slice aliases snapshot
// memory and must not be modified.
func (s *Snapshot) DenseAt(pos int) []float32 {
	return s.dense[pos*s.dim : (pos+1)*s.dim : (pos+1)*s.dim]
}

// LexicalAt returns the stored sparse vector at pos.
func (s *Snapshot) LexicalAt(pos int) lexical.Vector {
	return s.lexical[pos]
}

// SimilarityScores returns the dense and lexical cosine similarity of the
// query against every record, in position order. The dense query is
// normalised first. An empty or missing snapshot yields ErrNotIndexed.
func (s *Snapshot) SimilarityScores(queryDense []float32, queryLexical lexical.Vector) ([]Score, error) {
	if s.Len() == 0 {
		return nil, apperrors.ErrNotIndexed
	}
	if len(queryDense) != s.dim {
		return nil, apperrors.Invalid("query", "embedding has dimension %d, index has %d", len(queryDense), s.dim)
	}
	q := make([]float32, s.dim)
	normalizeInto(q, queryDense)

	scores := make([]Score, len(s.entries))
	for i := range s.entries {
		row := s.dense[i*s.dim : (i+1)*s.dim]
		var d float64
		for k, x := range row {
			d += float64(x) * float64(q[k])
		}
		scores[i] = Score{
			Position: i,
			Dense:    d,
			Lexical:  queryLexical.Dot(s.lexical[i]),
		}
	}
	return scores, nil
}

// normalizeInto writes src scaled to unit length into dst. Vectors already
// of unit length are copied unchanged so a reloaded snapshot is bit-identical
// to the one that was persisted.
func normalizeInto(dst, src []float32) {
	var sum float64
	for _, x := range src {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) < 1e-6 {
		copy(dst, src)
		return
	}
	if sum == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range src {
		dst[i] = float32(float64(x) * inv)
	}
}
