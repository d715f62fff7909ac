// Package lexical implements the keyword relevance model: a TF-IDF
// vectorizer whose vocabulary is fitted once over the indexed corpus and then
// frozen, so query vectors share the corpus vectors' dimensions.
package lexical

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

// ErrAlreadyFitted is returned by FitTransform on a fitted vectorizer.
var ErrAlreadyFitted = errors.New("vectorizer vocabulary is frozen")

// Options controls vocabulary construction.
type Options struct {
	// MaxFeatures caps the vocabulary; the most frequent terms across the
	// corpus are kept, ties broken alphabetically.
	MaxFeatures int `json:"max_features"`
	// NGramMax is the longest word n-gram indexed (1 = unigrams only).
	NGramMax int `json:"ngram_max"`
	// MinDocFreq drops terms found in fewer documents.
	MinDocFreq int `json:"min_doc_freq"`
	// MaxDocFreqRatio drops terms found in a larger share of documents.
	MaxDocFreqRatio float64 `json:"max_doc_freq_ratio"`
}

// DefaultOptions returns a 5000-term unigram+bigram vocabulary with no
// document-frequency pruning.
func DefaultOptions() Options {
	return Options{
		MaxFeatures:     5000,
		NGramMax:        2,
		MinDocFreq:      1,
		MaxDocFreqRatio: 1.0,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFeatures <= 0 {
		o.MaxFeatures = d.MaxFeatures
	}
	if o.NGramMax <= 0 {
		o.NGramMax = d.NGramMax
	}
	if o.MinDocFreq <= 0 {
		o.MinDocFreq = d.MinDocFreq
	}
	if o.MaxDocFreqRatio <= 0 || o.MaxDocFreqRatio > 1 {
		o.MaxDocFreqRatio = d.MaxDocFreqRatio
	}
	return o
}

// Vectorizer maps text to sparse TF-IDF vectors. It starts unfit; FitTransform
// builds the vocabulary exactly once, after which the vectorizer is read-only
// and safe for concurrent Transform calls.
type Vectorizer struct {
	opts   Options
	vocab  map[string]int32
	terms  []string
	idf    []float64
	fitted bool
}

// New returns an unfit vectorizer.
func New(opts Options) *Vectorizer {
	return &Vectorizer{opts: opts.withDefaults()}
}

// Restore rebuilds a fitted vectorizer from a persisted vocabulary. terms must
// be in index order and aligned with idf.
func Restore(opts Options, terms []string, idf []float64) (*Vectorizer, error) {
	if len(terms) == 0 {
		return nil, apperrors.ErrEmptyVocabulary
	}
	if len(terms) != len(idf) {
		return nil, fmt.Errorf("%w: %d terms but %d idf weights", apperrors.ErrCorruptSnapshot, len(terms), len(idf))
	}
	vocab := make(map[string]int32, len(terms))
	for i, term := range terms {
		if _, dup := vocab[term]; dup {
			return nil, fmt.Errorf("%w: duplicate vocabulary term %q", apperrors.ErrCorruptSnapshot, term)
		}
		vocab[term] = int32(i)
	}
	return &Vectorizer{
		opts:   opts.withDefaults(),
		vocab:  vocab,
		terms:  append([]string(nil), terms...),
		idf:    append([]float64(nil), idf...),
		fitted: true,
	}, nil
}

// Fitted reports whether the vocabulary has been built.
func (v *Vectorizer) Fitted() bool { return v.fitted }

// Options returns the effective options.
func (v *Vectorizer) Options() Options { return v.opts }

// VocabularySize returns the number of terms, or 0 when unfit.
func (v *Vectorizer) VocabularySize() int { return len(v.terms) }

// Terms returns the vocabulary in index order. The slice must not be
// modified.
func (v *Vectorizer) Terms() []string { return v.terms }

// IDF returns the inverse document frequency of each term in index order.
// The slice must not be modified.
func (v *Vectorizer) IDF() []float64 { return v.idf }

// Term returns the vocabulary term at index i.
func (v *Vectorizer) Term(i int32) string { return v.terms[i] }

// analyze returns the n-gram term counts of one document.
func (v *Vectorizer) analyze(text string) map[string]int {
	grams := tokenizer.NGrams(tokenizer.Terms(text), v.opts.NGramMax)
	counts := make(map[string]int, len(grams))
	for _, g := range grams {
		counts[g]++
	}
	return counts
}

// FitTransform builds the vocabulary from docs and returns one vector per
// document, in order. It fails with ErrEmptyVocabulary when no term survives
// pruning.
func (v *Vectorizer) FitTransform(ctx context.Context, docs []string) ([]Vector, error) {
	if v.fitted {
		return nil, ErrAlreadyFitted
	}
	if len(docs) == 0 {
		return nil, apperrors.ErrEmptyVocabulary
	}

	counts := make([]map[string]int, len(docs))
	if err := parallelFor(ctx, len(docs), func(i int) {
		counts[i] = v.analyze(docs[i])
	}); err != nil {
		return nil, err
	}

	df := make(map[string]int)
	freq := make(map[string]int)
	for _, c := range counts {
		for term, n := range c {
			df[term]++
			freq[term] += n
		}
	}

	n := len(docs)
	maxDF := int(math.Floor(v.opts.MaxDocFreqRatio * float64(n)))
	if v.opts.MaxDocFreqRatio >= 1 {
		maxDF = n
	}
	kept := make([]string, 0, len(df))
	for term, d := range df {
		if d >= v.opts.MinDocFreq && d <= maxDF {
			kept = append(kept, term)
		}
	}
	if len(kept) == 0 {
		return nil, apperrors.ErrEmptyVocabulary
	}

	sort.Strings(kept)
	if len(kept) > v.opts.MaxFeatures {
		sort.SliceStable(kept, func(i, j int) bool {
			return freq[kept[i]] > freq[kept[j]]
		})
		kept = kept[:v.opts.MaxFeatures]
		sort.Strings(kept)
	}

	v.terms = kept
	v.vocab = make(map[string]int32, len(kept))
	v.idf = make([]float64, len(kept))
	for i, term := range kept {
		v.vocab[term] = int32(i)
		v.idf[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}
	v.fitted = true

	out := make([]Vector, len(docs))
	if err := parallelFor(ctx, len(docs), func(i int) {
		out[i] = v.weigh(counts[i])
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Transform projects text onto the frozen vocabulary. Terms outside the
// vocabulary are dropped; text with no known terms yields a zero vector.
// Calling Transform before FitTransform returns ErrNotIndexed.
func (v *Vectorizer) Transform(text string) (Vector, error) {
	if !v.fitted {
		return Vector{}, fmt.Errorf("lexical transform: %w", apperrors.ErrNotIndexed)
	}
	return v.weigh(v.analyze(text)), nil
}

// weigh turns raw counts into an L2-normalised tf-idf vector.
func (v *Vectorizer) weigh(counts map[string]int) Vector {
	indices := make([]int32, 0, len(counts))
	for term := range counts {
		if idx, ok := v.vocab[term]; ok {
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		return Vector{}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	weights := make([]float64, len(indices))
	for k, idx := range indices {
		weights[k] = float64(counts[v.terms[idx]]) * v.idf[idx]
	}
	normalize(weights)

	values := make([]float32, len(weights))
	for k, w := range weights {
		values[k] = float32(w)
	}
	return Vector{Indices: indices, Values: values}
}

// parallelFor runs fn(i) for i in [0, n) across GOMAXPROCS workers, stopping
// early if ctx is cancelled.
func parallelFor(ctx context.Context, n int, fn func(i int)) error {
	if n == 0 {
		return nil
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	g, ctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		lo, hi := start, min(start+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}
