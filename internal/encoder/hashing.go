package encoder

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/tokenizer"
)

const (
	ProviderHashing         = "hashing"
	DefaultHashingModel     = "feature-hashing-v1"
	DefaultHashingDimension = 384
)

// Feature weights. Character trigrams let related word forms share
// dimensions; bigrams keep some word order.
const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.3
)

// HashingProvider is an offline, deterministic encoder that projects stemmed
// terms, term bigrams and character trigrams into a fixed number of buckets
// with signed feature hashing.
type HashingProvider struct {
	model string
	dim   int
}

// NewHashingProvider returns a hashing provider with dim buckets.
func NewHashingProvider(model string, dim int) *HashingProvider {
	if model == "" {
		model = DefaultHashingModel
	}
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &HashingProvider{model: model, dim: dim}
}

func (h *HashingProvider) Name() string   { return ProviderHashing }
func (h *HashingProvider) Model() string  { return h.model }
func (h *HashingProvider) Dimension() int { return h.dim }

func (h *HashingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashingProvider) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	terms := tokenizer.Terms(text)
	for i, term := range terms {
		h.add(vec, "w:"+term, unigramWeight)
		if i > 0 {
			h.add(vec, "b:"+terms[i-1]+" "+term, bigramWeight)
		}
		padded := "#" + term + "#"
		for j := 0; j+3 <= len(padded); j++ {
			h.add(vec, "c:"+padded[j:j+3], trigramWeight)
		}
	}
	return vec
}

// add hashes feature into a bucket; the top bit of the hash picks the sign so
// collisions tend to cancel rather than accumulate.
func (h *HashingProvider) add(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	hasher.Write([]byte(strings.ToLower(feature)))
	sum := hasher.Sum64()
	bucket := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
