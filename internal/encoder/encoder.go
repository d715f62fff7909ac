// Package encoder maps text to fixed-length dense vectors. A Model wraps an
// embedding Provider with an explicit initialisation step, input checks,
// batching, an LRU cache and L2 normalisation, so every provider yields unit
// vectors that are identical whether encoded alone or in a batch.
package encoder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

// ErrNotReady is returned by Encode and EncodeBatch before Init succeeds.
var ErrNotReady = fmt.Errorf("encoder not initialised: %w", apperrors.ErrUnavailable)

// State is the lifecycle state of an Encoder.
type State int32

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Encoder is the contract the index builder and the ranker depend on.
type Encoder interface {
	Init(ctx context.Context) error
	State() State
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// Provider produces raw embeddings for a batch of texts, one vector per text
// in input order. Vectors need not be normalised.
type Provider interface {
	Name() string
	Model() string
	// Dimension returns the vector length, or 0 if it is only known after
	// the first call.
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Pinger is implemented by providers that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes a Model.
type Options struct {
	BatchSize   int
	Concurrency int
	CacheSize   int
}

// Model is the Encoder implementation used by the services.
type Model struct {
	provider Provider
	opts     Options
	cache    *Cache

	initMu sync.Mutex
	state  atomic.Int32
	dim    atomic.Int64
}

var _ Encoder = (*Model)(nil)

// New wraps p. The returned Model is uninitialised until Init is called.
func New(p Provider, opts Options) *Model {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Model{
		provider: p,
		opts:     opts,
		cache:    NewCache(opts.CacheSize),
	}
}

// Init resolves the vector dimension, probing the provider when it does not
// declare one, and moves the model to StateReady. It is safe to call more
// than once.
func (m *Model) Init(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.State() == StateReady {
		return nil
	}

	dim := m.provider.Dimension()
	if dim <= 0 {
		vecs, err := m.provider.Embed(ctx, []string{"dimension probe"})
		if err != nil {
			return fmt.Errorf("probing %s embedding dimension: %w", m.provider.Name(), err)
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return fmt.Errorf("probing %s embedding dimension: empty response", m.provider.Name())
		}
		dim = len(vecs[0])
	}
	m.dim.Store(int64(dim))
	m.state.Store(int32(StateReady))
	return nil
}

func (m *Model) State() State { return State(m.state.Load()) }

// Dimension returns the vector length, or 0 before Init.
func (m *Model) Dimension() int { return int(m.dim.Load()) }

func (m *Model) Model() string { return m.provider.Model() }

// Provider returns the backing provider's name.
func (m *Model) Provider() string { return m.provider.Name() }

// CacheLen returns the number of cached vectors.
func (m *Model) CacheLen() int { return m.cache.Len() }

// Ping reports whether the model is ready and its backend reachable.
func (m *Model) Ping(ctx context.Context) error {
	if m.State() != StateReady {
		return ErrNotReady
	}
	if p, ok := m.provider.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Encode returns the unit-length embedding of text. Blank text is rejected.
func (m *Model) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts in provider batches of Options.BatchSize, running
// up to Options.Concurrency batches at once. The result is aligned with
// texts. Any blank text fails the whole call before the provider is used.
func (m *Model) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.State() != StateReady {
		return nil, ErrNotReady
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, apperrors.Invalid("text", "text at index %d is empty", i)
		}
	}

	model := m.provider.Model()
	out := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, t := range texts {
		if vec, ok := m.cache.Get(cacheKey(model, t)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	dim := m.Dimension()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for start := 0; start < len(missing); start += m.opts.BatchSize {
		batch := missing[start:min(start+m.opts.BatchSize, len(missing))]
		g.Go(func() error {
			in := make([]string, len(batch))
			for k, idx := range batch {
				in[k] = texts[idx]
			}
			vecs, err := m.provider.Embed(gctx, in)
			if err != nil {
				return fmt.Errorf("%s embed: %w", m.provider.Name(), err)
			}
			if len(vecs) != len(in) {
				return fmt.Errorf("%s embed: got %d vectors for %d texts", m.provider.Name(), len(vecs), len(in))
			}
			for k, idx := range batch {
				if len(vecs[k]) != dim {
					return fmt.Errorf("%s embed: vector has dimension %d, want %d", m.provider.Name(), len(vecs[k]), dim)
				}
				vec := Normalize(vecs[k])
				m.cache.Add(cacheKey(model, texts[idx]), vec)
				out[idx] = vec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Normalize returns a unit-length copy of v. A zero vector is returned as
// zeros.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
