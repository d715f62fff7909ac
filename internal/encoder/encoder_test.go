package encoder

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

func readyModel(t *testing.T, p Provider, opts Options) *Model {
	t.Helper()
	m := New(p, opts)
	require.NoError(t, m.Init(context.Background()))
	return m
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEncodeRequiresInit(t *testing.T) {
	m := New(NewHashingProvider("", 64), Options{})
	assert.Equal(t, StateUninitialized, m.State())
	_, err := m.Encode(context.Background(), "dragons")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)

	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, 64, m.Dimension())
}

func TestEncodeRejectsBlankText(t *testing.T) {
	m := readyModel(t, NewHashingProvider("", 64), Options{})
	_, err := m.Encode(context.Background(), "   \t")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = m.EncodeBatch(context.Background(), []string{"fine", ""})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestHashingIsDeterministicAndUnitLength(t *testing.T) {
	a := readyModel(t, NewHashingProvider("", 384), Options{})
	b := readyModel(t, NewHashingProvider("", 384), Options{CacheSize: 0})

	v1, err := a.Encode(context.Background(), "A book about robots in space")
	require.NoError(t, err)
	v2, err := b.Encode(context.Background(), "A book about robots in space")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 384)
	assert.InDelta(t, 1.0, norm(v1), 1e-5)
}

func TestBatchMatchesSingle(t *testing.T) {
	texts := []string{"robots in space", "a cookbook for beginners", "haunted lighthouse", "space pirates", "quiet village mystery"}
	batched := readyModel(t, NewHashingProvider("", 128), Options{BatchSize: 2, Concurrency: 3})
	single := readyModel(t, NewHashingProvider("", 128), Options{BatchSize: 1})

	got, err := batched.EncodeBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	for i, text := range texts {
		want, err := single.Encode(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, want, got[i], text)
	}
}

func TestHashingSemanticOverlap(t *testing.T) {
	m := readyModel(t, NewHashingProvider("", 384), Options{})
	q, _ := m.Encode(context.Background(), "robot in space")
	robots, _ := m.Encode(context.Background(), "A book about robots in space")
	cooking, _ := m.Encode(context.Background(), "A cookbook for beginners")
	assert.Greater(t, dot(q, robots), dot(q, cooking))
}

func TestStopWordOnlyTextIsZeroVector(t *testing.T) {
	m := readyModel(t, NewHashingProvider("", 32), Options{})
	v, err := m.Encode(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Zero(t, norm(v))
}

func TestCacheReturnsCopies(t *testing.T) {
	var calls atomic.Int32
	p := &countingProvider{HashingProvider: NewHashingProvider("", 16), calls: &calls}
	m := readyModel(t, p, Options{CacheSize: 10})

	v1, err := m.Encode(context.Background(), "lighthouse keeper")
	require.NoError(t, err)
	v1[0] = 42

	v2, err := m.Encode(context.Background(), "lighthouse keeper")
	require.NoError(t, err)
	assert.NotEqual(t, float32(42), v2[0])
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, m.CacheLen())
}

type countingProvider struct {
	*HashingProvider
	calls *atomic.Int32
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.HashingProvider.Embed(ctx, texts)
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// answer out of order; the provider must restore input order
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Embedding: []float32{float32(j + 1), 0, 0}, Index: j}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(srv.URL+"/v1", "sk-test", "", 0, 0, nil)
	require.NoError(t, err)
	m := readyModel(t, p, Options{BatchSize: 8})
	assert.Equal(t, 3, m.Dimension())

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	assert.Equal(t, []float32{2, 0, 0}, vecs[1])
}

func TestOpenAIClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(srv.URL, "bad", "", 3, 0, nil)
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req ollamaRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			out := make([][]float32, len(req.Input))
			for i := range out {
				out[i] = []float32{0, 3, 4}
			}
			_ = json.NewEncoder(w).Encode(ollamaResponse{Embeddings: out})
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := readyModel(t, NewOllamaProvider(srv.URL, "", 0, 0, nil), Options{})
	v, err := m.Encode(context.Background(), "gothic romance")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.6, 0.8}, v, 1e-6)
	assert.NoError(t, m.Ping(context.Background()))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Encoder
	m, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderHashing, m.Provider())
	assert.Equal(t, DefaultHashingModel, m.Model())

	cfg.Provider = "word2vec"
	_, err = FromConfig(cfg, nil)
	assert.Error(t, err)

	cfg.Provider = ProviderOpenAI
	cfg.APIKey, cfg.BaseURL = "", ""
	_, err = FromConfig(cfg, nil)
	assert.Error(t, err)
}
