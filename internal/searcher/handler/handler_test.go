package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/encoder"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/lexical"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = map[string]string{}
	return n, nil
}

type testServer struct {
	mux        *http.ServeMux
	exec       *executor.Executor
	cache      *cache.QueryCache
	aggregator *analytics.Aggregator
	collector  *analytics.Collector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store, err := records.OpenSQLite(ctx, filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.UpsertBatch(ctx, []records.Record{
		{ISBN: "1", Title: "Robots", Description: "A book about robots in space", Genres: []string{"Science Fiction"}},
		{ISBN: "2", Title: "Cooking", Description: "A cookbook for beginners", Genres: []string{"Food"}},
		{ISBN: "3", Title: "Blank"},
	})
	require.NoError(t, err)

	enc := encoder.New(encoder.NewHashingProvider("", 128), encoder.Options{})
	engine := indexer.NewEngine(store, enc, indexer.Options{
		Indexer: config.IndexerConfig{DataDir: filepath.Join(t.TempDir(), "index")},
		Lexical: lexical.DefaultOptions(),
	})
	exec := executor.New(engine, ranker.New(enc, ranker.Limits{MaxResults: 50}), store, ranker.DefaultWeights())

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	qc := cache.New(&memBackend{data: map[string]string{}}, time.Minute, m)
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(kafka.NopPublisher{}, analytics.CollectorOptions{Local: agg, BatchSize: 1})
	collector.Start(ctx)
	t.Cleanup(collector.Close)
	engine.OnSwap(func(ctx context.Context, _ *snapshot.Snapshot, _ indexer.BuildStats) {
		_ = qc.Invalidate(ctx)
	})

	h := New(exec, store, qc, collector, m, Options{DefaultLimit: 10, SimilarLimit: 5, MaxResults: 50})
	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{mux: mux, exec: exec, cache: qc, aggregator: agg, collector: collector}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (s *testServer) rebuild(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/index/rebuild", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSearchBeforeRebuildIsServiceUnavailable(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/search?q=robots", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_indexed", decode[apperrors.ErrorBody](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, false, decode[map[string]any](t, rec)["indexed"])
}

func TestRebuildThenSearch(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/index/rebuild", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), body["records_indexed"])
	assert.Equal(t, float64(1), body["records_skipped"])

	rec = s.do(t, http.MethodGet, "/api/v1/search?q=robot+in+space&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[executor.SearchResult](t, rec)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "1", res.Results[0].ISBN)
	assert.Equal(t, "Robots", res.Results[0].Title)

	rec = s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, true, decode[map[string]any](t, rec)["indexed"])
}

func TestSearchValidation(t *testing.T) {
	s := newTestServer(t)
	s.rebuild(t)

	tests := []struct {
		name, target, field string
	}{
		{"empty query", "/api/v1/search?q=", "query"},
		{"zero limit", "/api/v1/search?q=robots&limit=0", "limit"},
		{"limit over max", "/api/v1/search?q=robots&limit=51", "limit"},
		{"non-numeric limit", "/api/v1/search?q=robots&limit=ten", "limit"},
		{"negative weight", "/api/v1/search?q=robots&semantic_weight=-1", "semantic_weight"},
		{"bad weight", "/api/v1/search?q=robots&keyword_weight=abc", "keyword_weight"},
		{"both zero", "/api/v1/search?q=robots&semantic_weight=0&keyword_weight=0", "weights"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[apperrors.ErrorBody](t, rec)
			assert.Equal(t, "invalid_input", body.Code)
			assert.Equal(t, tt.field, body.Field)
		})
	}
}

func TestSearchJSONWithGenreFilter(t *testing.T) {
	s := newTestServer(t)
	s.rebuild(t)

	rec := s.do(t, http.MethodPost, "/api/v1/search", `{"query":"book","limit":5,"genres":["food"],"keyword_weight":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[executor.SearchResult](t, rec)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "2", res.Results[0].ISBN)
	assert.Equal(t, ranker.Weights{Semantic: ranker.DefaultSemanticWeight, Keyword: 1}, res.Weights)

	rec = s.do(t, http.MethodPost, "/api/v1/search", `{"query":"book","limit":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/search", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchIsCachedPerBuild(t *testing.T) {
	s := newTestServer(t)
	s.rebuild(t)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodGet, "/api/v1/search?q=robots", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	hits, misses := s.cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	rec := s.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	assert.Equal(t, "50.0%", decode[map[string]any](t, rec)["hit_rate"])

	rec = s.do(t, http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSimilar(t *testing.T) {
	s := newTestServer(t)
	s.rebuild(t)

	rec := s.do(t, http.MethodGet, "/api/v1/books/1/similar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[executor.SearchResult](t, rec)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "2", res.Results[0].ISBN)
	assert.Equal(t, "1", res.ISBN)

	rec = s.do(t, http.MethodGet, "/api/v1/books/404/similar", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[apperrors.ErrorBody](t, rec).Code)
}

func TestBooksRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/books/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cooking", decode[records.Record](t, rec).Title)

	rec = s.do(t, http.MethodGet, "/api/v1/books/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/books?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["total"])

	rec = s.do(t, http.MethodGet, "/api/v1/books?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsRoute(t *testing.T) {
	s := newTestServer(t)
	s.rebuild(t)

	rec := s.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[executor.Stats](t, rec)
	assert.True(t, st.Indexed)
	assert.Equal(t, 2, st.TotalIndexed)
	assert.Equal(t, 128, st.Dimension)
	require.NotNil(t, st.Records)
	assert.Equal(t, 3, st.Records.Total)
}

func TestSearchEventsAreTracked(t *testing.T) {
	s := newTestServer(t)
	s.rebuild(t)

	s.do(t, http.MethodGet, "/api/v1/search?q=robots", "")
	s.do(t, http.MethodGet, "/api/v1/search?q=", "")
	s.do(t, http.MethodGet, "/api/v1/books/1/similar", "")

	require.Eventually(t, func() bool {
		st := s.aggregator.Stats()
		return st.TotalSearches == 2 && st.TotalSimilar == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "robots", s.aggregator.Stats().TopQueries[0].Query)
}

func TestOutcomeOf(t *testing.T) {
	ok := &executor.SearchResult{Results: []executor.Result{{ISBN: "1"}}}
	empty := &executor.SearchResult{}
	assert.Equal(t, analytics.OutcomeOK, outcomeOf(ok, nil))
	assert.Equal(t, analytics.OutcomeZeroResult, outcomeOf(empty, nil))
	assert.Equal(t, analytics.OutcomeInvalid, outcomeOf(nil, apperrors.Invalid("limit", "bad")))
	assert.Equal(t, analytics.OutcomeNotIndexed, outcomeOf(nil, apperrors.ErrNotIndexed))
	assert.Equal(t, analytics.OutcomeNotFound, outcomeOf(nil, apperrors.NotFound("book", "x")))
	assert.Equal(t, analytics.OutcomeError, outcomeOf(nil, context.DeadlineExceeded))
}
