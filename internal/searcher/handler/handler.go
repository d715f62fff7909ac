package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/middleware"
)

const (
	defaultListLimit = 20
	maxBodyBytes     = 1 << 20
)

// SearchService is satisfied by *executor.Executor.
type SearchService interface {
	Search(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
	SimilarTo(ctx context.Context, isbn string, limit int, weights *ranker.Weights) (*executor.SearchResult, error)
	RebuildIndex(ctx context.Context) (indexer.BuildStats, error)
	Stats(ctx context.Context) executor.Stats
	BuildID() string
	DefaultWeights() ranker.Weights
}

// BookReader is the part of records.Store the book routes read.
type BookReader interface {
	Get(ctx context.Context, isbn string) (records.Record, error)
	List(ctx context.Context, limit int) ([]records.Record, error)
}

// Options holds request defaults.
type Options struct {
	DefaultLimit int
	SimilarLimit int
	MaxResults   int
}

// Handler serves the search API. Cache, collector, books and metrics are
// optional.
type Handler struct {
	svc       SearchService
	books     BookReader
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	opts      Options
	logger    *slog.Logger
}

func New(svc SearchService, books BookReader, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.SimilarLimit <= 0 {
		opts.SimilarLimit = 5
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = ranker.DefaultMaxResults
	}
	return &Handler{
		svc:       svc,
		books:     books,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		opts:      opts,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the search, book, index, stats and cache routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search", h.SearchJSON)
	mux.HandleFunc("GET /api/v1/books/{isbn}/similar", h.Similar)
	mux.HandleFunc("GET /api/v1/books/{isbn}", h.GetBook)
	mux.HandleFunc("GET /api/v1/books", h.ListBooks)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

// searchBody is the JSON form of a search. Pointers tell an explicit zero
// from an omitted field.
type searchBody struct {
	Query          string   `json:"query"`
	Limit          *int     `json:"limit"`
	SemanticWeight *float64 `json:"semantic_weight"`
	KeywordWeight  *float64 `json:"keyword_weight"`
	Genres         []string `json:"genres"`
}

// Search handles GET /api/v1/search?q=&limit=&semantic_weight=&keyword_weight=&genre=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", h.opts.DefaultLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	weights, err := h.weightParams(q.Get("semantic_weight"), q.Get("keyword_weight"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	var genres []string
	for _, g := range q["genre"] {
		genres = append(genres, strings.Split(g, ",")...)
	}
	h.search(w, r, executor.Request{Query: q.Get("q"), Limit: limit, Weights: &weights, Genres: genres})
}

// SearchJSON handles POST /api/v1/search.
func (h *Handler) SearchJSON(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.writeError(w, apperrors.Invalid("body", "invalid JSON body"))
		return
	}
	limit := h.opts.DefaultLimit
	if body.Limit != nil {
		limit = *body.Limit
	}
	weights := h.svc.DefaultWeights()
	if body.SemanticWeight != nil {
		weights.Semantic = *body.SemanticWeight
	}
	if body.KeywordWeight != nil {
		weights.Keyword = *body.KeywordWeight
	}
	h.search(w, r, executor.Request{Query: body.Query, Limit: limit, Weights: &weights, Genres: body.Genres})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, req executor.Request) {
	start := time.Now()
	ctx := r.Context()
	key := cache.Key{
		Kind:     executor.KindSearch,
		Query:    req.Query,
		Limit:    req.Limit,
		Semantic: req.Weights.Semantic,
		Keyword:  req.Weights.Keyword,
		Genres:   req.Genres,
		BuildID:  h.svc.BuildID(),
	}
	result, hit, err := h.compute(ctx, key, func(ctx context.Context) (*executor.SearchResult, error) {
		return h.svc.Search(ctx, req)
	})
	h.observe(ctx, analytics.SearchEvent{
		Type:           analytics.EventSearch,
		Query:          req.Query,
		Limit:          req.Limit,
		SemanticWeight: req.Weights.Semantic,
		KeywordWeight:  req.Weights.Keyword,
		Genres:         req.Genres,
	}, result, hit, err, start)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Similar handles GET /api/v1/books/{isbn}/similar?limit=.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	isbn := r.PathValue("isbn")
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", h.opts.SimilarLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	weights, err := h.weightParams(q.Get("semantic_weight"), q.Get("keyword_weight"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	key := cache.Key{
		Kind:     executor.KindSimilar,
		ISBN:     isbn,
		Limit:    limit,
		Semantic: weights.Semantic,
		Keyword:  weights.Keyword,
		BuildID:  h.svc.BuildID(),
	}
	result, hit, err := h.compute(ctx, key, func(ctx context.Context) (*executor.SearchResult, error) {
		return h.svc.SimilarTo(ctx, isbn, limit, &weights)
	})
	h.observe(ctx, analytics.SearchEvent{
		Type:           analytics.EventSimilar,
		ISBN:           isbn,
		Limit:          limit,
		SemanticWeight: weights.Semantic,
		KeywordWeight:  weights.Keyword,
	}, result, hit, err, start)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetBook handles GET /api/v1/books/{isbn}.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	if h.books == nil {
		h.writeError(w, apperrors.ErrUnavailable)
		return
	}
	rec, err := h.books.Get(r.Context(), r.PathValue("isbn"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// ListBooks handles GET /api/v1/books?limit=, newest first.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	if h.books == nil {
		h.writeError(w, apperrors.ErrUnavailable)
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), "limit", defaultListLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if limit < 1 || limit > h.opts.MaxResults {
		h.writeError(w, apperrors.Invalid("limit", "must be between 1 and %d, got %d", h.opts.MaxResults, limit))
		return
	}
	recs, err := h.books.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []records.Record{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"total": len(recs), "books": recs})
}

// Rebuild handles POST /api/v1/index/rebuild.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	start := time.Now()
	stats, err := h.svc.RebuildIndex(ctx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrBuildInProgress) {
			log.Error("index rebuild failed", "error", err)
			h.trackRebuildFailure(err, time.Since(start))
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"build_id":        stats.BuildID,
		"records_indexed": stats.RecordsIndexed,
		"records_skipped": stats.RecordsSkipped,
		"vocabulary_size": stats.VocabularySize,
		"dimension":       stats.Dimension,
		"model":           stats.Model,
		"duration_ms":     stats.Duration.Milliseconds(),
	})
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "cache invalidation failed"))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Health is the summary probe: the process is up and reports whether an
// index is being served.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"indexed": h.svc.BuildID() != "",
	})
}

func (h *Handler) compute(ctx context.Context, key cache.Key, fn cache.ComputeFunc) (*executor.SearchResult, bool, error) {
	if h.cache == nil {
		res, err := fn(ctx)
		return res, false, err
	}
	return h.cache.GetOrCompute(ctx, key, fn)
}

// observe logs the request, records metrics and tracks the analytics event.
func (h *Handler) observe(ctx context.Context, ev analytics.SearchEvent, result *executor.SearchResult, hit bool, err error, start time.Time) {
	latency := time.Since(start)
	outcome := outcomeOf(result, err)
	returned := 0
	if result != nil {
		returned = len(result.Results)
		ev.BuildID = result.BuildID
	}

	log := logger.FromContext(ctx)
	if outcome == analytics.OutcomeError {
		log.Error("search failed", "kind", ev.Type, "query", ev.Query, "isbn", ev.ISBN, "error", err)
	} else {
		log.Info("search completed",
			"kind", ev.Type,
			"query", ev.Query,
			"isbn", ev.ISBN,
			"outcome", outcome,
			"returned", returned,
			"cache_hit", hit,
			"latency_ms", latency.Milliseconds(),
		)
	}

	if h.metrics != nil {
		kind := string(ev.Type)
		cacheStatus := "miss"
		if hit {
			cacheStatus = "hit"
		}
		h.metrics.SearchQueriesTotal.WithLabelValues(kind, outcome).Inc()
		h.metrics.SearchLatency.WithLabelValues(kind, cacheStatus).Observe(latency.Seconds())
		if err == nil {
			h.metrics.SearchResultsCount.WithLabelValues(kind).Observe(float64(returned))
		}
	}

	if h.collector != nil {
		ev.Returned = returned
		ev.Outcome = outcome
		ev.CacheHit = hit
		ev.LatencyMs = latency.Milliseconds()
		ev.Timestamp = time.Now().UTC()
		ev.RequestID = middleware.GetRequestID(ctx)
		h.collector.Track(ev)
	}
}

func (h *Handler) trackRebuildFailure(err error, d time.Duration) {
	if h.collector == nil {
		return
	}
	ev := analytics.RebuildEvent{
		Type:       analytics.EventRebuild,
		Status:     "failed",
		Error:      err.Error(),
		DurationMs: d.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	var buildErr *apperrors.BuildError
	if errors.As(err, &buildErr) {
		ev.BuildID = buildErr.BuildID
		ev.Stage = buildErr.Stage
		ev.Indexed = buildErr.Indexed
		ev.Skipped = buildErr.Skipped
	}
	h.collector.Track(ev)
}

func (h *Handler) weightParams(semantic, keyword string) (ranker.Weights, error) {
	w := h.svc.DefaultWeights()
	var err error
	if semantic != "" {
		if w.Semantic, err = strconv.ParseFloat(semantic, 64); err != nil {
			return w, apperrors.Invalid("semantic_weight", "must be a number, got %q", semantic)
		}
	}
	if keyword != "" {
		if w.Keyword, err = strconv.ParseFloat(keyword, 64); err != nil {
			return w, apperrors.Invalid("keyword_weight", "must be a number, got %q", keyword)
		}
	}
	return w, nil
}

func intParam(raw, field string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalid(field, "must be an integer, got %q", raw)
	}
	return n, nil
}

func outcomeOf(result *executor.SearchResult, err error) string {
	var valErr *apperrors.ValidationError
	switch {
	case err == nil && len(result.Results) == 0:
		return analytics.OutcomeZeroResult
	case err == nil:
		return analytics.OutcomeOK
	case errors.As(err, &valErr):
		return analytics.OutcomeInvalid
	case errors.Is(err, apperrors.ErrNotIndexed):
		return analytics.OutcomeNotIndexed
	case errors.Is(err, apperrors.ErrNotFound):
		return analytics.OutcomeNotFound
	default:
		return analytics.OutcomeError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, body := apperrors.Response(err)
	h.writeJSON(w, status, body)
}
