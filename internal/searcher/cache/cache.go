// Package cache stores ranked responses in Redis. Keys include the id of the
// snapshot that produced the response, so a rebuild never serves stale
// rankings; concurrent misses for the same key are collapsed with
// singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/redis"
)

const keyPrefix = "search:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var _ Backend = (*pkgredis.Client)(nil)

// Key identifies a cacheable request.
type Key struct {
	Kind     string
	Query    string
	ISBN     string
	Limit    int
	Semantic float64
	Keyword  float64
	Genres   []string
	BuildID  string
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache writing entries with ttl. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, k Key) (*executor.SearchResult, bool) {
	key := buildKey(k)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "kind", k.Kind, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, k Key, result *executor.SearchResult) {
	key := buildKey(k)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// ComputeFunc produces a response on a cache miss.
type ComputeFunc func(ctx context.Context) (*executor.SearchResult, error)

// GetOrCompute returns the cached response for k or computes, stores and
// returns it. Errors are not cached. The boolean reports a cache hit.
//
// Concurrent misses on one key share a single computation, which runs
// detached from any caller's cancellation; each caller still stops waiting
// when its own ctx ends. The entry is stored under the build id of the
// snapshot that produced it, which may be newer than k.BuildID.
func (c *QueryCache) GetOrCompute(ctx context.Context, k Key, computeFn ComputeFunc) (*executor.SearchResult, bool, error) {
	if k.BuildID == "" {
		res, err := computeFn(ctx)
		return res, false, err
	}
	if result, ok := c.Get(ctx, k); ok {
		return result, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(buildKey(k), func() (interface{}, error) {
		result, err := computeFn(shared)
		if err != nil {
			return nil, err
		}
		stored := k
		if result.BuildID != "" {
			stored.BuildID = result.BuildID
		}
		c.Set(shared, stored, result)
		return result, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.SearchResult), false, nil
	}
}

// Invalidate drops every cached response.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(k Key) string {
	genres := make([]string, 0, len(k.Genres))
	for _, g := range k.Genres {
		if g = strings.ToLower(strings.TrimSpace(g)); g != "" {
			genres = append(genres, g)
		}
	}
	sort.Strings(genres)
	raw := strings.Join([]string{
		k.Kind,
		k.BuildID,
		normalizeQuery(k.Query),
		k.ISBN,
		strconv.Itoa(k.Limit),
		strconv.FormatFloat(k.Semantic, 'g', -1, 64),
		strconv.FormatFloat(k.Keyword, 'g', -1, 64),
		strings.Join(genres, ","),
	}, "|")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery only trims: remote encoders are sensitive to case and
// inner whitespace.
func normalizeQuery(query string) string {
	return strings.TrimSpace(query)
}
