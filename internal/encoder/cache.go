package encoder

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an in-memory LRU of unit vectors keyed by model and text hash.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to maxLen vectors. A non-positive
// maxLen disables caching.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		return &Cache{}
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		return &Cache{}
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate it.
func (c *Cache) Get(key string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	vec, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

func (c *Cache) Add(key string, vec []float32) {
	if c.cache == nil {
		return
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(key, stored)
}

func (c *Cache) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func (c *Cache) Purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func cacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}
