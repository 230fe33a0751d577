// Package embedcache wraps an embedder with a bounded, time-expiring
// cache so repeated queries and re-indexed identical chunks skip
// recomputation.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// DefaultCacheSize and DefaultTTL are used when a caller passes a
// non-positive value.
const (
	DefaultCacheSize = 10000
	DefaultTTL       = time.Hour
)

// CachedEmbedder wraps inner with an LRU+TTL cache keyed on text content
// and model name. A vector containing NaN or Inf components is cached
// exactly as returned by inner: the cache is a transparent memoization
// layer and must never alter values, since a consumer may rely on NaN to
// signal an unembeddable chunk.
type CachedEmbedder struct {
	inner Embedder
	cache *expirable.LRU[string, []float32]
}

// New wraps inner with a cache of the given size and time-to-live.
func New(inner Embedder, cacheSize int, ttl time.Duration) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](cacheSize, nil, ttl),
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text if present and unexpired,
// otherwise computes, caches, and returns it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch embeds texts, reusing cached vectors and only calling inner
// for the cache misses.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = computed[j]
		c.cache.Add(c.key(texts[idx]), computed[j])
	}
	return results, nil
}

// Dimensions passes through to the wrapped embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName passes through to the wrapped embedder.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Len returns the number of entries currently cached (including, briefly,
// entries past their TTL that have not yet been swept).
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// Purge empties the cache.
func (c *CachedEmbedder) Purge() { c.cache.Purge() }
