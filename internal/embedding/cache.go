package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider wraps an embedding provider with a bounded ristretto cache
// keyed by a hash of the input text.
type CachedProvider struct {
	provider Provider
	cache    *ristretto.Cache
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewCachedProvider creates a cache in front of provider holding up to
// maxEntries vectors.
func NewCachedProvider(provider Provider, maxEntries int) (*CachedProvider, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create cache: %w", err)
	}
	return &CachedProvider{provider: provider, cache: cache}, nil
}

// Embed returns the cached vector for text, computing it on a miss. Callers
// receive a copy so cached vectors are never mutated.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)

	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			c.hits.Add(1)
			return copyVec(vec), nil
		}
	}
	c.misses.Add(1)

	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, copyVec(vec), 1)
	return vec, nil
}

// EmbedBatch serves cached vectors and embeds only the misses, batched when
// the wrapped provider supports it.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		if v, ok := c.cache.Get(hashText(text)); ok {
			if vec, ok := v.([]float32); ok {
				c.hits.Add(1)
				out[i] = copyVec(vec)
				continue
			}
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := EmbedBatch(ctx, c.provider, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		c.cache.Set(hashText(missTexts[j]), copyVec(vecs[j]), 1)
		out[i] = vecs[j]
	}
	return out, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedProvider) Wait() {
	c.cache.Wait()
}

// Stats reports cache hits and misses.
func (c *CachedProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the cache and the wrapped provider.
func (c *CachedProvider) Close() error {
	c.cache.Close()
	return c.provider.Close()
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func copyVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
