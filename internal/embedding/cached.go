package embedding

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes embeddings of repeated texts. It is meant for query text
// only; note embeddings always go to the provider.
type Cached struct {
	Provider
	cache *lru.Cache[string, []float32]
}

// NewCached wraps p with an LRU of the given size.
func NewCached(p Provider, size int) (*Cached, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedding: cache: %w", err)
	}
	return &Cached{Provider: p, cache: c}, nil
}

// Embed returns a cached vector or asks the wrapped provider. Failures are
// not cached.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.Model() + "\x00" + text
	if vec, ok := c.cache.Get(key); ok {
		return slices.Clone(vec), nil
	}
	vec, err := c.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, slices.Clone(vec))
	return vec, nil
}

// Len returns the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }
