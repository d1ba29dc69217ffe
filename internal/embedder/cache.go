package embedder

import (
	"context"
	"log/slog"
	"sync"
)

// CachingEmbedder wraps an Embedder with an exact-string cache so repeated
// labels within a run never hit the external service twice. A failed upstream
// call caches nothing and returns no partial vectors.
type CachingEmbedder struct {
	upstream Embedder
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewCachingEmbedder wraps upstream with a label cache.
func NewCachingEmbedder(upstream Embedder, logger *slog.Logger) *CachingEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingEmbedder{
		upstream: upstream,
		logger:   logger,
		cache:    make(map[string][]float32),
	}
}

// Embed returns the cached vector for label, or fetches and caches it.
func (c *CachingEmbedder) Embed(ctx context.Context, label string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{label})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per label in input order, fetching only the
// labels missing from the cache in a single upstream call.
func (c *CachingEmbedder) EmbedBatch(ctx context.Context, labels []string) ([][]float32, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(labels))
	var missing []string
	var missingIdx []int

	c.mu.RLock()
	for i, label := range labels {
		if vec, ok := c.cache[label]; ok {
			out[i] = vec
		} else {
			missing = append(missing, label)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.upstream.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for i, vec := range fetched {
		out[missingIdx[i]] = vec
		c.cache[missing[i]] = vec
	}
	c.mu.Unlock()

	c.logger.Debug("embedded labels", "requested", len(labels), "cache_hits", len(labels)-len(missing))
	return out, nil
}

// Dimension returns the upstream embedding dimension.
func (c *CachingEmbedder) Dimension() int {
	return c.upstream.Dimension()
}
