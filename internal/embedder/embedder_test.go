package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder is a deterministic upstream that records call volume.
type countingEmbedder struct {
	calls       int
	labelsTotal int
	failNext    bool
}

func (c *countingEmbedder) Embed(ctx context.Context, label string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{label})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, labels []string) ([][]float32, error) {
	c.calls++
	c.labelsTotal += len(labels)
	if c.failNext {
		c.failNext = false
		return nil, fmt.Errorf("upstream unavailable")
	}
	out := make([][]float32, len(labels))
	for i, label := range labels {
		out[i] = []float32{float32(len(label)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int { return 2 }

func TestCachingEmbedderFetchesOnlyMissing(t *testing.T) {
	upstream := &countingEmbedder{}
	cache := NewCachingEmbedder(upstream, nil)
	ctx := context.Background()

	first, err := cache.EmbedBatch(ctx, []string{"wifi", "parking"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, upstream.calls)

	// One repeated label, one new one: only the new one goes upstream.
	second, err := cache.EmbedBatch(ctx, []string{"wifi", "coffee"})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, 2, upstream.calls)
	assert.Equal(t, 3, upstream.labelsTotal)

	// Fully cached batch makes no upstream call.
	_, err = cache.EmbedBatch(ctx, []string{"parking", "wifi"})
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachingEmbedderFailureCachesNothing(t *testing.T) {
	upstream := &countingEmbedder{failNext: true}
	cache := NewCachingEmbedder(upstream, nil)
	ctx := context.Background()

	_, err := cache.EmbedBatch(ctx, []string{"wifi"})
	require.Error(t, err)

	// The label was not cached by the failed call.
	vecs, err := cache.EmbedBatch(ctx, []string{"wifi"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachingEmbedderEmptyInput(t *testing.T) {
	upstream := &countingEmbedder{}
	cache := NewCachingEmbedder(upstream, nil)

	vecs, err := cache.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, upstream.calls)
}

func TestOpenAIEmbedderOrderRestoration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 4, req.Dimensions)

		// Return items out of order; the client must sort by index.
		resp := openAIEmbedResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, openAIEmbedData{
				Index:     i,
				Embedding: []float32{float32(i), 0, 0, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(srv.URL, "test-key", "text-embedding-3-small", 4, nil)
	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(0), vecs[0][0])
	assert.Equal(t, float32(1), vecs[1][0])
	assert.Equal(t, float32(2), vecs[2][0])
}

func TestOpenAIEmbedderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit exceeded", "type": "rate_limit_error"}}`))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(srv.URL, "k", "", 0, nil)
	_, err := emb.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [1]}]}`))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(srv.URL, "k", "", 0, nil)
	_, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 labels")
}
