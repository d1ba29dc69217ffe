// Package embedder converts concept label strings into fixed-size numeric
// vectors via an external embedding service.
package embedder

import "context"

// Embedder generates vector embeddings for label strings.
type Embedder interface {
	// Embed returns a vector embedding for a single label.
	Embed(ctx context.Context, label string) ([]float32, error)

	// EmbedBatch returns one vector per input label, order-preserving.
	// Empty input yields empty output. On failure no partial vectors are
	// returned.
	EmbedBatch(ctx context.Context, labels []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}
