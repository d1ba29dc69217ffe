package cluster

import (
	"fmt"
	"math"
)

// SimilarityFunc scores two vectors; higher means more similar. The scoring
// function and threshold are configuration, injected via Options.
type SimilarityFunc func(a, b []float32) float64

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched or zero-length vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DotProduct returns the raw inner product of a and b. Useful when the
// embedding service returns unit-normalized vectors.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// SimilarityByName resolves a configured distance name to its function.
func SimilarityByName(name string) (SimilarityFunc, error) {
	switch name {
	case "", "cosine":
		return CosineSimilarity, nil
	case "dot":
		return DotProduct, nil
	default:
		return nil, fmt.Errorf("unknown distance function %q", name)
	}
}

// centroid returns the elementwise mean of the given vectors.
func centroid(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil
		}
		for i := range v {
			sum[i] += float64(v[i])
		}
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(len(vecs)))
	}
	return out
}
