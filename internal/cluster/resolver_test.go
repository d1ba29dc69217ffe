package cluster

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/store"
)

// stubEmbedder serves canned vectors per label and counts upstream calls.
type stubEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, label string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{label})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, labels []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(labels))
	for i, label := range labels {
		vec, ok := s.vectors[label]
		if !ok {
			return nil, fmt.Errorf("no canned vector for %q", label)
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 2 }

var testLimits = config.PipelineConfig{DefaultLimit: 100, MaxLimit: 1000}

var testOpts = Options{Threshold: 0.85, Similarity: CosineSimilarity}

// seedEntityConcept inserts one review carrying one concept with the given
// entity label.
func seedEntityConcept(t *testing.T, st store.Store, entity string) {
	t.Helper()
	ctx := context.Background()
	reviewID := uuid.New().String()
	require.NoError(t, st.InsertReview(ctx, models.Review{
		ID:         reviewID,
		LocationID: "loc-1",
		Comment:    "some review text",
		CreatedAt:  time.Now().UTC(),
	}))
	require.NoError(t, st.InsertConceptsMarkingReview(ctx, reviewID, []models.Concept{{
		ID:        uuid.New().String(),
		Aspect:    "quality",
		Entity:    entity,
		Sentiment: models.SentimentNeutral,
		CreatedAt: time.Now().UTC(),
	}}))
}

func newTestResolver(t *testing.T, st store.Store, emb *stubEmbedder) *Resolver {
	t.Helper()
	r, err := NewResolver(models.LabelKindEntity, st, emb, testOpts, testLimits, nil)
	require.NoError(t, err)
	return r
}

// wifiWorld seeds the canonical scenario: three connectivity labels that
// should merge and one unrelated label that should not.
func wifiWorld(t *testing.T) (store.Store, *stubEmbedder) {
	st := store.NewMemoryStore()
	seedEntityConcept(t, st, "wifi")
	seedEntityConcept(t, st, "wifi")
	seedEntityConcept(t, st, "Wi-Fi")
	seedEntityConcept(t, st, "internet")
	seedEntityConcept(t, st, "parking")

	emb := &stubEmbedder{vectors: map[string][]float32{
		"wifi":     {1, 0},
		"Wi-Fi":    {0.99, 0.14},
		"internet": {0.95, 0.31},
		"parking":  {0, 1},
	}}
	return st, emb
}

func TestPreviewMergesGroupsSimilarLabels(t *testing.T) {
	st, emb := wifiWorld(t)
	r := newTestResolver(t, st, emb)

	proposals, err := r.PreviewMerges(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, proposals, 1, "the lone parking label proposes nothing")
	p := proposals[0]
	assert.Equal(t, "wifi", p.DetKey)
	assert.Equal(t, "wifi", p.Winner, "highest-frequency label wins")
	assert.Equal(t, []string{"Wi-Fi", "internet"}, p.Losers)
}

func TestPreviewMergesIsPure(t *testing.T) {
	st, emb := wifiWorld(t)
	r := newTestResolver(t, st, emb)
	ctx := context.Background()

	_, err := r.PreviewMerges(ctx, 0)
	require.NoError(t, err)

	clusters, err := st.ListClusters(ctx, models.LabelKindEntity)
	require.NoError(t, err)
	assert.Empty(t, clusters, "preview persists nothing")

	stats, err := st.ListUnresolvedLabels(ctx, models.LabelKindEntity, 100)
	require.NoError(t, err)
	assert.Len(t, stats, 4, "no labels were resolved")
}

func TestPreviewMergesIsDeterministic(t *testing.T) {
	st, emb := wifiWorld(t)
	r := newTestResolver(t, st, emb)
	ctx := context.Background()

	first, err := r.PreviewMerges(ctx, 0)
	require.NoError(t, err)
	second, err := r.PreviewMerges(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestApplyMergesPersistsAndConverges(t *testing.T) {
	st, emb := wifiWorld(t)
	r := newTestResolver(t, st, emb)
	ctx := context.Background()

	proposals, err := r.ApplyMerges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, proposals, 1)

	// Both the merged cluster and the parking singleton are persisted.
	clusters, err := st.ListClusters(ctx, models.LabelKindEntity)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "parking", clusters[0].DetKey)
	assert.Empty(t, clusters[0].Losers)
	assert.Equal(t, "wifi", clusters[1].DetKey)
	assert.Equal(t, []string{"Wi-Fi", "internet"}, clusters[1].Losers)
	assert.NotEmpty(t, clusters[1].Centroid)

	// Every concept's entity is now resolved.
	stats, err := st.ListUnresolvedLabels(ctx, models.LabelKindEntity, 100)
	require.NoError(t, err)
	assert.Empty(t, stats)

	// Re-applying with nothing left is a no-op.
	proposals, err = r.ApplyMerges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, proposals)
}

func TestApplyMergesExtendsByDetKeyWithoutEmbedding(t *testing.T) {
	st, emb := wifiWorld(t)
	r := newTestResolver(t, st, emb)
	ctx := context.Background()

	_, err := r.ApplyMerges(ctx, 0)
	require.NoError(t, err)
	callsAfterFirst := emb.calls

	// A later batch brings a label whose canonical form matches the existing
	// cluster's det-key; it is absorbed without an embedding call.
	seedEntityConcept(t, st, "WIFI!!")
	proposals, err := r.ApplyMerges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "wifi", proposals[0].DetKey)
	assert.Equal(t, []string{"WIFI!!"}, proposals[0].Losers)
	assert.Equal(t, callsAfterFirst, emb.calls)

	cl, err := st.GetClusterByDetKey(ctx, models.LabelKindEntity, "wifi")
	require.NoError(t, err)
	assert.Equal(t, []string{"WIFI!!", "Wi-Fi", "internet"}, cl.Losers)
}

func TestApplyMergesRejoinsKnownLabel(t *testing.T) {
	st, emb := wifiWorld(t)
	r := newTestResolver(t, st, emb)
	ctx := context.Background()

	_, err := r.ApplyMerges(ctx, 0)
	require.NoError(t, err)

	// A concept with an already-clustered label arrives after the apply. Its
	// row gets the existing cluster id; the cluster itself does not change.
	seedEntityConcept(t, st, "internet")
	proposals, err := r.ApplyMerges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, proposals)

	stats, err := st.ListUnresolvedLabels(ctx, models.LabelKindEntity, 100)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestApplyMergesJoinsExistingClusterByCentroid(t *testing.T) {
	st, emb := wifiWorld(t)
	r := newTestResolver(t, st, emb)
	ctx := context.Background()

	_, err := r.ApplyMerges(ctx, 0)
	require.NoError(t, err)

	// A new distinct label lands near the persisted centroid and joins the
	// existing cluster instead of seeding a near-duplicate.
	emb.vectors["wireless network"] = []float32{0.97, 0.24}
	seedEntityConcept(t, st, "wireless network")

	proposals, err := r.ApplyMerges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "wifi", proposals[0].DetKey)
	assert.Equal(t, "wifi", proposals[0].Winner)
	assert.Equal(t, []string{"wireless network"}, proposals[0].Losers)

	clusters, err := st.ListClusters(ctx, models.LabelKindEntity)
	require.NoError(t, err)
	assert.Len(t, clusters, 2, "no new cluster was created")
}

func TestWinnerTieBreaksOnNormalizedForm(t *testing.T) {
	st := store.NewMemoryStore()
	seedEntityConcept(t, st, "Zebra crossing")
	seedEntityConcept(t, st, "apple pie")

	emb := &stubEmbedder{vectors: map[string][]float32{
		"Zebra crossing": {1, 0},
		"apple pie":      {0.99, 0.1},
	}}
	r := newTestResolver(t, st, emb)

	proposals, err := r.PreviewMerges(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "apple pie", proposals[0].Winner,
		"equal frequency resolves to the smaller normalized form")
	assert.Equal(t, []string{"Zebra crossing"}, proposals[0].Losers)
}

func TestIdenticalNormalizedFormsAlwaysMerge(t *testing.T) {
	st := store.NewMemoryStore()
	seedEntityConcept(t, st, "check-in")
	seedEntityConcept(t, st, "check in")

	// Embeddings deliberately disagree; the shared canonical form wins.
	emb := &stubEmbedder{vectors: map[string][]float32{
		"check-in": {1, 0},
		"check in": {0, 1},
	}}
	r := newTestResolver(t, st, emb)

	proposals, err := r.PreviewMerges(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "check in", proposals[0].DetKey)
}

func TestResolverRejectsBadKind(t *testing.T) {
	_, err := NewResolver("color", store.NewMemoryStore(), &stubEmbedder{}, testOpts, testLimits, nil)
	require.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1}), "mismatched dims score zero")
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestSimilarityByName(t *testing.T) {
	_, err := SimilarityByName("cosine")
	require.NoError(t, err)
	_, err = SimilarityByName("dot")
	require.NoError(t, err)
	_, err = SimilarityByName("manhattan")
	require.Error(t, err)
}
