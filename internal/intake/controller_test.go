package intake

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/store"
)

var testLimits = config.PipelineConfig{DefaultLimit: 100, MaxLimit: 1000}

// scriptedExtractor returns canned drafts per review id and fails on demand.
type scriptedExtractor struct {
	mu      sync.Mutex
	drafts  map[string][]models.ConceptDraft
	failing map[string]bool
	calls   []string
}

func (s *scriptedExtractor) Extract(_ context.Context, review models.Review, _ models.BusinessContext) ([]models.ConceptDraft, error) {
	s.mu.Lock()
	s.calls = append(s.calls, review.ID)
	s.mu.Unlock()
	if s.failing[review.ID] {
		return nil, fmt.Errorf("model overloaded")
	}
	return s.drafts[review.ID], nil
}

func seedReview(t *testing.T, st store.Store, id, locationID, comment string, opts ...func(*models.Review)) {
	t.Helper()
	r := models.Review{
		ID:         id,
		LocationID: locationID,
		Comment:    comment,
		Rating:     3,
		CreatedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	require.NoError(t, st.InsertReview(context.Background(), r))
}

func TestProcessBacklogHappyPath(t *testing.T) {
	st := store.NewMemoryStore()
	seedReview(t, st, "r1", "loc-1", "wifi was slow but staff were friendly")
	seedReview(t, st, "r2", "loc-1", "great coffee")
	seedReview(t, st, "r-blank", "loc-1", "   ")
	seedReview(t, st, "r-done", "loc-1", "old", func(r *models.Review) { r.IsConceptualized = true })
	seedReview(t, st, "r-test", "loc-1", "synthetic", func(r *models.Review) { r.IsTest = true })

	ex := &scriptedExtractor{drafts: map[string][]models.ConceptDraft{
		"r1": {
			{Aspect: "wifi quality", Entity: "wifi", Sentiment: models.SentimentNegative, Relevance: 0.8, ImpliedRating: 2},
			{Aspect: "friendliness", Entity: "staff", Sentiment: models.SentimentPositive, Relevance: 0.7, ImpliedRating: 5},
		},
		"r2": {
			{Aspect: "taste", Entity: "coffee", Sentiment: models.SentimentPositive, Relevance: 0.9, ImpliedRating: 5},
		},
	}}

	c := NewController(st, ex, models.BusinessContext{Name: "Test Cafe", Category: "cafe"}, testLimits, nil)
	result, err := c.ProcessBacklog(context.Background(), "loc-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed, "blank, done and test reviews are excluded")
	assert.Equal(t, 3, result.InsertedConcepts)
	assert.Empty(t, result.Failures)
	assert.Len(t, ex.calls, 2)

	concepts, err := st.ListConceptsByReview(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, "r1", concepts[0].ReviewID)
	assert.NotEmpty(t, concepts[0].ID)
}

func TestProcessBacklogIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	seedReview(t, st, "r1", "loc-1", "fine")

	ex := &scriptedExtractor{drafts: map[string][]models.ConceptDraft{
		"r1": {{Aspect: "overall", Entity: "visit", Sentiment: models.SentimentNeutral, Relevance: 0.5, ImpliedRating: 3}},
	}}
	c := NewController(st, ex, models.BusinessContext{}, testLimits, nil)
	ctx := context.Background()

	first, err := c.ProcessBacklog(ctx, "loc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := c.ProcessBacklog(ctx, "loc-1", 0)
	require.NoError(t, err)
	assert.Zero(t, second.Processed, "processed counts only flips made by this call")
	assert.Zero(t, second.InsertedConcepts)

	concepts, err := st.ListConceptsByReview(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, concepts, 1, "no duplicate concepts on re-run")
}

func TestProcessBacklogSkipsFailingReview(t *testing.T) {
	st := store.NewMemoryStore()
	seedReview(t, st, "r-ok", "loc-1", "good")
	seedReview(t, st, "r-bad", "loc-1", "bad")

	ex := &scriptedExtractor{
		drafts: map[string][]models.ConceptDraft{
			"r-ok": {{Aspect: "overall", Entity: "visit", Sentiment: models.SentimentPositive, Relevance: 1, ImpliedRating: 4}},
		},
		failing: map[string]bool{"r-bad": true},
	}
	c := NewController(st, ex, models.BusinessContext{}, testLimits, nil)
	ctx := context.Background()

	result, err := c.ProcessBacklog(ctx, "loc-1", 0)
	require.NoError(t, err, "a per-review failure never aborts the batch")
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "r-bad", result.Failures[0].ReviewID)
	assert.Contains(t, result.Failures[0].Error, "model overloaded")

	// The failed review stays unprocessed for a later retry.
	review, err := st.GetReview(ctx, "r-bad")
	require.NoError(t, err)
	assert.False(t, review.IsConceptualized)
}

func TestProcessBacklogZeroConceptReviewStillMarked(t *testing.T) {
	st := store.NewMemoryStore()
	seedReview(t, st, "r1", "loc-1", "ok")

	ex := &scriptedExtractor{drafts: map[string][]models.ConceptDraft{}}
	c := NewController(st, ex, models.BusinessContext{}, testLimits, nil)
	ctx := context.Background()

	result, err := c.ProcessBacklog(ctx, "loc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.InsertedConcepts)

	review, err := st.GetReview(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, review.IsConceptualized, "a concept-free review is not re-selected forever")
}

func TestProcessBacklogValidation(t *testing.T) {
	c := NewController(store.NewMemoryStore(), &scriptedExtractor{}, models.BusinessContext{}, testLimits, nil)
	_, err := c.ProcessBacklog(context.Background(), "", 10)
	require.Error(t, err)
}

func TestProcessBacklogRespectsLimit(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("r%d", i)
		seedReview(t, st, id, "loc-1", "text", func(r *models.Review) {
			r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
	}

	ex := &scriptedExtractor{drafts: map[string][]models.ConceptDraft{}}
	c := NewController(st, ex, models.BusinessContext{}, testLimits, nil)

	result, err := c.ProcessBacklog(context.Background(), "loc-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
}
