package topics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/store"
)

var testLimits = config.PipelineConfig{DefaultLimit: 100, MaxLimit: 1000}

// fakeGrouper buckets concepts by entity label and records describe calls.
type fakeGrouper struct {
	groupCalls    int
	describeCalls int
	description   string
	seenExisting  []models.Topic
}

func (f *fakeGrouper) GroupConcepts(_ context.Context, concepts []models.Concept, existing []models.Topic) ([]models.TopicProposal, error) {
	f.groupCalls++
	f.seenExisting = existing
	byEntity := map[string][]string{}
	var order []string
	for _, c := range concepts {
		if _, ok := byEntity[c.Entity]; !ok {
			order = append(order, c.Entity)
		}
		byEntity[c.Entity] = append(byEntity[c.Entity], c.ID)
	}
	var out []models.TopicProposal
	for _, entity := range order {
		out = append(out, models.TopicProposal{Label: "About " + entity, ConceptIDs: byEntity[entity]})
	}
	return out, nil
}

func (f *fakeGrouper) DescribeTopic(_ context.Context, _ models.Topic, _ []models.Concept, _ []string) (string, error) {
	f.describeCalls++
	return f.description, nil
}

// seedNormalizedConcept inserts a concept that has completed normalization.
func seedNormalizedConcept(t *testing.T, st store.Store, id, entity, comment string) {
	t.Helper()
	ctx := context.Background()
	reviewID := "rev-" + id
	require.NoError(t, st.InsertReview(ctx, models.Review{
		ID: reviewID, LocationID: "loc-1", Comment: comment, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, st.InsertConceptsMarkingReview(ctx, reviewID, []models.Concept{{
		ID: id, Aspect: "quality of " + entity, Entity: entity,
		Sentiment: models.SentimentNeutral, CreatedAt: time.Now().UTC(),
	}}))
	_, err := st.AssignNormalizedLabel(ctx, models.LabelKindAspect, "quality of "+entity, "a-"+entity)
	require.NoError(t, err)
	_, err = st.AssignNormalizedLabel(ctx, models.LabelKindEntity, entity, "e-"+entity)
	require.NoError(t, err)
	n, err := st.FinalizeConcepts(ctx, []string{id}, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestGroupConceptsDryRun(t *testing.T) {
	st := store.NewMemoryStore()
	seedNormalizedConcept(t, st, "c1", "wifi", "wifi was slow")
	seedNormalizedConcept(t, st, "c2", "coffee", "coffee was great")

	g := &fakeGrouper{}
	svc := NewService(st, g, g, testLimits, nil)

	result, err := svc.GroupConcepts(context.Background(), GroupOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	require.Len(t, result.Proposals, 2)
	assert.Zero(t, result.Assigned)
	assert.Empty(t, result.TopicIDs)

	all, err := st.ListTopics(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "dry run creates no topics")
}

func TestGroupConceptsCommit(t *testing.T) {
	st := store.NewMemoryStore()
	seedNormalizedConcept(t, st, "c1", "wifi", "a")
	seedNormalizedConcept(t, st, "c2", "wifi", "b")
	seedNormalizedConcept(t, st, "c3", "coffee", "c")

	g := &fakeGrouper{}
	svc := NewService(st, g, g, testLimits, nil)
	ctx := context.Background()

	result, err := svc.GroupConcepts(ctx, GroupOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Assigned)
	require.Len(t, result.TopicIDs, 2)

	wifiTopic, err := st.GetTopicByLabel(ctx, "About wifi")
	require.NoError(t, err)
	members, err := st.ListConceptsByTopic(ctx, wifiTopic.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// A second commit reuses the topics instead of duplicating them, and has
	// nothing left to move.
	result, err = svc.GroupConcepts(ctx, GroupOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Assigned)

	all, err := st.ListTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGroupConceptsReusesExistingTopicByLabel(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.InsertTopic(ctx, models.Topic{ID: "t-existing", Label: "About wifi", CreatedAt: now, UpdatedAt: now}))
	seedNormalizedConcept(t, st, "c1", "wifi", "a")

	g := &fakeGrouper{}
	svc := NewService(st, g, g, testLimits, nil)

	result, err := svc.GroupConcepts(ctx, GroupOptions{})
	require.NoError(t, err)
	assert.Equal(t, "t-existing", result.TopicIDs["About wifi"])
	require.Len(t, g.seenExisting, 1, "existing topics are offered to the grouper for label reuse")

	all, err := st.ListTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGroupConceptsEmptyBacklog(t *testing.T) {
	g := &fakeGrouper{}
	svc := NewService(store.NewMemoryStore(), g, g, testLimits, nil)

	result, err := svc.GroupConcepts(context.Background(), GroupOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Proposals)
	assert.Zero(t, g.groupCalls, "no language-service call for an empty batch")
}

func TestStableTopicMembersAreNeverRegrouped(t *testing.T) {
	st := store.NewMemoryStore()
	seedNormalizedConcept(t, st, "c1", "wifi", "a")

	g := &fakeGrouper{}
	svc := NewService(st, g, g, testLimits, nil)
	ctx := context.Background()

	_, err := svc.GroupConcepts(ctx, GroupOptions{})
	require.NoError(t, err)

	topic, err := st.GetTopicByLabel(ctx, "About wifi")
	require.NoError(t, err)
	_, err = svc.MarkStable(ctx, topic.ID)
	require.NoError(t, err)

	result, err := svc.GroupConcepts(ctx, GroupOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Proposals, "stable members never re-enter the batch")

	members, err := st.ListConceptsByTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestDescribeTopic(t *testing.T) {
	st := store.NewMemoryStore()
	seedNormalizedConcept(t, st, "c1", "wifi", "the wifi kept dropping in the lobby")

	g := &fakeGrouper{description: "Guests report unreliable wifi."}
	svc := NewService(st, g, g, testLimits, nil)
	ctx := context.Background()

	_, err := svc.GroupConcepts(ctx, GroupOptions{})
	require.NoError(t, err)
	topic, err := st.GetTopicByLabel(ctx, "About wifi")
	require.NoError(t, err)

	described, err := svc.DescribeTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, "Guests report unreliable wifi.", described.Description)

	stored, err := st.GetTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, "Guests report unreliable wifi.", stored.Description)
}

func TestDescribeTopicInsufficientData(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.InsertTopic(ctx, models.Topic{ID: "t-empty", Label: "Empty", CreatedAt: now, UpdatedAt: now}))

	g := &fakeGrouper{description: "should never be used"}
	svc := NewService(st, g, g, testLimits, nil)

	_, err := svc.DescribeTopic(ctx, "t-empty")
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Zero(t, g.describeCalls, "no language-service call for an empty topic")
}

func TestDescribeTopicNotFound(t *testing.T) {
	g := &fakeGrouper{}
	svc := NewService(store.NewMemoryStore(), g, g, testLimits, nil)
	_, err := svc.DescribeTopic(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParseProposals(t *testing.T) {
	known := map[string]bool{"c1": true, "c2": true, "c3": true}

	t.Run("bare array", func(t *testing.T) {
		got, err := ParseProposals(`[{"label": "Connectivity", "concept_ids": ["c1", "c2"]}]`, known)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, []string{"c1", "c2"}, got[0].ConceptIDs)
	})

	t.Run("wrapped object", func(t *testing.T) {
		got, err := ParseProposals(`{"topics": [{"label": "Food", "concept_ids": ["c3"]}]}`, known)
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("unknown ids filtered", func(t *testing.T) {
		got, err := ParseProposals(`[{"label": "X", "concept_ids": ["c1", "hallucinated"]}]`, known)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, []string{"c1"}, got[0].ConceptIDs)
	})

	t.Run("doubly-claimed id stays with the first proposal", func(t *testing.T) {
		got, err := ParseProposals(`[
			{"label": "A", "concept_ids": ["c1"]},
			{"label": "B", "concept_ids": ["c1", "c2"]}
		]`, known)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"c1"}, got[0].ConceptIDs)
		assert.Equal(t, []string{"c2"}, got[1].ConceptIDs)
	})

	t.Run("blank labels and empty proposals dropped", func(t *testing.T) {
		got, err := ParseProposals(`[
			{"label": "  ", "concept_ids": ["c1"]},
			{"label": "Y", "concept_ids": ["hallucinated"]}
		]`, known)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseProposals(`no json here`, known)
		require.Error(t, err)
	})
}
