package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewlens/reviewlens/internal/models"
)

func TestParseDrafts_BareArray(t *testing.T) {
	raw := `[
		{"aspect": "service speed", "entity": "staff", "sentiment": "positive", "relevance": 0.9, "implied_rating": 5},
		{"aspect": "cleanliness", "entity": "room", "sentiment": "negative", "relevance": 0.7, "implied_rating": 2}
	]`
	drafts, err := ParseDrafts(raw)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "service speed", drafts[0].Aspect)
	assert.Equal(t, models.SentimentNegative, drafts[1].Sentiment)
}

func TestParseDrafts_WrappedObject(t *testing.T) {
	raw := `{"concepts": [{"aspect": "wifi quality", "entity": "wifi", "sentiment": "negative", "relevance": 1, "implied_rating": 1}]}`
	drafts, err := ParseDrafts(raw)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "wifi", drafts[0].Entity)
}

func TestParseDrafts_EmptyArray(t *testing.T) {
	drafts, err := ParseDrafts(`[]`)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestParseDrafts_Malformed(t *testing.T) {
	_, err := ParseDrafts(`I could not find any concepts.`)
	require.Error(t, err)
}

func TestParseDrafts_SanitizesFields(t *testing.T) {
	raw := `[
		{"aspect": "", "entity": "", "sentiment": "positive", "relevance": 0.5, "implied_rating": 3},
		{"aspect": "value", "entity": "price", "sentiment": "enthusiastic", "relevance": 1.7, "implied_rating": 9}
	]`
	drafts, err := ParseDrafts(raw)
	require.NoError(t, err)
	require.Len(t, drafts, 1, "draft with both labels empty is dropped")

	d := drafts[0]
	assert.Equal(t, models.SentimentNeutral, d.Sentiment, "unknown sentiment defaults to neutral")
	assert.Equal(t, 1.0, d.Relevance, "relevance clamps to [0, 1]")
	assert.Equal(t, 5, d.ImpliedRating, "rating clamps to [1, 5]")
}
