package models

import (
	"time"
)

// Sentiment classifies the polarity of a concept.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentMixed    Sentiment = "mixed"
)

// ValidSentiments is the set of all valid sentiment values.
var ValidSentiments = []Sentiment{
	SentimentPositive,
	SentimentNeutral,
	SentimentNegative,
	SentimentMixed,
}

// IsValid returns true if the sentiment value is recognized.
func (s Sentiment) IsValid() bool {
	for _, v := range ValidSentiments {
		if s == v {
			return true
		}
	}
	return false
}

// ConceptDraft is one semantic unit proposed by the extraction service before
// it is persisted. Drafts are validated at the service boundary; malformed
// entries are dropped rather than propagated.
type ConceptDraft struct {
	Aspect        string    `json:"aspect"`
	Entity        string    `json:"entity"`
	Sentiment     Sentiment `json:"sentiment"`
	Relevance     float64   `json:"relevance"`
	ImpliedRating int       `json:"implied_rating"`
}

// Concept is one persisted (aspect, entity, sentiment) unit extracted from a
// review. Extraction creates it; the cluster resolver sets the normalized ids;
// the finalizer stamps NormalizedAt; the topic grouper sets TopicID. Empty
// string means "not yet assigned" for the id fields.
type Concept struct {
	ID                 string     `json:"id"`
	ReviewID           string     `json:"review_id"`
	Aspect             string     `json:"aspect"`
	Entity             string     `json:"entity"`
	Sentiment          Sentiment  `json:"sentiment"`
	Relevance          float64    `json:"relevance"`
	ImpliedRating      int        `json:"implied_rating"`
	NormalizedAspectID string     `json:"normalized_aspect_id,omitempty"`
	NormalizedEntityID string     `json:"normalized_entity_id,omitempty"`
	NormalizedAt       *time.Time `json:"normalized_at,omitempty"`
	TopicID            string     `json:"topic_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Label returns the raw label of the concept for the given kind.
func (c Concept) Label(kind LabelKind) string {
	if kind == LabelKindEntity {
		return c.Entity
	}
	return c.Aspect
}

// ReadyToFinalize reports whether both normalized ids are assigned while the
// normalization timestamp is still unset. NormalizedAt may only ever be
// stamped on concepts in this state.
func (c Concept) ReadyToFinalize() bool {
	return c.NormalizedAspectID != "" && c.NormalizedEntityID != "" && c.NormalizedAt == nil
}

// IsNormalized reports whether the concept has completed normalization.
func (c Concept) IsNormalized() bool {
	return c.NormalizedAt != nil
}
