package models

import (
	"time"
)

// Topic is a cross-review grouping of normalized concepts. Once IsStable is
// set, routine grouping runs must never reassign its member concepts; only an
// administrative reset may.
type Topic struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	IsStable    bool      `json:"is_stable"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TopicProposal is one topic assignment proposed by the grouping service:
// a topic label and the member concepts it should contain.
type TopicProposal struct {
	Label      string   `json:"label"`
	ConceptIDs []string `json:"concept_ids"`
}
