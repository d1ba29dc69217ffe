package models

import (
	"time"
)

// LabelKind selects which raw label a cluster operation targets.
type LabelKind string

const (
	LabelKindAspect LabelKind = "aspect"
	LabelKindEntity LabelKind = "entity"
)

// ValidLabelKinds is the set of all valid label kinds.
var ValidLabelKinds = []LabelKind{LabelKindAspect, LabelKindEntity}

// IsValid returns true if the label kind is recognized.
func (k LabelKind) IsValid() bool {
	for _, v := range ValidLabelKinds {
		if k == v {
			return true
		}
	}
	return false
}

// LabelCluster is the canonical grouping of near-duplicate raw labels.
// DetKey is derived from the normalized form of the winner and is unique per
// kind. Clusters are flat: a winner is never a loser of another cluster, and
// a loser belongs to at most one cluster.
type LabelCluster struct {
	ID        string    `json:"id"`
	Kind      LabelKind `json:"kind"`
	DetKey    string    `json:"det_key"`
	Winner    string    `json:"winner"`
	Losers    []string  `json:"losers"`
	Centroid  []float32 `json:"centroid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLoser reports whether the given raw label is already absorbed.
func (c LabelCluster) HasLoser(label string) bool {
	for _, l := range c.Losers {
		if l == label {
			return true
		}
	}
	return false
}

// MergeProposal is one candidate cluster produced by a merge preview: the
// deterministic key, the winning label, and the labels merged into it.
// Preview computes proposals without side effects; apply persists them.
type MergeProposal struct {
	DetKey string   `json:"det_key"`
	Winner string   `json:"winner"`
	Losers []string `json:"losers"`
}

// LabelStat is a raw label with its occurrence frequency across concepts,
// used for deterministic winner selection.
type LabelStat struct {
	Label     string `json:"label"`
	Frequency int    `json:"frequency"`
}
