// Package store provides persistence for the review concept pipeline.
//
// Every pipeline state transition lives behind this interface as a guarded
// conditional write: an update only lands when the row is still in the
// expected prior state, and the affected-row count is returned so a losing
// concurrent writer observes a zero-row no-op instead of corrupting state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/reviewlens/reviewlens/internal/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyConceptualized is returned by InsertConceptsMarkingReview when
// the review's conceptualized flag was already set, meaning another writer
// won the transition.
var ErrAlreadyConceptualized = errors.New("review already conceptualized")

// Store defines the persistence interface for reviews, concepts, label
// clusters and topics.
type Store interface {
	// InsertReview stores a review record. Reviews are synced from an
	// external provider; the pipeline itself only flips IsConceptualized.
	InsertReview(ctx context.Context, review models.Review) error

	// GetReview retrieves a single review by ID.
	GetReview(ctx context.Context, id string) (*models.Review, error)

	// ListUnconceptualized returns up to limit reviews for the location that
	// are not test reviews, have a non-blank comment, and have not been
	// conceptualized yet, ordered by creation time ascending.
	ListUnconceptualized(ctx context.Context, locationID string, limit int) ([]models.Review, error)

	// ListLocationIDs returns the distinct location ids present in the
	// review set, sorted ascending.
	ListLocationIDs(ctx context.Context) ([]string, error)

	// InsertConceptsMarkingReview atomically inserts all concepts for a
	// review and flips the review's conceptualized flag, but only if the
	// flag is still unset. Returns ErrAlreadyConceptualized (with nothing
	// written) when another writer already flipped it.
	InsertConceptsMarkingReview(ctx context.Context, reviewID string, concepts []models.Concept) error

	// ListConceptsByReview returns the concepts extracted from one review.
	ListConceptsByReview(ctx context.Context, reviewID string) ([]models.Concept, error)

	// ListUnresolvedLabels returns up to limit distinct raw labels of the
	// given kind whose normalized id is still unassigned, with occurrence
	// frequency, ordered by first appearance then label.
	ListUnresolvedLabels(ctx context.Context, kind models.LabelKind, limit int) ([]models.LabelStat, error)

	// AssignNormalizedLabel sets the normalized id of the given kind to
	// clusterID on every concept carrying rawLabel whose normalized id is
	// still unassigned. Returns the number of rows updated.
	AssignNormalizedLabel(ctx context.Context, kind models.LabelKind, rawLabel, clusterID string) (int64, error)

	// ListFinalizable returns up to limit concepts with both normalized ids
	// assigned and no normalization timestamp, oldest first.
	ListFinalizable(ctx context.Context, limit int) ([]models.Concept, error)

	// FinalizeConcepts stamps NormalizedAt on the given concepts, skipping
	// any whose timestamp is already set or whose normalized ids are
	// incomplete. Returns the number of rows stamped.
	FinalizeConcepts(ctx context.Context, ids []string, at time.Time) (int64, error)

	// ListGroupable returns up to limit normalized concepts whose topic is
	// unassigned or not yet stable, oldest first.
	ListGroupable(ctx context.Context, limit int) ([]models.Concept, error)

	// AssignTopic sets topicID on the given concepts. Concepts attached to
	// a stable topic are never moved. Returns the number of rows updated.
	AssignTopic(ctx context.Context, conceptIDs []string, topicID string) (int64, error)

	// ListConceptsByTopic returns the member concepts of a topic.
	ListConceptsByTopic(ctx context.Context, topicID string) ([]models.Concept, error)

	// GetClusterByDetKey retrieves a label cluster by kind and det-key.
	GetClusterByDetKey(ctx context.Context, kind models.LabelKind, detKey string) (*models.LabelCluster, error)

	// ListClusters returns all clusters of the given kind, ordered by det-key.
	ListClusters(ctx context.Context, kind models.LabelKind) ([]models.LabelCluster, error)

	// UpsertCluster inserts the cluster or, when a cluster with the same
	// kind and det-key exists, extends its loser set. Re-upserting an
	// unchanged cluster performs no write. Returns the stored cluster.
	UpsertCluster(ctx context.Context, cluster models.LabelCluster) (*models.LabelCluster, error)

	// InsertTopic stores a new topic.
	InsertTopic(ctx context.Context, topic models.Topic) error

	// GetTopic retrieves a single topic by ID.
	GetTopic(ctx context.Context, id string) (*models.Topic, error)

	// GetTopicByLabel retrieves a topic by its exact label.
	GetTopicByLabel(ctx context.Context, label string) (*models.Topic, error)

	// ListTopics returns all topics ordered by label.
	ListTopics(ctx context.Context) ([]models.Topic, error)

	// SetTopicDescription persists the generated description on a topic.
	SetTopicDescription(ctx context.Context, id, description string) error

	// MarkTopicStable sets the topic's stable flag. Stable topics are
	// excluded from routine regrouping.
	MarkTopicStable(ctx context.Context, id string) error

	// Stats returns per-stage pipeline counts.
	Stats(ctx context.Context) (*models.PipelineStats, error)

	// Close cleans up resources.
	Close() error
}
