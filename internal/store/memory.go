package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewlens/reviewlens/internal/models"
)

// MemoryStore is an in-memory implementation of Store for testing. It applies
// the same row-state guards as the SQLite store so idempotency and
// concurrent-writer semantics can be exercised without a database file.
type MemoryStore struct {
	mu       sync.RWMutex
	reviews  map[string]models.Review
	concepts map[string]models.Concept
	clusters map[string]models.LabelCluster // keyed by kind + "\x00" + detKey
	topics   map[string]models.Topic
}

// NewMemoryStore creates a new empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reviews:  make(map[string]models.Review),
		concepts: make(map[string]models.Concept),
		clusters: make(map[string]models.LabelCluster),
		topics:   make(map[string]models.Topic),
	}
}

func clusterKey(kind models.LabelKind, detKey string) string {
	return string(kind) + "\x00" + detKey
}

// InsertReview stores a review record.
func (m *MemoryStore) InsertReview(_ context.Context, review models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if review.ID == "" {
		return fmt.Errorf("review id must not be empty")
	}
	m.reviews[review.ID] = review
	return nil
}

// GetReview retrieves a single review by ID.
func (m *MemoryStore) GetReview(_ context.Context, id string) (*models.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: review %s", ErrNotFound, id)
	}
	return &r, nil
}

// ListUnconceptualized returns eligible backlog reviews oldest first.
func (m *MemoryStore) ListUnconceptualized(_ context.Context, locationID string, limit int) ([]models.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Review
	for _, r := range m.reviews {
		if r.LocationID != locationID || r.IsTest || r.IsConceptualized || !r.HasComment() {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListLocationIDs returns the distinct location ids sorted ascending.
func (m *MemoryStore) ListLocationIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, r := range m.reviews {
		seen[r.LocationID] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// InsertConceptsMarkingReview atomically inserts concepts and flips the
// review's conceptualized flag, guarded on the flag still being unset.
func (m *MemoryStore) InsertConceptsMarkingReview(_ context.Context, reviewID string, concepts []models.Concept) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reviews[reviewID]
	if !ok {
		return fmt.Errorf("%w: review %s", ErrNotFound, reviewID)
	}
	if r.IsConceptualized {
		return ErrAlreadyConceptualized
	}

	for i := range concepts {
		c := concepts[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.ReviewID = reviewID
		m.concepts[c.ID] = c
	}
	r.IsConceptualized = true
	m.reviews[reviewID] = r
	return nil
}

// ListConceptsByReview returns the concepts extracted from one review.
func (m *MemoryStore) ListConceptsByReview(_ context.Context, reviewID string) ([]models.Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Concept
	for _, c := range m.concepts {
		if c.ReviewID == reviewID {
			out = append(out, c)
		}
	}
	sortConcepts(out)
	return out, nil
}

func sortConcepts(cs []models.Concept) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

// ListUnresolvedLabels returns distinct unresolved raw labels with frequency.
func (m *MemoryStore) ListUnresolvedLabels(_ context.Context, kind models.LabelKind, limit int) ([]models.LabelStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	freq := make(map[string]int)
	firstSeen := make(map[string]time.Time)
	for _, c := range m.concepts {
		label := c.Label(kind)
		if strings.TrimSpace(label) == "" {
			continue
		}
		if normalizedID(c, kind) != "" {
			continue
		}
		freq[label]++
		if ts, ok := firstSeen[label]; !ok || c.CreatedAt.Before(ts) {
			firstSeen[label] = c.CreatedAt
		}
	}

	out := make([]models.LabelStat, 0, len(freq))
	for label, n := range freq {
		out = append(out, models.LabelStat{Label: label, Frequency: n})
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := firstSeen[out[i].Label], firstSeen[out[j].Label]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func normalizedID(c models.Concept, kind models.LabelKind) string {
	if kind == models.LabelKindEntity {
		return c.NormalizedEntityID
	}
	return c.NormalizedAspectID
}

// AssignNormalizedLabel rewrites the normalized id on all concepts carrying
// rawLabel whose id is still unassigned.
func (m *MemoryStore) AssignNormalizedLabel(_ context.Context, kind models.LabelKind, rawLabel, clusterID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, c := range m.concepts {
		if c.Label(kind) != rawLabel || normalizedID(c, kind) != "" {
			continue
		}
		if kind == models.LabelKindEntity {
			c.NormalizedEntityID = clusterID
		} else {
			c.NormalizedAspectID = clusterID
		}
		m.concepts[id] = c
		n++
	}
	return n, nil
}

// ListFinalizable returns concepts ready for the normalization timestamp.
func (m *MemoryStore) ListFinalizable(_ context.Context, limit int) ([]models.Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Concept
	for _, c := range m.concepts {
		if c.ReadyToFinalize() {
			out = append(out, c)
		}
	}
	sortConcepts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FinalizeConcepts stamps NormalizedAt on eligible concepts only.
func (m *MemoryStore) FinalizeConcepts(_ context.Context, ids []string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		c, ok := m.concepts[id]
		if !ok || !c.ReadyToFinalize() {
			continue
		}
		ts := at
		c.NormalizedAt = &ts
		m.concepts[id] = c
		n++
	}
	return n, nil
}

// ListGroupable returns normalized concepts not yet attached to a stable topic.
func (m *MemoryStore) ListGroupable(_ context.Context, limit int) ([]models.Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Concept
	for _, c := range m.concepts {
		if !c.IsNormalized() {
			continue
		}
		if c.TopicID != "" {
			if t, ok := m.topics[c.TopicID]; ok && t.IsStable {
				continue
			}
		}
		out = append(out, c)
	}
	sortConcepts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AssignTopic sets topicID on concepts, never moving members of stable topics.
func (m *MemoryStore) AssignTopic(_ context.Context, conceptIDs []string, topicID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range conceptIDs {
		c, ok := m.concepts[id]
		if !ok || !c.IsNormalized() {
			continue
		}
		if c.TopicID != "" {
			if t, ok := m.topics[c.TopicID]; ok && t.IsStable {
				continue
			}
		}
		if c.TopicID == topicID {
			continue
		}
		c.TopicID = topicID
		m.concepts[id] = c
		n++
	}
	return n, nil
}

// ListConceptsByTopic returns the member concepts of a topic.
func (m *MemoryStore) ListConceptsByTopic(_ context.Context, topicID string) ([]models.Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Concept
	for _, c := range m.concepts {
		if c.TopicID == topicID {
			out = append(out, c)
		}
	}
	sortConcepts(out)
	return out, nil
}

// GetClusterByDetKey retrieves a cluster by kind and det-key.
func (m *MemoryStore) GetClusterByDetKey(_ context.Context, kind models.LabelKind, detKey string) (*models.LabelCluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clusters[clusterKey(kind, detKey)]
	if !ok {
		return nil, fmt.Errorf("%w: cluster %s/%s", ErrNotFound, kind, detKey)
	}
	out := copyCluster(c)
	return &out, nil
}

// ListClusters returns all clusters of the given kind ordered by det-key.
func (m *MemoryStore) ListClusters(_ context.Context, kind models.LabelKind) ([]models.LabelCluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.LabelCluster
	for _, c := range m.clusters {
		if c.Kind == kind {
			out = append(out, copyCluster(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetKey < out[j].DetKey })
	return out, nil
}

func copyCluster(c models.LabelCluster) models.LabelCluster {
	if len(c.Losers) > 0 {
		losers := make([]string, len(c.Losers))
		copy(losers, c.Losers)
		c.Losers = losers
	}
	if len(c.Centroid) > 0 {
		centroid := make([]float32, len(c.Centroid))
		copy(centroid, c.Centroid)
		c.Centroid = centroid
	}
	return c
}

// UpsertCluster inserts or extends a cluster keyed by (kind, det-key).
func (m *MemoryStore) UpsertCluster(_ context.Context, cluster models.LabelCluster) (*models.LabelCluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := clusterKey(cluster.Kind, cluster.DetKey)
	existing, ok := m.clusters[key]
	if !ok {
		stored := copyCluster(cluster)
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = stored.CreatedAt
		stored.Losers = mergeLosers(nil, cluster.Losers, stored.Winner)
		m.clusters[key] = stored
		out := copyCluster(stored)
		return &out, nil
	}

	merged := mergeLosers(existing.Losers, cluster.Losers, existing.Winner)
	if len(merged) == len(existing.Losers) {
		// Unchanged loser set: no write.
		out := copyCluster(existing)
		return &out, nil
	}
	existing.Losers = merged
	existing.UpdatedAt = time.Now().UTC()
	m.clusters[key] = existing
	out := copyCluster(existing)
	return &out, nil
}

// mergeLosers unions the two loser sets, drops the winner itself, and keeps
// the result sorted so cluster contents are deterministic.
func mergeLosers(existing, incoming []string, winner string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	var out []string
	for _, ls := range [][]string{existing, incoming} {
		for _, l := range ls {
			if l == winner || seen[l] {
				continue
			}
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// InsertTopic stores a new topic.
func (m *MemoryStore) InsertTopic(_ context.Context, topic models.Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic.ID == "" {
		return fmt.Errorf("topic id must not be empty")
	}
	m.topics[topic.ID] = topic
	return nil
}

// GetTopic retrieves a topic by ID.
func (m *MemoryStore) GetTopic(_ context.Context, id string) (*models.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[id]
	if !ok {
		return nil, fmt.Errorf("%w: topic %s", ErrNotFound, id)
	}
	return &t, nil
}

// GetTopicByLabel retrieves a topic by its exact label.
func (m *MemoryStore) GetTopicByLabel(_ context.Context, label string) (*models.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.topics {
		if t.Label == label {
			out := t
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: topic label %q", ErrNotFound, label)
}

// ListTopics returns all topics ordered by label.
func (m *MemoryStore) ListTopics(_ context.Context) ([]models.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Topic, 0, len(m.topics))
	for _, t := range m.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// SetTopicDescription persists a generated description.
func (m *MemoryStore) SetTopicDescription(_ context.Context, id, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topics[id]
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrNotFound, id)
	}
	t.Description = description
	t.UpdatedAt = time.Now().UTC()
	m.topics[id] = t
	return nil
}

// MarkTopicStable sets the stable flag on a topic.
func (m *MemoryStore) MarkTopicStable(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topics[id]
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrNotFound, id)
	}
	if !t.IsStable {
		t.IsStable = true
		t.UpdatedAt = time.Now().UTC()
		m.topics[id] = t
	}
	return nil
}

// Stats returns per-stage pipeline counts.
func (m *MemoryStore) Stats(_ context.Context) (*models.PipelineStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.PipelineStats{}
	for _, r := range m.reviews {
		stats.TotalReviews++
		if r.IsConceptualized {
			stats.ConceptualizedReviews++
		}
	}
	for _, c := range m.concepts {
		stats.TotalConcepts++
		if c.IsNormalized() {
			stats.NormalizedConcepts++
		}
	}
	for _, c := range m.clusters {
		if c.Kind == models.LabelKindEntity {
			stats.EntityClusters++
		} else {
			stats.AspectClusters++
		}
	}
	for _, t := range m.topics {
		stats.Topics++
		if t.IsStable {
			stats.StableTopics++
		}
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
