package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/textutil"
)

// ErrInsufficientData is returned when a topic operation has no member
// concepts to work from. It is detected before any language-service call.
var ErrInsufficientData = errors.New("topic has no member concepts")

// maxDescriptionExcerpts bounds the review text sent with a describe call.
const maxDescriptionExcerpts = 10

// excerptMaxRunes caps each review excerpt fed to the describer.
const excerptMaxRunes = 280

// GroupOptions controls one grouping run.
type GroupOptions struct {
	// DryRun computes and returns proposals without creating topics or
	// assigning concepts.
	DryRun bool
	// Limit caps the batch of concepts considered; clamped by pipeline config.
	Limit int
}

// Service coordinates topic grouping and description over the store.
type Service struct {
	store     store.Store
	grouper   Grouper
	describer Describer
	limits    config.PipelineConfig
	logger    *slog.Logger
}

// NewService creates a topic service. The grouper and describer are usually
// the same ClaudeGrouper instance.
func NewService(st store.Store, grouper Grouper, describer Describer, limits config.PipelineConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		grouper:   grouper,
		describer: describer,
		limits:    limits,
		logger:    logger,
	}
}

// GroupConcepts proposes topics for a batch of normalized, not-yet-stable
// concepts. In dry-run mode the proposals are returned without any writes. In
// commit mode each proposal's topic is created, or reused when a topic with
// the same label already exists, and the member concepts are assigned to it.
// Concepts attached to a stable topic are excluded from the batch and are
// never reassigned by the store guard, so stable topics cannot drift.
func (s *Service) GroupConcepts(ctx context.Context, opts GroupOptions) (*models.GroupingResult, error) {
	limit := s.limits.ClampLimit(opts.Limit)

	concepts, err := s.store.ListGroupable(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing groupable concepts: %w", err)
	}

	result := &models.GroupingResult{DryRun: opts.DryRun}
	if len(concepts) == 0 {
		return result, nil
	}

	existing, err := s.store.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}

	proposals, err := s.grouper.GroupConcepts(ctx, concepts, existing)
	if err != nil {
		return nil, fmt.Errorf("grouping concepts: %w", err)
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].Label < proposals[j].Label })
	result.Proposals = proposals

	if opts.DryRun || len(proposals) == 0 {
		return result, nil
	}

	result.TopicIDs = make(map[string]string, len(proposals))
	for _, p := range proposals {
		topicID, err := s.ensureTopic(ctx, p.Label)
		if err != nil {
			return nil, err
		}
		result.TopicIDs[p.Label] = topicID

		assigned, err := s.store.AssignTopic(ctx, p.ConceptIDs, topicID)
		if err != nil {
			return nil, fmt.Errorf("assigning concepts to topic %q: %w", p.Label, err)
		}
		result.Assigned += int(assigned)
	}

	s.logger.Info("grouped concepts into topics",
		"concepts", len(concepts),
		"topics", len(result.TopicIDs),
		"assigned", result.Assigned)
	return result, nil
}

// ensureTopic returns the id of the topic with the given label, creating it
// when absent. A unique-label race against a concurrent creator resolves by
// re-reading the winner's row.
func (s *Service) ensureTopic(ctx context.Context, label string) (string, error) {
	existing, err := s.store.GetTopicByLabel(ctx, label)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("looking up topic %q: %w", label, err)
	}

	now := time.Now().UTC()
	topic := models.Topic{
		ID:        uuid.New().String(),
		Label:     label,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertTopic(ctx, topic); err != nil {
		if winner, lookupErr := s.store.GetTopicByLabel(ctx, label); lookupErr == nil {
			return winner.ID, nil
		}
		return "", fmt.Errorf("creating topic %q: %w", label, err)
	}
	metrics.Inc(metrics.TopicsCreated)
	return topic.ID, nil
}

// DescribeTopic generates and persists a prose description for a topic from
// its member concepts and bounded excerpts of their source reviews. A topic
// with no members returns ErrInsufficientData without calling the language
// service.
func (s *Service) DescribeTopic(ctx context.Context, topicID string) (*models.Topic, error) {
	topic, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	concepts, err := s.store.ListConceptsByTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("listing topic members: %w", err)
	}
	if len(concepts) == 0 {
		return nil, fmt.Errorf("%w: topic %s", ErrInsufficientData, topicID)
	}

	excerpts := s.collectExcerpts(ctx, concepts)

	description, err := s.describer.DescribeTopic(ctx, *topic, concepts, excerpts)
	if err != nil {
		return nil, fmt.Errorf("describing topic %q: %w", topic.Label, err)
	}

	if err := s.store.SetTopicDescription(ctx, topicID, description); err != nil {
		return nil, err
	}
	topic.Description = description

	metrics.Inc(metrics.TopicsDescribed)
	s.logger.Info("described topic", "topic_id", topicID, "label", topic.Label)
	return topic, nil
}

// collectExcerpts gathers up to maxDescriptionExcerpts distinct review
// excerpts for the given concepts. A missing or unreadable review is skipped;
// excerpts enrich the description but are not required for it.
func (s *Service) collectExcerpts(ctx context.Context, concepts []models.Concept) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range concepts {
		if len(out) >= maxDescriptionExcerpts {
			break
		}
		if seen[c.ReviewID] {
			continue
		}
		seen[c.ReviewID] = true

		review, err := s.store.GetReview(ctx, c.ReviewID)
		if err != nil {
			s.logger.Debug("skipping excerpt for unreadable review",
				"review_id", c.ReviewID, "error", err)
			continue
		}
		if !review.HasComment() {
			continue
		}
		out = append(out, textutil.Excerpt(review.Comment, excerptMaxRunes))
	}
	return out
}

// MarkStable flags a topic as stable, freezing its membership against routine
// regrouping. Marking an already-stable topic is a no-op.
func (s *Service) MarkStable(ctx context.Context, topicID string) (*models.Topic, error) {
	if err := s.store.MarkTopicStable(ctx, topicID); err != nil {
		return nil, err
	}
	return s.store.GetTopic(ctx, topicID)
}
