// Package intake drives the pending → conceptualized transition: it selects
// a bounded batch of unprocessed reviews, extracts concepts for each, and
// atomically persists the concepts with the review's processed flag.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/extract"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/store"
)

// maxConcurrentExtractions bounds parallel extraction calls within one batch.
const maxConcurrentExtractions = 4

// Controller selects unprocessed reviews and conceptualizes them.
type Controller struct {
	store     store.Store
	extractor extract.Extractor
	biz       models.BusinessContext
	limits    config.PipelineConfig
	logger    *slog.Logger
}

// NewController creates a batch intake controller.
func NewController(st store.Store, ex extract.Extractor, biz models.BusinessContext, limits config.PipelineConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     st,
		extractor: ex,
		biz:       biz,
		limits:    limits,
		logger:    logger,
	}
}

// ProcessBacklog conceptualizes up to limit eligible reviews for locationID.
// A failed extraction skips that review (left unprocessed for a later retry)
// and the batch continues; Processed counts reviews whose flag was flipped by
// this call, so a re-invocation with no new reviews returns Processed = 0.
func (c *Controller) ProcessBacklog(ctx context.Context, locationID string, limit int) (*models.BacklogResult, error) {
	if locationID == "" {
		return nil, fmt.Errorf("locationId must not be empty")
	}
	limit = c.limits.ClampLimit(limit)

	reviews, err := c.store.ListUnconceptualized(ctx, locationID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing backlog: %w", err)
	}

	result := &models.BacklogResult{}
	if len(reviews) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentExtractions)

	for _, review := range reviews {
		g.Go(func() error {
			inserted, err := c.processReview(gctx, review)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Processed++
				result.InsertedConcepts += inserted
			case errors.Is(err, store.ErrAlreadyConceptualized):
				// Concurrent writer won the flip; not a failure.
				c.logger.Debug("review flipped concurrently, skipping", "review_id", review.ID)
			default:
				c.logger.Warn("review extraction failed, leaving for retry",
					"review_id", review.ID, "error", err)
				metrics.Inc(metrics.ExtractionFailures)
				result.Failures = append(result.Failures, models.BatchFailure{
					ReviewID: review.ID,
					Error:    err.Error(),
				})
			}
			return nil
		})
	}
	// Worker funcs always return nil; per-review errors land in Failures.
	_ = g.Wait()

	// Parallel completion order is arbitrary; report failures stably.
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].ReviewID < result.Failures[j].ReviewID
	})

	c.logger.Info("processed backlog batch",
		"location_id", locationID,
		"processed", result.Processed,
		"inserted_concepts", result.InsertedConcepts,
		"failures", len(result.Failures))
	return result, nil
}

// processReview extracts concepts for one review and persists them atomically
// with the conceptualized flip. Returns the number of concepts inserted.
func (c *Controller) processReview(ctx context.Context, review models.Review) (int, error) {
	drafts, err := c.extractor.Extract(ctx, review, c.biz)
	if err != nil {
		return 0, fmt.Errorf("extracting concepts: %w", err)
	}

	now := time.Now().UTC()
	concepts := make([]models.Concept, 0, len(drafts))
	for _, d := range drafts {
		concepts = append(concepts, models.Concept{
			ID:            uuid.New().String(),
			ReviewID:      review.ID,
			Aspect:        d.Aspect,
			Entity:        d.Entity,
			Sentiment:     d.Sentiment,
			Relevance:     d.Relevance,
			ImpliedRating: d.ImpliedRating,
			CreatedAt:     now,
		})
	}

	// Zero concepts is a valid outcome: the review still gets marked so it
	// is not re-selected forever.
	if err := c.store.InsertConceptsMarkingReview(ctx, review.ID, concepts); err != nil {
		return 0, err
	}

	metrics.Inc(metrics.ReviewsProcessed)
	metrics.Add(metrics.ConceptsInserted, int64(len(concepts)))
	return len(concepts), nil
}
