// Package scheduler drains review backlogs across all known locations in
// bounded batches, suitable for periodic invocation by cron or an HTTP hook.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/intake"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/store"
)

// Sweeper iterates every location's backlog until drained or bounded out.
type Sweeper struct {
	store      store.Store
	controller *intake.Controller
	cfg        config.SchedulerConfig
	batchLimit int
	logger     *slog.Logger
}

// NewSweeper creates a backlog sweeper. batchLimit is the per-iteration
// review batch size; zero selects the pipeline default at call time.
func NewSweeper(st store.Store, controller *intake.Controller, cfg config.SchedulerConfig, batchLimit int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:      st,
		controller: controller,
		cfg:        cfg,
		batchLimit: batchLimit,
		logger:     logger,
	}
}

// Sweep drains the backlog of every known location. Each location gets its
// own deadline and iteration cap so one oversized or wedged backlog cannot
// starve the rest; a location that errors is recorded in the report and the
// sweep moves on. The sweep itself only fails when the location list cannot
// be read.
func (s *Sweeper) Sweep(ctx context.Context) (*models.SweepReport, error) {
	start := time.Now()

	locations, err := s.store.ListLocationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}

	report := &models.SweepReport{}
	for _, locationID := range locations {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, models.SweepError{
				LocationID: locationID,
				Error:      err.Error(),
			})
			continue
		}

		processed, inserted, err := s.drainLocation(ctx, locationID)
		report.LocationsSwept++
		report.ProcessedReviews += processed
		report.InsertedConcepts += inserted
		if err != nil {
			s.logger.Warn("location sweep incomplete", "location_id", locationID, "error", err)
			report.Errors = append(report.Errors, models.SweepError{
				LocationID: locationID,
				Error:      err.Error(),
			})
		}
	}

	metrics.Inc(metrics.SweepsRun)
	s.logger.Info("sweep complete",
		"locations", report.LocationsSwept,
		"processed", report.ProcessedReviews,
		"inserted_concepts", report.InsertedConcepts,
		"errors", len(report.Errors),
		"elapsed", time.Since(start))
	return report, nil
}

// drainLocation runs backlog batches for one location until a batch flips no
// reviews, the iteration cap is hit, or the location deadline expires.
// Batches that flip nothing but report failures also stop the drain: the
// remaining backlog is all failing reviews and retrying them within the same
// sweep would spin.
func (s *Sweeper) drainLocation(parent context.Context, locationID string) (processed, inserted int, err error) {
	ctx, cancel := context.WithTimeout(parent, time.Duration(s.cfg.LocationTimeoutSeconds)*time.Second)
	defer cancel()

	for i := 0; i < s.cfg.MaxIterations; i++ {
		result, err := s.controller.ProcessBacklog(ctx, locationID, s.batchLimit)
		if err != nil {
			return processed, inserted, err
		}
		processed += result.Processed
		inserted += result.InsertedConcepts

		if result.Processed == 0 {
			if n := len(result.Failures); n > 0 {
				return processed, inserted, fmt.Errorf("%d reviews failing extraction", n)
			}
			return processed, inserted, nil
		}
	}
	s.logger.Warn("location hit iteration cap, leaving remainder for next sweep",
		"location_id", locationID, "iterations", s.cfg.MaxIterations)
	return processed, inserted, nil
}
