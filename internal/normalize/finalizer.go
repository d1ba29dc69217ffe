// Package normalize stamps concepts as fully normalized once both their
// aspect and entity clusters are resolved.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/store"
)

// Finalizer advances eligible concepts to the normalized state.
type Finalizer struct {
	store  store.Store
	limits config.PipelineConfig
	logger *slog.Logger
}

// NewFinalizer creates a normalization finalizer.
func NewFinalizer(st store.Store, limits config.PipelineConfig, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{store: st, limits: limits, logger: logger}
}

// FinalizeBatch stamps NormalizedAt on up to limit concepts whose aspect and
// entity clusters are both resolved, oldest first. Concepts with only one
// resolved cluster are simply not yet eligible, never an error. Returns the
// number of concepts stamped; already-finalized concepts are excluded by the
// selection guard, so repeated calls converge to zero.
func (f *Finalizer) FinalizeBatch(ctx context.Context, limit int) (int, error) {
	limit = f.limits.ClampLimit(limit)

	concepts, err := f.store.ListFinalizable(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing finalizable concepts: %w", err)
	}
	if len(concepts) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(concepts))
	for _, c := range concepts {
		// Recheck in case the store returned stale rows.
		if !c.ReadyToFinalize() {
			continue
		}
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	marked, err := f.store.FinalizeConcepts(ctx, ids, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("finalizing %d concepts: %w", len(ids), err)
	}

	metrics.Add(metrics.ConceptsFinalized, marked)
	f.logger.Info("finalized concepts", "marked", marked)
	return int(marked), nil
}
