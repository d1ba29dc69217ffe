// Package metrics provides application-level counters using stdlib expvar.
// Importing expvar registers the /debug/vars handler on the default mux.
package metrics

import "expvar"

// Pipeline stage counters.
var (
	ReviewsProcessed   = expvar.NewInt("reviewlens_reviews_processed_total")
	ConceptsInserted   = expvar.NewInt("reviewlens_concepts_inserted_total")
	ExtractionFailures = expvar.NewInt("reviewlens_extraction_failures_total")
	MergesApplied      = expvar.NewInt("reviewlens_merges_applied_total")
	ConceptsFinalized  = expvar.NewInt("reviewlens_concepts_finalized_total")
	TopicsCreated      = expvar.NewInt("reviewlens_topics_created_total")
	TopicsDescribed    = expvar.NewInt("reviewlens_topics_described_total")
	SweepsRun          = expvar.NewInt("reviewlens_sweeps_run_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// Add increments the given counter by n.
func Add(counter *expvar.Int, n int64) { counter.Add(n) }
