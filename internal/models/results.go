package models

// BatchFailure records one unit that failed inside an otherwise successful
// batch. Per-item failures never abort a batch; they are surfaced here.
type BatchFailure struct {
	ReviewID string `json:"review_id"`
	Error    string `json:"error"`
}

// BacklogResult summarizes one ProcessBacklog call. Processed counts reviews
// whose conceptualized flag was flipped in this call.
type BacklogResult struct {
	Processed        int            `json:"processed"`
	InsertedConcepts int            `json:"inserted_concepts"`
	Failures         []BatchFailure `json:"failures,omitempty"`
}

// SweepError records one location whose backlog drain failed mid-sweep.
type SweepError struct {
	LocationID string `json:"location_id"`
	Error      string `json:"error"`
}

// SweepReport aggregates a full backlog sweep across locations.
type SweepReport struct {
	LocationsSwept   int          `json:"locations_swept"`
	ProcessedReviews int          `json:"processed_reviews"`
	InsertedConcepts int          `json:"inserted_concepts"`
	Errors           []SweepError `json:"errors,omitempty"`
}

// GroupingResult is the outcome of one topic grouping call. TopicIDs is only
// populated in commit mode and lists created or reused topics, keyed by label.
type GroupingResult struct {
	Proposals []TopicProposal   `json:"proposals"`
	TopicIDs  map[string]string `json:"topic_ids,omitempty"`
	Assigned  int               `json:"assigned"`
	DryRun    bool              `json:"dry_run"`
}

// PipelineStats holds per-stage backlog and completion counts.
type PipelineStats struct {
	TotalReviews          int64 `json:"total_reviews"`
	ConceptualizedReviews int64 `json:"conceptualized_reviews"`
	TotalConcepts         int64 `json:"total_concepts"`
	NormalizedConcepts    int64 `json:"normalized_concepts"`
	AspectClusters        int64 `json:"aspect_clusters"`
	EntityClusters        int64 `json:"entity_clusters"`
	Topics                int64 `json:"topics"`
	StableTopics          int64 `json:"stable_topics"`
}
