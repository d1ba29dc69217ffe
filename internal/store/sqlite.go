package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/reviewlens/reviewlens/internal/models"
)

// SQLiteStore implements Store using a single SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if necessary) the database at dbPath and
// runs schema bootstrap. Pass ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	// Single writer; SQLite serializes writes anyway and this avoids
	// SQLITE_BUSY under concurrent batch calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logger.Info("opened sqlite store", "path", dbPath)
	return s, nil
}

// migrate creates all tables and indexes if they don't exist.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,

		`CREATE TABLE IF NOT EXISTS reviews (
			id                TEXT PRIMARY KEY,
			location_id       TEXT NOT NULL,
			company_id        TEXT NOT NULL DEFAULT '',
			comment           TEXT NOT NULL DEFAULT '',
			rating            INTEGER NOT NULL DEFAULT 0,
			is_test           INTEGER NOT NULL DEFAULT 0,
			is_conceptualized INTEGER NOT NULL DEFAULT 0,
			created_at        TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_backlog
			ON reviews(location_id, is_conceptualized, is_test, created_at)`,

		`CREATE TABLE IF NOT EXISTS concepts (
			id                   TEXT PRIMARY KEY,
			review_id            TEXT NOT NULL REFERENCES reviews(id),
			aspect               TEXT NOT NULL,
			entity               TEXT NOT NULL,
			sentiment            TEXT NOT NULL DEFAULT 'neutral',
			relevance            REAL NOT NULL DEFAULT 0,
			implied_rating       INTEGER NOT NULL DEFAULT 0,
			normalized_aspect_id TEXT NOT NULL DEFAULT '',
			normalized_entity_id TEXT NOT NULL DEFAULT '',
			normalized_at        TIMESTAMP,
			topic_id             TEXT NOT NULL DEFAULT '',
			created_at           TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_concepts_review ON concepts(review_id)`,
		`CREATE INDEX IF NOT EXISTS idx_concepts_aspect ON concepts(aspect, normalized_aspect_id)`,
		`CREATE INDEX IF NOT EXISTS idx_concepts_entity ON concepts(entity, normalized_entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_concepts_normalized_at ON concepts(normalized_at)`,
		`CREATE INDEX IF NOT EXISTS idx_concepts_topic ON concepts(topic_id)`,

		`CREATE TABLE IF NOT EXISTS label_clusters (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			det_key    TEXT NOT NULL,
			winner     TEXT NOT NULL,
			losers     TEXT NOT NULL DEFAULT '[]',
			centroid   TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(kind, det_key)
		)`,

		`CREATE TABLE IF NOT EXISTS topics (
			id          TEXT PRIMARY KEY,
			label       TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			is_stable   INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", strings.Fields(stmt)[0]+" ...", err)
		}
	}
	return nil
}

// InsertReview stores a review record.
func (s *SQLiteStore) InsertReview(ctx context.Context, review models.Review) error {
	if review.ID == "" {
		return fmt.Errorf("review id must not be empty")
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, location_id, company_id, comment, rating, is_test, is_conceptualized, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		review.ID, review.LocationID, review.CompanyID, review.Comment,
		review.Rating, boolToInt(review.IsTest), boolToInt(review.IsConceptualized), review.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting review %s: %w", review.ID, err)
	}
	return nil
}

// GetReview retrieves a single review by ID.
func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, location_id, company_id, comment, rating, is_test, is_conceptualized, created_at
		 FROM reviews WHERE id = ?`, id)
	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: review %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting review %s: %w", id, err)
	}
	return r, nil
}

// ListUnconceptualized returns eligible backlog reviews oldest first.
func (s *SQLiteStore) ListUnconceptualized(ctx context.Context, locationID string, limit int) ([]models.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, location_id, company_id, comment, rating, is_test, is_conceptualized, created_at
		 FROM reviews
		 WHERE location_id = ? AND is_test = 0 AND is_conceptualized = 0 AND TRIM(comment) != ''
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`, locationID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing backlog for location %s: %w", locationID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListLocationIDs returns the distinct location ids sorted ascending.
func (s *SQLiteStore) ListLocationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT location_id FROM reviews ORDER BY location_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning location id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// InsertConceptsMarkingReview inserts all concepts for a review and flips the
// conceptualized flag in one transaction, guarded on the flag being unset.
func (s *SQLiteStore) InsertConceptsMarkingReview(ctx context.Context, reviewID string, concepts []models.Concept) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE reviews SET is_conceptualized = 1 WHERE id = ? AND is_conceptualized = 0`,
		reviewID)
	if err != nil {
		return fmt.Errorf("marking review %s conceptualized: %w", reviewID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		// Either the review is missing or another writer won the flip.
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM reviews WHERE id = ?`, reviewID).Scan(&exists); err != nil {
			return fmt.Errorf("checking review %s: %w", reviewID, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: review %s", ErrNotFound, reviewID)
		}
		return ErrAlreadyConceptualized
	}

	now := time.Now().UTC()
	for i := range concepts {
		c := concepts[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO concepts (id, review_id, aspect, entity, sentiment, relevance, implied_rating,
			                       normalized_aspect_id, normalized_entity_id, topic_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, '', '', '', ?)`,
			c.ID, reviewID, c.Aspect, c.Entity, string(c.Sentiment), c.Relevance, c.ImpliedRating, c.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting concept for review %s: %w", reviewID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing concepts for review %s: %w", reviewID, err)
	}
	return nil
}

const conceptColumns = `id, review_id, aspect, entity, sentiment, relevance, implied_rating,
	normalized_aspect_id, normalized_entity_id, normalized_at, topic_id, created_at`

// ListConceptsByReview returns the concepts extracted from one review.
func (s *SQLiteStore) ListConceptsByReview(ctx context.Context, reviewID string) ([]models.Concept, error) {
	return s.queryConcepts(ctx,
		`SELECT `+conceptColumns+` FROM concepts WHERE review_id = ? ORDER BY created_at ASC, id ASC`,
		reviewID)
}

// ListUnresolvedLabels returns distinct unresolved raw labels with frequency.
func (s *SQLiteStore) ListUnresolvedLabels(ctx context.Context, kind models.LabelKind, limit int) ([]models.LabelStat, error) {
	labelCol, normCol, err := labelColumns(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+labelCol+`, COUNT(*) AS freq
		 FROM concepts
		 WHERE `+normCol+` = '' AND TRIM(`+labelCol+`) != ''
		 GROUP BY `+labelCol+`
		 ORDER BY MIN(created_at) ASC, `+labelCol+` ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unresolved %s labels: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.LabelStat
	for rows.Next() {
		var st models.LabelStat
		if err := rows.Scan(&st.Label, &st.Frequency); err != nil {
			return nil, fmt.Errorf("scanning label stat: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// AssignNormalizedLabel rewrites the normalized id for all concepts carrying
// rawLabel whose id is still unassigned.
func (s *SQLiteStore) AssignNormalizedLabel(ctx context.Context, kind models.LabelKind, rawLabel, clusterID string) (int64, error) {
	labelCol, normCol, err := labelColumns(kind)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE concepts SET `+normCol+` = ? WHERE `+labelCol+` = ? AND `+normCol+` = ''`,
		clusterID, rawLabel)
	if err != nil {
		return 0, fmt.Errorf("assigning %s cluster for label %q: %w", kind, rawLabel, err)
	}
	return res.RowsAffected()
}

// ListFinalizable returns concepts ready for the normalization timestamp.
func (s *SQLiteStore) ListFinalizable(ctx context.Context, limit int) ([]models.Concept, error) {
	return s.queryConcepts(ctx,
		`SELECT `+conceptColumns+` FROM concepts
		 WHERE normalized_at IS NULL AND normalized_aspect_id != '' AND normalized_entity_id != ''
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`, limit)
}

// FinalizeConcepts stamps NormalizedAt on the given concepts, re-checking the
// eligibility guard inside the UPDATE.
func (s *SQLiteStore) FinalizeConcepts(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UTC())
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE concepts SET normalized_at = ?
		 WHERE id IN (`+placeholders+`)
		   AND normalized_at IS NULL
		   AND normalized_aspect_id != '' AND normalized_entity_id != ''`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("finalizing concepts: %w", err)
	}
	return res.RowsAffected()
}

// ListGroupable returns normalized concepts not attached to a stable topic.
func (s *SQLiteStore) ListGroupable(ctx context.Context, limit int) ([]models.Concept, error) {
	return s.queryConcepts(ctx,
		`SELECT c.id, c.review_id, c.aspect, c.entity, c.sentiment, c.relevance, c.implied_rating,
		        c.normalized_aspect_id, c.normalized_entity_id, c.normalized_at, c.topic_id, c.created_at
		 FROM concepts c
		 LEFT JOIN topics t ON c.topic_id = t.id
		 WHERE c.normalized_at IS NOT NULL
		   AND (c.topic_id = '' OR IFNULL(t.is_stable, 0) = 0)
		 ORDER BY c.created_at ASC, c.id ASC
		 LIMIT ?`, limit)
}

// AssignTopic sets topicID on concepts, never moving members of stable topics.
func (s *SQLiteStore) AssignTopic(ctx context.Context, conceptIDs []string, topicID string) (int64, error) {
	if len(conceptIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(conceptIDs)), ",")
	args := make([]any, 0, len(conceptIDs)+2)
	args = append(args, topicID)
	for _, id := range conceptIDs {
		args = append(args, id)
	}
	args = append(args, topicID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE concepts SET topic_id = ?
		 WHERE id IN (`+placeholders+`)
		   AND normalized_at IS NOT NULL
		   AND topic_id != ?
		   AND topic_id NOT IN (SELECT id FROM topics WHERE is_stable = 1)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("assigning topic %s: %w", topicID, err)
	}
	return res.RowsAffected()
}

// ListConceptsByTopic returns the member concepts of a topic.
func (s *SQLiteStore) ListConceptsByTopic(ctx context.Context, topicID string) ([]models.Concept, error) {
	return s.queryConcepts(ctx,
		`SELECT `+conceptColumns+` FROM concepts WHERE topic_id = ? ORDER BY created_at ASC, id ASC`,
		topicID)
}

// GetClusterByDetKey retrieves a cluster by kind and det-key.
func (s *SQLiteStore) GetClusterByDetKey(ctx context.Context, kind models.LabelKind, detKey string) (*models.LabelCluster, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, det_key, winner, losers, centroid, created_at, updated_at
		 FROM label_clusters WHERE kind = ? AND det_key = ?`,
		string(kind), detKey)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: cluster %s/%s", ErrNotFound, kind, detKey)
	}
	if err != nil {
		return nil, fmt.Errorf("getting cluster %s/%s: %w", kind, detKey, err)
	}
	return c, nil
}

// ListClusters returns all clusters of the given kind ordered by det-key.
func (s *SQLiteStore) ListClusters(ctx context.Context, kind models.LabelKind) ([]models.LabelCluster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, det_key, winner, losers, centroid, created_at, updated_at
		 FROM label_clusters WHERE kind = ? ORDER BY det_key ASC`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing %s clusters: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.LabelCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpsertCluster inserts or extends a cluster keyed by (kind, det-key).
func (s *SQLiteStore) UpsertCluster(ctx context.Context, cluster models.LabelCluster) (*models.LabelCluster, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, kind, det_key, winner, losers, centroid, created_at, updated_at
		 FROM label_clusters WHERE kind = ? AND det_key = ?`,
		string(cluster.Kind), cluster.DetKey)
	existing, err := scanCluster(row)

	switch {
	case err == sql.ErrNoRows:
		stored := cluster
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = stored.CreatedAt
		stored.Losers = mergeLosers(nil, cluster.Losers, stored.Winner)
		losersJSON, centroidJSON, encErr := encodeClusterFields(stored)
		if encErr != nil {
			return nil, encErr
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO label_clusters (id, kind, det_key, winner, losers, centroid, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, string(stored.Kind), stored.DetKey, stored.Winner,
			losersJSON, centroidJSON, stored.CreatedAt, stored.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("inserting cluster %s/%s: %w", cluster.Kind, cluster.DetKey, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing cluster insert: %w", err)
		}
		return &stored, nil

	case err != nil:
		return nil, fmt.Errorf("reading cluster %s/%s: %w", cluster.Kind, cluster.DetKey, err)
	}

	merged := mergeLosers(existing.Losers, cluster.Losers, existing.Winner)
	if len(merged) == len(existing.Losers) {
		// Unchanged loser set: no write.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing cluster read: %w", err)
		}
		return existing, nil
	}

	existing.Losers = merged
	existing.UpdatedAt = time.Now().UTC()
	losersJSON, _, encErr := encodeClusterFields(*existing)
	if encErr != nil {
		return nil, encErr
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE label_clusters SET losers = ?, updated_at = ? WHERE id = ?`,
		losersJSON, existing.UpdatedAt, existing.ID,
	); err != nil {
		return nil, fmt.Errorf("extending cluster %s/%s: %w", cluster.Kind, cluster.DetKey, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cluster update: %w", err)
	}
	return existing, nil
}

// InsertTopic stores a new topic.
func (s *SQLiteStore) InsertTopic(ctx context.Context, topic models.Topic) error {
	if topic.ID == "" {
		return fmt.Errorf("topic id must not be empty")
	}
	now := time.Now().UTC()
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = now
	}
	if topic.UpdatedAt.IsZero() {
		topic.UpdatedAt = topic.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (id, label, description, is_stable, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		topic.ID, topic.Label, topic.Description, boolToInt(topic.IsStable),
		topic.CreatedAt, topic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting topic %s: %w", topic.ID, err)
	}
	return nil
}

// GetTopic retrieves a topic by ID.
func (s *SQLiteStore) GetTopic(ctx context.Context, id string) (*models.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, description, is_stable, created_at, updated_at FROM topics WHERE id = ?`, id)
	t, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: topic %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting topic %s: %w", id, err)
	}
	return t, nil
}

// GetTopicByLabel retrieves a topic by its exact label.
func (s *SQLiteStore) GetTopicByLabel(ctx context.Context, label string) (*models.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, description, is_stable, created_at, updated_at FROM topics WHERE label = ?`, label)
	t, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: topic label %q", ErrNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("getting topic by label %q: %w", label, err)
	}
	return t, nil
}

// ListTopics returns all topics ordered by label.
func (s *SQLiteStore) ListTopics(ctx context.Context) ([]models.Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, description, is_stable, created_at, updated_at FROM topics ORDER BY label ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SetTopicDescription persists a generated description.
func (s *SQLiteStore) SetTopicDescription(ctx context.Context, id, description string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET description = ?, updated_at = ? WHERE id = ?`,
		description, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting description for topic %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: topic %s", ErrNotFound, id)
	}
	return nil
}

// MarkTopicStable sets the stable flag on a topic.
func (s *SQLiteStore) MarkTopicStable(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET is_stable = 1, updated_at = ? WHERE id = ? AND is_stable = 0`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking topic %s stable: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		// Already stable is fine; missing topic is not.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM topics WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking topic %s: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: topic %s", ErrNotFound, id)
		}
	}
	return nil
}

// Stats returns per-stage pipeline counts.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.PipelineStats, error) {
	stats := &models.PipelineStats{}
	queries := []struct {
		dst   *int64
		query string
	}{
		{&stats.TotalReviews, `SELECT COUNT(*) FROM reviews`},
		{&stats.ConceptualizedReviews, `SELECT COUNT(*) FROM reviews WHERE is_conceptualized = 1`},
		{&stats.TotalConcepts, `SELECT COUNT(*) FROM concepts`},
		{&stats.NormalizedConcepts, `SELECT COUNT(*) FROM concepts WHERE normalized_at IS NOT NULL`},
		{&stats.AspectClusters, `SELECT COUNT(*) FROM label_clusters WHERE kind = 'aspect'`},
		{&stats.EntityClusters, `SELECT COUNT(*) FROM label_clusters WHERE kind = 'entity'`},
		{&stats.Topics, `SELECT COUNT(*) FROM topics`},
		{&stats.StableTopics, `SELECT COUNT(*) FROM topics WHERE is_stable = 1`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("collecting stats: %w", err)
		}
	}
	return stats, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- scan helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*models.Review, error) {
	var r models.Review
	var isTest, isConceptualized int
	if err := row.Scan(&r.ID, &r.LocationID, &r.CompanyID, &r.Comment, &r.Rating,
		&isTest, &isConceptualized, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.IsTest = isTest != 0
	r.IsConceptualized = isConceptualized != 0
	return &r, nil
}

func scanConcept(row rowScanner) (*models.Concept, error) {
	var c models.Concept
	var sentiment string
	var normalizedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.ReviewID, &c.Aspect, &c.Entity, &sentiment,
		&c.Relevance, &c.ImpliedRating, &c.NormalizedAspectID, &c.NormalizedEntityID,
		&normalizedAt, &c.TopicID, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Sentiment = models.Sentiment(sentiment)
	if normalizedAt.Valid {
		ts := normalizedAt.Time
		c.NormalizedAt = &ts
	}
	return &c, nil
}

func scanCluster(row rowScanner) (*models.LabelCluster, error) {
	var c models.LabelCluster
	var kind, losersJSON, centroidJSON string
	if err := row.Scan(&c.ID, &kind, &c.DetKey, &c.Winner, &losersJSON, &centroidJSON,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Kind = models.LabelKind(kind)
	if losersJSON != "" && losersJSON != "[]" {
		if err := json.Unmarshal([]byte(losersJSON), &c.Losers); err != nil {
			return nil, fmt.Errorf("decoding losers: %w", err)
		}
	}
	if centroidJSON != "" {
		if err := json.Unmarshal([]byte(centroidJSON), &c.Centroid); err != nil {
			return nil, fmt.Errorf("decoding centroid: %w", err)
		}
	}
	return &c, nil
}

func scanTopic(row rowScanner) (*models.Topic, error) {
	var t models.Topic
	var isStable int
	if err := row.Scan(&t.ID, &t.Label, &t.Description, &isStable, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.IsStable = isStable != 0
	return &t, nil
}

func encodeClusterFields(c models.LabelCluster) (losersJSON, centroidJSON string, err error) {
	losers := c.Losers
	if losers == nil {
		losers = []string{}
	}
	lb, err := json.Marshal(losers)
	if err != nil {
		return "", "", fmt.Errorf("encoding losers: %w", err)
	}
	centroidJSON = ""
	if len(c.Centroid) > 0 {
		cb, err := json.Marshal(c.Centroid)
		if err != nil {
			return "", "", fmt.Errorf("encoding centroid: %w", err)
		}
		centroidJSON = string(cb)
	}
	return string(lb), centroidJSON, nil
}

func (s *SQLiteStore) queryConcepts(ctx context.Context, query string, args ...any) ([]models.Concept, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying concepts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning concept: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func labelColumns(kind models.LabelKind) (labelCol, normCol string, err error) {
	switch kind {
	case models.LabelKindAspect:
		return "aspect", "normalized_aspect_id", nil
	case models.LabelKindEntity:
		return "entity", "normalized_entity_id", nil
	default:
		return "", "", fmt.Errorf("unknown label kind %q", kind)
	}
}
