// Package cluster groups near-duplicate concept labels into canonical label
// clusters using embedding similarity with deterministic winner selection.
//
// The resolver has two entry points sharing one computation: PreviewMerges is
// a pure dry run, ApplyMerges persists the identical result. Determinism
// comes from processing labels in a fixed order (frequency descending, then
// normalized form, then raw label) so the same inputs always produce the same
// clusters and winners.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/embedder"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/textutil"
)

// Options holds the clustering tunables. Threshold is the minimum similarity
// for two labels to merge; Similarity scores a pair of vectors.
type Options struct {
	Threshold  float64
	Similarity SimilarityFunc
}

// OptionsFromConfig builds Options from the cluster configuration section.
func OptionsFromConfig(cfg config.ClusterConfig) (Options, error) {
	sim, err := SimilarityByName(cfg.Distance)
	if err != nil {
		return Options{}, err
	}
	return Options{Threshold: cfg.SimilarityThreshold, Similarity: sim}, nil
}

// Resolver clusters not-yet-normalized labels of one kind (aspect or entity).
type Resolver struct {
	kind     models.LabelKind
	store    store.Store
	embedder embedder.Embedder
	opts     Options
	limits   config.PipelineConfig
	logger   *slog.Logger
}

// NewResolver creates a cluster resolver for the given label kind.
func NewResolver(kind models.LabelKind, st store.Store, emb embedder.Embedder, opts Options, limits config.PipelineConfig, logger *slog.Logger) (*Resolver, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid label kind %q", kind)
	}
	if opts.Similarity == nil {
		opts.Similarity = CosineSimilarity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		kind:     kind,
		store:    st,
		embedder: emb,
		opts:     opts,
		limits:   limits,
		logger:   logger.With("kind", string(kind)),
	}, nil
}

// member is one label participating in a cluster this pass.
type member struct {
	label  string
	freq   int
	vector []float32
}

// group is one new cluster formed this pass. The seed (first member) is the
// winner: labels are processed in frequency-then-lexicographic order, so the
// seed always carries the highest frequency, with ties broken by smallest
// normalized form.
type group struct {
	detKey  string
	members []member
}

func (g *group) winner() string { return g.members[0].label }

func (g *group) losers() []string {
	out := make([]string, 0, len(g.members)-1)
	for _, m := range g.members[1:] {
		out = append(out, m.label)
	}
	sort.Strings(out)
	return out
}

// plan is the full outcome of one clustering pass.
type plan struct {
	// newGroups are clusters seeded this pass, including singletons.
	newGroups []*group
	// extensions maps an existing cluster's det-key to the labels newly
	// absorbed into it as losers.
	extensions map[string][]string
	// existingByDetKey indexes the clusters loaded at plan time.
	existingByDetKey map[string]models.LabelCluster
	// rejoins are labels that are already members of an existing cluster
	// (from concepts that arrived after the cluster was applied); they only
	// need their concepts reassigned, not a cluster change.
	rejoins map[string]string // label -> cluster det-key
}

// PreviewMerges computes candidate merges for up to limit unresolved labels
// without persisting anything. Only clusters that absorb at least one loser
// are reported; labels that stand alone are left unclustered by preview.
func (r *Resolver) PreviewMerges(ctx context.Context, limit int) ([]models.MergeProposal, error) {
	p, err := r.compute(ctx, limit)
	if err != nil {
		return nil, err
	}
	return p.proposals(), nil
}

// ApplyMerges re-runs the preview computation and persists it: clusters are
// upserted by det-key (extending the loser set when the key already exists)
// and every participating label's concepts are rewritten to the cluster id.
// Labels without a merge partner are persisted as singleton clusters so they
// leave the unresolved candidate set; re-applying an unchanged result
// performs no writes.
func (r *Resolver) ApplyMerges(ctx context.Context, limit int) ([]models.MergeProposal, error) {
	p, err := r.compute(ctx, limit)
	if err != nil {
		return nil, err
	}

	// New clusters, singletons included.
	for _, g := range p.newGroups {
		vecs := make([][]float32, 0, len(g.members))
		for _, m := range g.members {
			vecs = append(vecs, m.vector)
		}
		stored, err := r.store.UpsertCluster(ctx, models.LabelCluster{
			Kind:     r.kind,
			DetKey:   g.detKey,
			Winner:   g.winner(),
			Losers:   g.losers(),
			Centroid: centroid(vecs),
		})
		if err != nil {
			return nil, fmt.Errorf("upserting cluster %s: %w", g.detKey, err)
		}
		for _, m := range g.members {
			if _, err := r.store.AssignNormalizedLabel(ctx, r.kind, m.label, stored.ID); err != nil {
				return nil, fmt.Errorf("assigning label %q: %w", m.label, err)
			}
		}
	}

	// Extensions of clusters from earlier passes.
	for detKey, losers := range p.extensions {
		existing := p.existingByDetKey[detKey]
		stored, err := r.store.UpsertCluster(ctx, models.LabelCluster{
			Kind:   r.kind,
			DetKey: detKey,
			Winner: existing.Winner,
			Losers: losers,
		})
		if err != nil {
			return nil, fmt.Errorf("extending cluster %s: %w", detKey, err)
		}
		for _, label := range losers {
			if _, err := r.store.AssignNormalizedLabel(ctx, r.kind, label, stored.ID); err != nil {
				return nil, fmt.Errorf("assigning label %q: %w", label, err)
			}
		}
	}

	// Labels already in a cluster: reassign their newly-arrived concepts.
	for label, detKey := range p.rejoins {
		existing := p.existingByDetKey[detKey]
		if _, err := r.store.AssignNormalizedLabel(ctx, r.kind, label, existing.ID); err != nil {
			return nil, fmt.Errorf("reassigning label %q: %w", label, err)
		}
	}

	proposals := p.proposals()
	metrics.Add(metrics.MergesApplied, int64(len(proposals)))
	r.logger.Info("applied merges",
		"clusters", len(p.newGroups),
		"extended", len(p.extensions),
		"merge_proposals", len(proposals))
	return proposals, nil
}

// compute runs the shared clustering pass: load unresolved labels, route
// labels already covered by existing clusters, embed the rest, and group by
// similarity in deterministic order.
func (r *Resolver) compute(ctx context.Context, limit int) (*plan, error) {
	limit = r.limits.ClampLimit(limit)

	stats, err := r.store.ListUnresolvedLabels(ctx, r.kind, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unresolved labels: %w", err)
	}

	p := &plan{
		extensions:       make(map[string][]string),
		existingByDetKey: make(map[string]models.LabelCluster),
		rejoins:          make(map[string]string),
	}
	if len(stats) == 0 {
		return p, nil
	}

	existing, err := r.store.ListClusters(ctx, r.kind)
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}
	memberOf := make(map[string]string, len(existing)) // raw label -> det-key
	for _, cl := range existing {
		p.existingByDetKey[cl.DetKey] = cl
		memberOf[cl.Winner] = cl.DetKey
		for _, l := range cl.Losers {
			memberOf[l] = cl.DetKey
		}
	}

	// Deterministic processing order: frequency descending, then normalized
	// form, then raw label. The first member of every group is its winner.
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		ni, nj := textutil.NormalizeLabel(stats[i].Label), textutil.NormalizeLabel(stats[j].Label)
		if ni != nj {
			return ni < nj
		}
		return stats[i].Label < stats[j].Label
	})

	var candidates []models.LabelStat
	for _, st := range stats {
		if detKey, ok := memberOf[st.Label]; ok {
			p.rejoins[st.Label] = detKey
			continue
		}
		if detKey := textutil.NormalizeLabel(st.Label); detKey != "" {
			if _, ok := p.existingByDetKey[detKey]; ok {
				// Same canonical form as an existing cluster's winner:
				// absorb without spending an embedding call.
				p.extensions[detKey] = append(p.extensions[detKey], st.Label)
				continue
			}
		}
		candidates = append(candidates, st)
	}

	if len(candidates) == 0 {
		r.finishPlan(p)
		return p, nil
	}

	labels := make([]string, len(candidates))
	for i, st := range candidates {
		labels[i] = st.Label
	}
	vectors, err := r.embedder.EmbedBatch(ctx, labels)
	if err != nil {
		return nil, fmt.Errorf("embedding %d labels: %w", len(labels), err)
	}
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d labels", len(vectors), len(labels))
	}

	newByDetKey := make(map[string]*group)
	for i, st := range candidates {
		m := member{label: st.Label, freq: st.Frequency, vector: vectors[i]}

		// Prefer joining an existing cluster via its persisted centroid so
		// later batches converge on earlier clusters instead of seeding
		// near-duplicates. Existing clusters are scanned in det-key order.
		if detKey, ok := r.bestCentroidMatch(m.vector, existing); ok {
			p.extensions[detKey] = append(p.extensions[detKey], m.label)
			continue
		}

		// First new group whose seed is similar enough wins; groups are
		// scanned in creation order, which is itself deterministic.
		joined := false
		for _, g := range p.newGroups {
			if r.opts.Similarity(g.members[0].vector, m.vector) >= r.opts.Threshold {
				g.members = append(g.members, m)
				joined = true
				break
			}
		}
		if joined {
			continue
		}

		detKey := textutil.NormalizeLabel(m.label)
		if g, ok := newByDetKey[detKey]; ok {
			// Distinct raw labels with identical canonical form always
			// share a cluster, whatever the embeddings say.
			g.members = append(g.members, m)
			continue
		}
		g := &group{detKey: detKey, members: []member{m}}
		p.newGroups = append(p.newGroups, g)
		newByDetKey[detKey] = g
	}

	r.finishPlan(p)
	return p, nil
}

// bestCentroidMatch returns the det-key of the most similar existing cluster
// centroid at or above the threshold. Ties resolve to the smaller det-key
// because clusters arrive sorted.
func (r *Resolver) bestCentroidMatch(vec []float32, existing []models.LabelCluster) (string, bool) {
	bestKey := ""
	bestSim := 0.0
	for _, cl := range existing {
		if len(cl.Centroid) == 0 {
			continue
		}
		sim := r.opts.Similarity(cl.Centroid, vec)
		if sim >= r.opts.Threshold && sim > bestSim {
			bestKey, bestSim = cl.DetKey, sim
		}
	}
	return bestKey, bestKey != ""
}

// finishPlan sorts extension loser lists for stable output.
func (r *Resolver) finishPlan(p *plan) {
	for detKey := range p.extensions {
		sort.Strings(p.extensions[detKey])
	}
}

// proposals renders the plan as merge proposals: new groups with at least one
// loser plus extensions of existing clusters, sorted by det-key.
func (p *plan) proposals() []models.MergeProposal {
	var out []models.MergeProposal
	for _, g := range p.newGroups {
		if len(g.members) < 2 {
			continue
		}
		out = append(out, models.MergeProposal{
			DetKey: g.detKey,
			Winner: g.winner(),
			Losers: g.losers(),
		})
	}
	for detKey, losers := range p.extensions {
		out = append(out, models.MergeProposal{
			DetKey: detKey,
			Winner: p.existingByDetKey[detKey].Winner,
			Losers: losers,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetKey < out[j].DetKey })
	return out
}
