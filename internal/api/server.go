// Package api exposes the pipeline stages over HTTP for operators and the
// external scheduler.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reviewlens/reviewlens/internal/cluster"
	"github.com/reviewlens/reviewlens/internal/intake"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/normalize"
	"github.com/reviewlens/reviewlens/internal/scheduler"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/internal/topics"
)

// Resolvers holds one cluster resolver per label kind.
type Resolvers struct {
	Aspect *cluster.Resolver
	Entity *cluster.Resolver
}

// byKind selects the resolver for a label kind.
func (r Resolvers) byKind(kind models.LabelKind) (*cluster.Resolver, bool) {
	switch kind {
	case models.LabelKindAspect:
		return r.Aspect, true
	case models.LabelKindEntity:
		return r.Entity, true
	default:
		return nil, false
	}
}

// Server is the HTTP API server over the pipeline services.
type Server struct {
	store      store.Store
	intake     *intake.Controller
	resolvers  Resolvers
	finalizer  *normalize.Finalizer
	topics     *topics.Service
	sweeper    *scheduler.Sweeper
	logger     *slog.Logger
	authToken  string // empty = no auth required
	sweepToken string // shared secret for the scheduler endpoint
}

// NewServer creates a new Server with the given dependencies.
func NewServer(st store.Store, ic *intake.Controller, resolvers Resolvers, fin *normalize.Finalizer, ts *topics.Service, sw *scheduler.Sweeper, logger *slog.Logger, authToken, sweepToken string) *Server {
	return &Server{
		store:      st,
		intake:     ic,
		resolvers:  resolvers,
		finalizer:  fin,
		topics:     ts,
		sweeper:    sw,
		logger:     logger,
		authToken:  authToken,
		sweepToken: sweepToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check — no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Pipeline stage endpoints — wrapped with auth middleware.
	mux.HandleFunc("POST /v1/backlog/process", s.auth(s.handleProcessBacklog))
	mux.HandleFunc("POST /v1/merges/preview", s.auth(s.handlePreviewMerges))
	mux.HandleFunc("POST /v1/merges/apply", s.auth(s.handleApplyMerges))
	mux.HandleFunc("POST /v1/normalize/finalize", s.auth(s.handleFinalize))
	mux.HandleFunc("POST /v1/topics/group", s.auth(s.handleGroupTopics))
	mux.HandleFunc("POST /v1/topics/{id}/describe", s.auth(s.handleDescribeTopic))
	mux.HandleFunc("POST /v1/topics/{id}/stable", s.auth(s.handleMarkStable))
	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))

	// Scheduler hook — authenticated by its own shared secret.
	mux.HandleFunc("POST /v1/sweep", s.sweepAuth(s.handleSweep))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		if !bearerMatches(r, s.authToken) {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// sweepAuth guards the scheduler endpoint with the sweep token, falling back
// to the API token when no dedicated sweep token is configured.
func (s *Server) sweepAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.sweepToken
		if token == "" {
			token = s.authToken
		}
		if token == "" {
			next(w, r)
			return
		}
		if !bearerMatches(r, token) {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func bearerMatches(r *http.Request, want string) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processBacklogRequest is the body accepted by POST /v1/backlog/process.
type processBacklogRequest struct {
	LocationID string `json:"location_id"`
	Limit      int    `json:"limit"`
}

func (s *Server) handleProcessBacklog(w http.ResponseWriter, r *http.Request) {
	var req processBacklogRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.LocationID == "" {
		s.writeError(w, http.StatusBadRequest, "location_id is required")
		return
	}

	result, err := s.intake.ProcessBacklog(r.Context(), req.LocationID, req.Limit)
	if err != nil {
		s.logger.Error("backlog processing failed", "location_id", req.LocationID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to process backlog")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// mergeRequest is the body accepted by the merge preview and apply endpoints.
type mergeRequest struct {
	Kind  models.LabelKind `json:"kind"`
	Limit int              `json:"limit"`
}

// mergeResponse is returned by the merge preview and apply endpoints.
type mergeResponse struct {
	Kind      models.LabelKind       `json:"kind"`
	Applied   bool                   `json:"applied"`
	Proposals []models.MergeProposal `json:"proposals"`
}

func (s *Server) handlePreviewMerges(w http.ResponseWriter, r *http.Request) {
	s.handleMerges(w, r, false)
}

func (s *Server) handleApplyMerges(w http.ResponseWriter, r *http.Request) {
	s.handleMerges(w, r, true)
}

func (s *Server) handleMerges(w http.ResponseWriter, r *http.Request, apply bool) {
	var req mergeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	resolver, ok := s.resolvers.byKind(req.Kind)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "kind must be one of: aspect, entity")
		return
	}

	var (
		proposals []models.MergeProposal
		err       error
	)
	if apply {
		proposals, err = resolver.ApplyMerges(r.Context(), req.Limit)
	} else {
		proposals, err = resolver.PreviewMerges(r.Context(), req.Limit)
	}
	if err != nil {
		s.logger.Error("merge computation failed", "kind", req.Kind, "apply", apply, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute merges")
		return
	}
	if proposals == nil {
		proposals = []models.MergeProposal{}
	}
	s.writeJSON(w, http.StatusOK, mergeResponse{Kind: req.Kind, Applied: apply, Proposals: proposals})
}

// finalizeRequest is the body accepted by POST /v1/normalize/finalize.
type finalizeRequest struct {
	Limit int `json:"limit"`
}

// finalizeResponse is returned by POST /v1/normalize/finalize.
type finalizeResponse struct {
	Finalized int `json:"finalized"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	n, err := s.finalizer.FinalizeBatch(r.Context(), req.Limit)
	if err != nil {
		s.logger.Error("finalization failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to finalize concepts")
		return
	}
	s.writeJSON(w, http.StatusOK, finalizeResponse{Finalized: n})
}

// groupTopicsRequest is the body accepted by POST /v1/topics/group.
type groupTopicsRequest struct {
	DryRun bool `json:"dry_run"`
	Limit  int  `json:"limit"`
}

func (s *Server) handleGroupTopics(w http.ResponseWriter, r *http.Request) {
	var req groupTopicsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.topics.GroupConcepts(r.Context(), topics.GroupOptions{
		DryRun: req.DryRun,
		Limit:  req.Limit,
	})
	if err != nil {
		s.logger.Error("topic grouping failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to group concepts")
		return
	}
	if result.Proposals == nil {
		result.Proposals = []models.TopicProposal{}
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDescribeTopic(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	topic, err := s.topics.DescribeTopic(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "topic not found")
		case errors.Is(err, topics.ErrInsufficientData):
			s.writeError(w, http.StatusUnprocessableEntity, "topic has no member concepts")
		default:
			s.logger.Error("topic description failed", "topic_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to describe topic")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleMarkStable(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	topic, err := s.topics.MarkStable(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "topic not found")
			return
		}
		s.logger.Error("marking topic stable failed", "topic_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to mark topic stable")
		return
	}
	s.writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to run sweep")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// --- helpers ---

// decodeBody decodes a JSON request body into dst, tolerating an empty body
// so endpoints with all-optional fields can be called bare. Returns false
// after writing an error response when the body is malformed.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
