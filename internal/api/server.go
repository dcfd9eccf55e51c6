// Package api exposes job control and the per-entity alert queries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/regsync"
	"github.com/sells-group/carrier-sync/internal/resilience"
	"github.com/sells-group/carrier-sync/internal/signals"
	"github.com/sells-group/carrier-sync/internal/store"
)

const defaultJobListLimit = 50

// JobService is the job-control surface of the sync engine.
type JobService interface {
	StartJob(ctx context.Context, req regsync.JobRequest) (string, error)
	GetJobStatus(ctx context.Context, id string) (*model.SyncJob, error)
	ListJobs(ctx context.Context, limit int) ([]model.SyncJob, error)
	Cancel(id string) error
}

// SignalService answers insurance and risk queries.
type SignalService interface {
	InsuranceWindow(ctx context.Context, dot string, now time.Time) (*model.InsuranceWindow, error)
	Risk(ctx context.Context, dot string) (*signals.Risk, error)
}

// EntityReader reads stored entities.
type EntityReader interface {
	GetEntity(ctx context.Context, externalID string) (*store.StoredEntity, error)
	Ping(ctx context.Context) error
}

// Server holds the API dependencies.
type Server struct {
	jobs     JobService
	signals  SignalService
	entities EntityReader
	origins  []string
	now      func() time.Time
}

// NewServer creates a Server. origins configures CORS; empty allows any
// origin.
func NewServer(jobs JobService, sig SignalService, entities EntityReader, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{jobs: jobs, signals: sig, entities: entities, origins: origins, now: time.Now}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleStartJob)
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
		r.Post("/{id}/cancel", s.handleCancelJob)
	})

	r.Route("/entities/{dot}", func(r chi.Router) {
		r.Get("/", s.handleGetEntity)
		r.Get("/insurance-tier", s.handleInsuranceTier)
		r.Get("/risk", s.handleRisk)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.entities.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req regsync.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	id, err := s.jobs.StartJob(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(model.JobStatusPending)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = n
	}
	jobs, err := s.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []model.SyncJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job, "success_rate": job.SuccessRate()})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	dot, err := model.ValidateDOT(chi.URLParam(r, "dot"))
	if err != nil {
		writeError(w, err)
		return
	}
	stored, err := s.entities.GetEntity(r.Context(), dot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleInsuranceTier(w http.ResponseWriter, r *http.Request) {
	now := s.now().UTC()
	if v := r.URL.Query().Get("now"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("now must be RFC3339"))
			return
		}
		now = t
	}

	dot := chi.URLParam(r, "dot")
	win, err := s.signals.InsuranceWindow(r.Context(), dot, now)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"entity_id": dot, "tier": model.TierNone}
	if win != nil {
		resp["entity_id"] = win.EntityID
		resp["tier"] = win.CurrentTier
		resp["window"] = win
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	risk, err := s.signals.Risk(r.Context(), chi.URLParam(r, "dot"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, risk)
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case resilience.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, regsync.ErrJobNotRunning):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("component", "api"), zap.Error(err))
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// requestLogger logs each request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("component", "api"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
