// Package server exposes the research pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/internal/jobs"
	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/monitoring"
	"github.com/sells-group/research-brief/internal/pipeline"
	"github.com/sells-group/research-brief/pkg/anthropic"
)

const maxBodyBytes = 1 << 20

// Service is the part of the pipeline the API needs.
type Service interface {
	Run(ctx context.Context, req model.ResearchRequest) (*model.ResearchResponse, error)
	JobStatus(ctx context.Context, jobID string) (*model.JobStatus, error)
	ResolveJob(summary string, st *model.JobStatus) (model.ProofSignalsBundle, bool)
}

// Metrics records finished runs and summarizes recent ones.
type Metrics interface {
	Record(resp *model.ResearchResponse)
	Collect(lookbackHours int) *monitoring.MetricsSnapshot
}

// JobResponse is the body of a job status check. ProofSignals is set once
// the job is terminal and the caller passed the idea summary.
type JobResponse struct {
	JobID string `json:"jobId"`
	model.JobStatus
	ProofSignals *model.ProofSignalsBundle `json:"proofSignals,omitempty"`
}

// Server routes API requests to a Service.
type Server struct {
	svc      Service
	cfg      config.ServerConfig
	metrics  Metrics
	lookback int
	router   *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records every run in m and serves its snapshot over
// lookbackHours at /v1/metrics.
func WithMetrics(m Metrics, lookbackHours int) Option {
	return func(s *Server) {
		s.metrics = m
		s.lookback = lookbackHours
	}
}

// New builds a Server and its routes.
func New(svc Service, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{svc: svc, cfg: cfg, router: chi.NewRouter()}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/v1/research", func(r chi.Router) {
		r.Post("/", s.handleResearch)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
	})
	if s.metrics != nil {
		s.router.Get("/v1/metrics", s.handleMetrics)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req model.ResearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.svc.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptySummary) {
			writeError(w, http.StatusBadRequest, "summary is required")
			return
		}
		zap.L().Error("server: research run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "research failed")
		return
	}

	if s.metrics != nil {
		s.metrics.Record(resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Collect(s.lookback))
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	st, err := s.svc.JobStatus(r.Context(), jobID)
	if err != nil {
		status := jobErrorStatus(err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("server: job status failed", zap.String("job_id", jobID), zap.Error(err))
		}
		writeError(w, status, http.StatusText(status))
		return
	}

	out := JobResponse{JobID: jobID, JobStatus: *st}
	if summary := strings.TrimSpace(r.URL.Query().Get("summary")); summary != "" {
		if b, ok := s.svc.ResolveJob(summary, st); ok {
			out.ProofSignals = &b
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func jobErrorStatus(err error) int {
	switch {
	case errors.Is(err, jobs.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case anthropic.StatusCode(err) == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
