package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/usecase"
)

// Server exposes the generation API.
type Server struct {
	orchestrator usecase.OrchestratorUseCase
	quota        usecase.QuotaUseCase
	jwtSecret    string
	log          *zerolog.Logger
}

func NewServer(orchestrator usecase.OrchestratorUseCase, quota usecase.QuotaUseCase, jwtSecret string, logger *zerolog.Logger) *Server {
	srvLog := logger.With().Str("component", "APIServer").Logger()
	return &Server{orchestrator: orchestrator, quota: quota, jwtSecret: jwtSecret, log: &srvLog}
}

// Handler builds the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return Auth(s.jwtSecret)(next) })
		r.Post("/generations", s.handleGenerate)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/usage/{feature}", s.handleUsage)
		r.Get("/history", s.handleHistory)
	})

	return Chain(r,
		TraceID(),
		Recover(s.log),
		RequestLog(s.log),
		Timeout(5*time.Minute),
	)
}

type generationResponse struct {
	Status string                  `json:"status"` // completed | queued
	Result *model.GenerationResult `json:"result,omitempty"`
	Cached bool                    `json:"cached,omitempty"`
	JobID  string                  `json:"job_id,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}
	// Identity comes from the token, never the body.
	req.RequesterID = AccountID(r.Context())

	res, job, err := s.orchestrator.Dispatch(r.Context(), &req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if job != nil {
		writeJSON(w, http.StatusAccepted, generationResponse{Status: "queued", JobID: job.ID})
		return
	}
	writeJSON(w, http.StatusOK, generationResponse{Status: "completed", Result: res, Cached: res.Cached()})
}

type jobResponse struct {
	ID          string                  `json:"id"`
	Status      model.JobStatus         `json:"status"`
	Feature     model.Feature           `json:"feature"`
	SubmittedAt time.Time               `json:"submitted_at"`
	FinishedAt  *time.Time              `json:"finished_at,omitempty"`
	Result      *model.GenerationResult `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if job.AccountID != AccountID(r.Context()) {
		writeError(w, http.StatusNotFound, "job not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{
		ID:          job.ID,
		Status:      job.Status,
		Feature:     job.Feature,
		SubmittedAt: job.SubmittedAt,
		FinishedAt:  job.FinishedAt,
		Result:      job.Result,
		Error:       job.LastError,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	feature := model.Feature(chi.URLParam(r, "feature"))
	stats, err := s.quota.GetUsageStats(r.Context(), AccountID(r.Context()), feature)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type historyRow struct {
	Feature   model.Feature `json:"feature"`
	Provider  string        `json:"provider,omitempty"`
	Outcome   string        `json:"outcome"`
	CostCents int64         `json:"cost_cents"`
	LatencyMs int64         `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.orchestrator.History(r.Context(), AccountID(r.Context()), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]historyRow, 0, len(rows))
	for _, a := range rows {
		out = append(out, historyRow{
			Feature:   a.Feature,
			Provider:  a.Provider,
			Outcome:   a.Outcome,
			CostCents: a.CostCents,
			LatencyMs: a.LatencyMs,
			Error:     a.Error,
			CreatedAt: a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type errorBody struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]any) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *domain.ContentRejectedError
	var quota *domain.QuotaExceededError
	var exhausted *domain.AllProvidersFailedError

	switch {
	case errors.As(err, &rejected):
		writeError(w, http.StatusUnprocessableEntity, "content rejected by moderation", map[string]any{
			"categories": rejected.Categories,
			"confidence": rejected.Confidence,
		})
	case errors.As(err, &quota):
		writeError(w, http.StatusTooManyRequests, quota.Reason, map[string]any{
			"reset_at": quota.ResetAt.Format(time.RFC3339),
		})
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many requests", nil)
	case errors.Is(err, domain.ErrQueueBusy):
		writeError(w, http.StatusServiceUnavailable, "generation queue is full, retry later", nil)
	case errors.Is(err, domain.ErrFeatureDisabled):
		writeError(w, http.StatusServiceUnavailable, "feature has no configured providers", nil)
	case errors.As(err, &exhausted):
		writeError(w, http.StatusBadGateway, "all providers failed", map[string]any{
			"feature": exhausted.Feature,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, domain.ErrWrongPayload), errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
