package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/stridecoach/internal/engine"
	"github.com/briangreenhill/stridecoach/internal/evaluator"
	"github.com/briangreenhill/stridecoach/internal/scheduler"
	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

type Server struct {
	Router   *chi.Mux
	Sessions *scheduler.Manager
	Outcomes scheduler.OutcomeQueue
	Logger   zerolog.Logger
}

type ServerOptions struct {
	Sessions *scheduler.Manager
	Outcomes scheduler.OutcomeQueue
	Logger   zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(req).Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Sessions: opts.Sessions, Outcomes: opts.Outcomes, Logger: opts.Logger}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/runs/start", s.handleRunStart)
	r.Post("/runs/{runID}/milestone", s.handleMilestone)
	r.Post("/runs/{runID}/end", s.handleRunEnd)
	r.Post("/runs/{runID}/refresh", s.handleRefresh)
	r.Post("/outcomes", s.handleReportOutcome)

	return s
}

type startRunRequest struct {
	UserID         uuid.UUID `json:"user_id"`
	RunID          uuid.UUID `json:"run_id"`
	Personality    string    `json:"personality"`
	Energy         string    `json:"energy"`
	Language       string    `json:"language"`
	TargetPace     float64   `json:"target_pace"`
	TargetDistance float64   `json:"target_distance"`
}

type triggerRequest struct {
	Intervals []telemetry.IntervalSample `json:"intervals"`
	Raw       telemetry.RawStats         `json:"raw"`
}

type strategyResponse struct {
	ExecutionID      uuid.UUID `json:"execution_id"`
	StrategyName     string    `json:"strategy_name"`
	StrategyText     string    `json:"strategy_text"`
	SituationSummary string    `json:"situation_summary"`
	SelectionReason  string    `json:"selection_reason"`
	ConfidenceScore  float64   `json:"confidence_score"`
	ExpectedOutcome  string    `json:"expected_outcome"`
	Source           string    `json:"source"`
	PriorityTags     []string  `json:"priority_tags,omitempty"`
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil || req.RunID == uuid.Nil {
		http.Error(w, "user_id and run_id required", http.StatusBadRequest)
		return
	}

	settings := scheduler.Settings{
		Personality:    engine.Personality(req.Personality),
		Energy:         engine.Energy(req.Energy),
		Language:       req.Language,
		TargetPace:     req.TargetPace,
		TargetDistance: req.TargetDistance,
	}
	if _, err := s.Sessions.StartRun(r.Context(), req.UserID, req.RunID, settings); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("start run failed")
		http.Error(w, "could not start run", http.StatusConflict)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"status": "armed"})
}

func (s *Server) handleMilestone(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	out, err := sess.OnDistanceMilestone(r.Context(), scheduler.TriggerInput{Intervals: req.Intervals, Raw: req.Raw})
	if err != nil {
		s.writeTriggerError(w, r, err)
		return
	}
	writeJSON(w, toStrategyResponse(out))
}

func (s *Server) handleRunEnd(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	runID := sess.RunID
	out, err := sess.OnRunEnd(r.Context(), scheduler.TriggerInput{Intervals: req.Intervals, Raw: req.Raw})
	s.Sessions.EndRun(runID)
	if err != nil {
		s.writeTriggerError(w, r, err)
		return
	}
	writeJSON(w, toStrategyResponse(out))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Refresh(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("preference refresh failed")
		http.Error(w, "could not refresh preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "refreshed"})
}

type outcomeRequest struct {
	ExecutionID uuid.UUID         `json:"execution_id"`
	Before      evaluator.Metrics `json:"before"`
	After       evaluator.Metrics `json:"after"`
}

// handleReportOutcome accepts an explicit before/after measurement for an
// execution, for clients that track intervals themselves.
func (s *Server) handleReportOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ExecutionID == uuid.Nil {
		http.Error(w, "execution_id required", http.StatusBadRequest)
		return
	}
	if err := s.Outcomes.EnqueueEvaluation(r.Context(), req.ExecutionID, req.Before, req.After); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("outcome enqueue failed")
		http.Error(w, "could not queue outcome", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*scheduler.Session, bool) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		http.Error(w, "invalid run ID", http.StatusBadRequest)
		return nil, false
	}
	sess, ok := s.Sessions.Get(runID)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) writeTriggerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNotDue):
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "not_due"})
	case errors.Is(err, scheduler.ErrDelivering):
		writeJSONStatus(w, http.StatusTooManyRequests, map[string]string{"status": "delivering"})
	case errors.Is(err, scheduler.ErrSessionClosed):
		http.Error(w, "session closed", http.StatusGone)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("coaching trigger failed")
		http.Error(w, "coaching failed", http.StatusInternalServerError)
	}
}

func toStrategyResponse(out *engine.Output) strategyResponse {
	return strategyResponse{
		ExecutionID:      out.ExecutionID,
		StrategyName:     out.Selection.StrategyName,
		StrategyText:     out.Selection.StrategyText,
		SituationSummary: out.Selection.SituationSummary,
		SelectionReason:  out.Selection.SelectionReason,
		ConfidenceScore:  out.Selection.ConfidenceScore,
		ExpectedOutcome:  out.Selection.ExpectedOutcome,
		Source:           out.Selection.Source,
		PriorityTags:     out.PriorityTags,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
