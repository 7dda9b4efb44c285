package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"readingly/internal/ratelimit"
	"readingly/internal/util"
	"readingly/pkg/queue"
	"readingly/services/nudge/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Nudges  *app.NudgeService
	Jobs    *queue.RedisJobQueue
	Limiter *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the nudge service.
type Server struct {
	nudges  *app.NudgeService
	jobs    *queue.RedisJobQueue
	limiter *ratelimit.FixedWindowLimiter
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		nudges:  cfg.Nudges,
		jobs:    cfg.Jobs,
		limiter: cfg.Limiter,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("nudge", util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/nudges/send", s.handleSend)
	s.mux.HandleFunc("/nudges/batch", s.handleBatch)
	s.mux.HandleFunc("/nudges/jobs", s.handleJobStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendRequest struct {
	UserID    string `json:"userId"`
	NudgeType string `json:"nudgeType"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	result, err := s.nudges.SendSmart(r.Context(), req.UserID, app.NudgeType(req.NudgeType))
	if err != nil {
		s.writeSendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}

func (s *Server) writeSendError(w http.ResponseWriter, r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, app.ErrNoDeviceTokens):
		writeError(w, http.StatusNotFound, "no device tokens registered")
	default:
		logger.Error("nudge send failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	queued, err := s.nudges.EnqueueBatch(r.Context())
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("batch enqueue failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"queued":  queued,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.jobs == nil {
		writeError(w, http.StatusNotFound, "job queue not configured")
		return
	}
	jobID := strings.TrimSpace(r.URL.Query().Get("id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	job, found, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("job lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}
