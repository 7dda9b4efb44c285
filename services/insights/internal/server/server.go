package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"readingly/internal/ratelimit"
	"readingly/internal/util"
	"readingly/pkg/ai"
	"readingly/services/insights/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Insights *app.InsightService
	Exporter *app.Exporter
	Limiter  *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the insights service.
type Server struct {
	insights *app.InsightService
	exporter *app.Exporter
	limiter  *ratelimit.FixedWindowLimiter
	mux      *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		insights: cfg.Insights,
		exporter: cfg.Exporter,
		limiter:  cfg.Limiter,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("insights", util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/insights/generate", s.withIPLimit(s.handleGenerate))
	s.mux.Handle("/insights/export", s.withIPLimit(s.handleExport))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withIPLimit applies the transport-level per-IP window on top of the
// per-user generation cooldown enforced by the service.
func (s *Server) withIPLimit(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	})
}

type generateRequest struct {
	UserID string `json:"userId"`
}

type exportRequest struct {
	UserID string `json:"userId"`
	Year   int    `json:"year"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	insights, err := s.insights.Generate(r.Context(), req.UserID)
	if err != nil {
		s.writeGenerateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"insights": insights,
	})
}

func (s *Server) writeGenerateError(w http.ResponseWriter, r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	var rateLimited *app.RateLimitError
	switch {
	case errors.As(err, &rateLimited):
		writeError(w, http.StatusTooManyRequests, rateLimited.Error())
	case errors.Is(err, ai.ErrTimeout):
		logger.Error("generation timed out", "err", err)
		writeError(w, http.StatusGatewayTimeout, "insight generation timed out")
	case errors.Is(err, ai.ErrNotJSON):
		logger.Error("model response unparseable", "err", err)
		writeError(w, http.StatusBadGateway, "failed to parse model response")
	default:
		logger.Error("insight generation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	result, err := s.exporter.Export(r.Context(), req.UserID, req.Year)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("export failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"export":  result,
	})
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
