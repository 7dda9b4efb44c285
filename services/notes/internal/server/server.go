package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"readingly/internal/ratelimit"
	"readingly/internal/util"
	"readingly/pkg/ai"
	"readingly/services/notes/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Structures *app.StructureService
	Limiter    *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the note structuring service.
type Server struct {
	structures *app.StructureService
	limiter    *ratelimit.FixedWindowLimiter
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		structures: cfg.Structures,
		limiter:    cfg.Limiter,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("notes", util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/notes/structure", s.handleStructure)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type structureRequest struct {
	UserID string `json:"userId"`
	BookID string `json:"bookId"`
}

func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req structureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.BookID) == "" {
		writeError(w, http.StatusBadRequest, "userId and bookId are required")
		return
	}

	structure, err := s.structures.Structure(r.Context(), req.UserID, req.BookID)
	if err != nil {
		s.writeStructureError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"structure": structure,
	})
}

func (s *Server) writeStructureError(w http.ResponseWriter, r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	var notEnough *app.NotEnoughContentError
	switch {
	case errors.As(err, &notEnough):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":         "최소 5개 이상의 독서 기록이 필요합니다",
			"currentCount":  notEnough.CurrentCount,
			"requiredCount": notEnough.RequiredCount,
		})
	case errors.Is(err, ai.ErrTimeout):
		logger.Error("structuring timed out", "err", err)
		writeError(w, http.StatusGatewayTimeout, "note structuring timed out")
	case errors.Is(err, ai.ErrNotJSON):
		logger.Error("model response unparseable", "err", err)
		writeError(w, http.StatusBadGateway, "failed to parse model response")
	default:
		logger.Error("note structuring failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
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
