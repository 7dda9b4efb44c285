package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"readingly/internal/ratelimit"
	"readingly/internal/util"
	"readingly/pkg/ai"
	"readingly/pkg/domain"
	"readingly/services/recommend/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Recommender *app.RecommendationService
	Embeddings  *app.EmbeddingService
	Limiter     *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the recommendation service.
type Server struct {
	recommender *app.RecommendationService
	embeddings  *app.EmbeddingService
	limiter     *ratelimit.FixedWindowLimiter
	mux         *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		recommender: cfg.Recommender,
		embeddings:  cfg.Embeddings,
		limiter:     cfg.Limiter,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("recommend", util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/recommendations/generate", s.handleGenerate)
	s.mux.HandleFunc("/content/embed", s.handleEmbed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	UserID string `json:"userId"`
	Locale string `json:"locale"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
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

	result, err := s.recommender.Generate(r.Context(), req.UserID, req.Locale)
	if err != nil {
		s.writeGenerateError(w, r, result, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"recommendations": result.Recommendations,
		"profile":         result.Profile,
	})
}

func (s *Server) writeGenerateError(w http.ResponseWriter, r *http.Request, result app.Result, err error) {
	logger := util.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, app.ErrNoCompletedBooks):
		// a valid outcome for new users, not a failure
		writeJSON(w, http.StatusOK, map[string]any{
			"success":         false,
			"error":           "No completed books found",
			"recommendations": result.Recommendations,
			"profile":         result.Profile,
		})
	case errors.Is(err, ai.ErrTimeout):
		logger.Error("recommendation generation timed out", "err", err)
		writeError(w, http.StatusGatewayTimeout, "recommendation generation timed out")
	case errors.Is(err, ai.ErrNotJSON):
		logger.Error("model response unparseable", "err", err)
		writeError(w, http.StatusBadGateway, "failed to parse model response")
	default:
		logger.Error("recommendation generation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type embedRequest struct {
	UserID      string  `json:"userId"`
	BookID      string  `json:"bookId"`
	ContentType string  `json:"contentType"`
	ContentText string  `json:"contentText"`
	PageNumber  *int    `json:"pageNumber"`
	SourceID    *string `json:"sourceId"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.BookID) == "" ||
		req.ContentType == "" || strings.TrimSpace(req.ContentText) == "" {
		writeError(w, http.StatusBadRequest, "userId, bookId, contentType and contentText are required")
		return
	}

	item, err := s.embeddings.Capture(r.Context(), app.CaptureRequest{
		UserID:     req.UserID,
		BookID:     req.BookID,
		Type:       domain.ContentType(req.ContentType),
		Text:       req.ContentText,
		PageNumber: req.PageNumber,
		SourceID:   req.SourceID,
	})
	if err != nil {
		s.writeEmbedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"embeddingId": item.ID,
	})
}

func (s *Server) writeEmbedError(w http.ResponseWriter, r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, app.ErrInvalidContentType):
		writeError(w, http.StatusBadRequest, "invalid contentType")
	case errors.Is(err, ai.ErrTimeout):
		logger.Error("embedding timed out", "err", err)
		writeError(w, http.StatusGatewayTimeout, "embedding timed out")
	default:
		logger.Error("content capture failed", "err", err)
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
