package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"readingly/pkg/ai"
	"readingly/pkg/store"
	"readingly/services/insights/internal/app"
)

type stubGenerator struct {
	response string
	err      error
}

func (s stubGenerator) GenerateText(context.Context, string, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newServer(s store.Store, gen ai.TextGenerator) *Server {
	return New(Config{
		Insights: app.NewInsightService(s, gen, discardLogger(), 24, 5),
	})
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGenerateSuccess(t *testing.T) {
	gen := stubGenerator{response: `[{"title":"t","description":"d","category":"pattern","relatedBooks":[]}]`}
	srv := newServer(store.NewMemoryStore(), gen)

	rec := postJSON(t, srv.Router(), "/insights/generate", `{"userId":"u"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Success  bool              `json:"success"`
		Insights []json.RawMessage `json:"insights"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || len(resp.Insights) != 1 {
		t.Errorf("resp = %+v, want success with 1 insight", resp)
	}
}

func TestGenerateMissingUserID(t *testing.T) {
	srv := newServer(store.NewMemoryStore(), stubGenerator{response: "[]"})

	rec := postJSON(t, srv.Router(), "/insights/generate", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	s := store.NewMemoryStore()
	if err := s.TouchRateLimit(context.Background(), "u", time.Now().Add(-1*time.Hour)); err != nil {
		t.Fatal(err)
	}
	srv := newServer(s, stubGenerator{response: "[]"})

	rec := postJSON(t, srv.Router(), "/insights/generate", `{"userId":"u"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "hours") {
		t.Errorf("body missing hours-remaining message: %s", rec.Body)
	}
}

func TestGenerateTimeoutMapsTo504(t *testing.T) {
	srv := newServer(store.NewMemoryStore(), stubGenerator{err: ai.ErrTimeout})

	rec := postJSON(t, srv.Router(), "/insights/generate", `{"userId":"u"}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestGenerateBadModelOutputMapsTo502(t *testing.T) {
	srv := newServer(store.NewMemoryStore(), stubGenerator{response: "no json here"})

	rec := postJSON(t, srv.Router(), "/insights/generate", `{"userId":"u"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newServer(store.NewMemoryStore(), stubGenerator{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestPreflightCORS(t *testing.T) {
	srv := newServer(store.NewMemoryStore(), stubGenerator{})

	req := httptest.NewRequest(http.MethodOptions, "/insights/generate", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS allow-origin header")
	}
}
