package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"readingly/pkg/domain"
	"readingly/pkg/store"
	"readingly/services/notes/internal/app"
)

// orderedGenerator hands out one canned response per call.
type orderedGenerator struct {
	responses []string
	calls     int
}

func (g *orderedGenerator) GenerateText(context.Context, string, string) (string, error) {
	if g.calls >= len(g.responses) {
		return "", errors.New("no response left")
	}
	resp := g.responses[g.calls]
	g.calls++
	return resp, nil
}

const (
	classificationResp = `{"clusters": [
  {"clusterId": "cluster_1", "name": "주제 하나", "nodeIds": ["n1", "n2", "n3"], "confidence": 0.9},
  {"clusterId": "cluster_2", "name": "주제 둘", "nodeIds": ["n4", "n5"], "confidence": 0.8}
]}`
	summaryResp = `{"summaries": [
  {"clusterId": "cluster_1", "summary": "요약 하나", "keywords": ["키워드"]},
  {"clusterId": "cluster_2", "summary": "요약 둘", "keywords": ["키워드"]}
]}`
	connectionResp = `{"connections": [{"fromNodeId": "n1", "toNodeId": "n4", "reason": "같은 맥락"}]}`
)

func seedContent(s *store.MemoryStore, n int) {
	for i := 0; i < n; i++ {
		s.AddContent(domain.ContentItem{
			ID:        fmt.Sprintf("n%d", i+1),
			UserID:    "u",
			BookID:    "b",
			Type:      domain.ContentHighlight,
			Text:      "기록",
			CreatedAt: time.Now().Add(-time.Duration(i) * time.Minute),
		}, nil)
	}
}

func newServer(s *store.MemoryStore, gen *orderedGenerator) *Server {
	return New(Config{
		Structures: app.NewStructureService(s, app.NewChain(gen)),
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

func TestStructureSuccess(t *testing.T) {
	s := store.NewMemoryStore()
	seedContent(s, 5)
	srv := newServer(s, &orderedGenerator{responses: []string{classificationResp, summaryResp, connectionResp}})

	rec := postJSON(t, srv.Router(), "/notes/structure", `{"userId":"u","bookId":"b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "주제 하나") {
		t.Errorf("body missing cluster name: %s", rec.Body)
	}
}

func TestStructureMissingFields(t *testing.T) {
	srv := newServer(store.NewMemoryStore(), &orderedGenerator{})

	rec := postJSON(t, srv.Router(), "/notes/structure", `{"userId":"u"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStructureNotEnoughContent(t *testing.T) {
	s := store.NewMemoryStore()
	seedContent(s, 3)
	srv := newServer(s, &orderedGenerator{})

	rec := postJSON(t, srv.Router(), "/notes/structure", `{"userId":"u","bookId":"b"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"currentCount":3`) {
		t.Errorf("body missing current count: %s", rec.Body)
	}
}

func TestStructureBadModelOutputMapsTo502(t *testing.T) {
	s := store.NewMemoryStore()
	seedContent(s, 5)
	srv := newServer(s, &orderedGenerator{responses: []string{"not json at all"}})

	rec := postJSON(t, srv.Router(), "/notes/structure", `{"userId":"u","bookId":"b"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502: %s", rec.Code, rec.Body)
	}
}
