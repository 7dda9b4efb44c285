package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAICompatGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" hello "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL+"/v1", "key", "test-model", GeneratorOptions{Temperature: 0.7})
	got, err := gen.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestOpenAICompatTokenBudgetAlwaysBounded(t *testing.T) {
	var captured oaiChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL+"/v1", "", "test-model", GeneratorOptions{})
	if _, err := gen.GenerateText(context.Background(), "", "prompt"); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if captured.MaxTokens != defaultGenerateMaxTokens {
		t.Errorf("max_tokens = %d, want default budget %d", captured.MaxTokens, defaultGenerateMaxTokens)
	}

	gen = NewOpenAICompatGenerator(srv.URL+"/v1", "", "test-model", GeneratorOptions{MaxTokens: 512})
	if _, err := gen.GenerateText(context.Background(), "", "prompt"); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if captured.MaxTokens != 512 {
		t.Errorf("max_tokens = %d, want explicit budget 512", captured.MaxTokens)
	}
}

func TestOpenAICompatGenerateTextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL+"/v1", "", "test-model", GeneratorOptions{Timeout: 50 * time.Millisecond})
	_, err := gen.GenerateText(context.Background(), "", "prompt")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestOpenAICompatGenerateTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL+"/v1", "", "test-model", GeneratorOptions{})
	_, err := gen.GenerateText(context.Background(), "", "prompt")
	if err == nil || errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want plain api error", err)
	}
}
