package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Embedder provides embeddings for text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// OpenAICompatEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAICompatEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatEmbedder builds an embeddings client. baseURL should
// include the /v1 prefix.
func NewOpenAICompatEmbedder(baseURL, apiKey, model string) *OpenAICompatEmbedder {
	return &OpenAICompatEmbedder{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// EmbedText returns the embedding vector for text.
func (e *OpenAICompatEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if e.model == "" {
		return nil, fmt.Errorf("embedding model required")
	}
	body, err := json.Marshal(oaiEmbeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("embedding api error: %s", errResp.Error.Message)
		}
		return nil, fmt.Errorf("embedding api error: %s", resp.Status)
	}

	var embResp oaiEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("embedding decode: %w", err)
	}
	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from api")
	}
	return embResp.Data[0].Embedding, nil
}

type oaiEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type oaiEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
