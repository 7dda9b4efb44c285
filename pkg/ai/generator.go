package ai

import (
	"context"
	"errors"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrTimeout reports that a generation call exceeded its time budget.
// Callers may retry later; the service never retries internally.
var ErrTimeout = errors.New("generation timed out")
