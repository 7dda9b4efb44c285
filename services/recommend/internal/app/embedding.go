package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"readingly/pkg/ai"
	"readingly/pkg/domain"
	"readingly/pkg/store"
)

// ErrInvalidContentType reports a capture with an unknown content type.
var ErrInvalidContentType = errors.New("invalid content type")

// CaptureRequest is one reading record to embed and store.
type CaptureRequest struct {
	UserID     string
	BookID     string
	Type       domain.ContentType
	Text       string
	PageNumber *int
	SourceID   *string
}

// EmbeddingService embeds captured reading records and persists them
// for later similarity search. Captures carrying a source id are
// idempotent: a retry replaces the earlier row instead of duplicating it.
type EmbeddingService struct {
	store    store.Store
	embedder ai.Embedder
}

func NewEmbeddingService(s store.Store, embedder ai.Embedder) *EmbeddingService {
	return &EmbeddingService{store: s, embedder: embedder}
}

// Capture embeds the record text and upserts the content row keyed by
// (content_type, source_id).
func (s *EmbeddingService) Capture(ctx context.Context, req CaptureRequest) (domain.ContentItem, error) {
	switch req.Type {
	case domain.ContentHighlight, domain.ContentNote, domain.ContentPhotoOCR:
	default:
		return domain.ContentItem{}, fmt.Errorf("%w: %q", ErrInvalidContentType, req.Type)
	}
	if strings.TrimSpace(req.Text) == "" {
		return domain.ContentItem{}, errors.New("content text required")
	}

	embedding, err := s.embedder.EmbedText(ctx, req.Text)
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("embed content: %w", err)
	}

	item := domain.ContentItem{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		BookID:     req.BookID,
		Type:       req.Type,
		Text:       req.Text,
		PageNumber: req.PageNumber,
		SourceID:   req.SourceID,
	}
	if err := s.store.UpsertContent(ctx, item, embedding); err != nil {
		return domain.ContentItem{}, fmt.Errorf("save content: %w", err)
	}
	return item, nil
}
