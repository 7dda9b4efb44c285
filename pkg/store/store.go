package store

import (
	"context"
	"time"

	"readingly/pkg/domain"
)

// Store defines the persistence contracts the analytics and generation
// pipelines need. All book reads exclude soft-deleted rows.
type Store interface {
	// books
	ListBooks(ctx context.Context, userID string) ([]domain.Book, error)
	ListCompletedBooks(ctx context.Context, userID string) ([]domain.Book, error)
	BookTitles(ctx context.Context, bookIDs []string) (map[string]string, error)

	// progress history (append-only)
	ListProgress(ctx context.Context, userID string) ([]domain.ProgressEntry, error)
	ListBookProgress(ctx context.Context, bookID string) ([]domain.ProgressEntry, error)

	// content items (highlights, notes, photo OCR)
	ListContent(ctx context.Context, userID string) ([]domain.ContentItem, error)
	ListBookContent(ctx context.Context, userID, bookID string, limit int) ([]domain.ContentItem, error)
	UpsertContent(ctx context.Context, item domain.ContentItem, embedding []float32) error
	SearchContent(ctx context.Context, userID string, embedding []float32, limit int) ([]domain.ContentItem, error)

	// insight generation cooldown
	LastGeneratedAt(ctx context.Context, userID string) (time.Time, bool, error)
	TouchRateLimit(ctx context.Context, userID string, at time.Time) error

	// insight memory (append-only)
	AppendInsightMemory(ctx context.Context, userID, content string, metadata []byte) error
	ListInsightMemory(ctx context.Context, userID string, limit int) ([]domain.InsightMemory, error)

	// generated artifacts
	UpsertNoteStructure(ctx context.Context, userID, bookID string, structure []byte) error
	SaveRecommendations(ctx context.Context, userID string, recs []byte) error

	// push targets
	ListDeviceTokens(ctx context.Context, userID string) ([]domain.DeviceToken, error)
	ListNudgeUserIDs(ctx context.Context) ([]string, error)
	DeleteDeviceToken(ctx context.Context, token string) error
}
