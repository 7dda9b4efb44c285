package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"readingly/internal/analytics"
	"readingly/pkg/domain"
	"readingly/pkg/store"
)

// ProfileCollector builds the per-book reading profile the
// recommendation prompt is grounded on. Only completed books count.
type ProfileCollector struct {
	store     store.Store
	interests *InterestExtractor
	now       func() time.Time
}

func NewProfileCollector(s store.Store, interests *InterestExtractor) *ProfileCollector {
	return &ProfileCollector{store: s, interests: interests, now: time.Now}
}

// Collect assembles analytics for every completed book plus aggregate
// stats and vector-search derived interests.
func (c *ProfileCollector) Collect(ctx context.Context, userID string) (domain.ReadingProfile, error) {
	books, err := c.store.ListCompletedBooks(ctx, userID)
	if err != nil {
		return domain.ReadingProfile{}, fmt.Errorf("collect profile: %w", err)
	}

	perBook := make([]domain.BookAnalytics, 0, len(books))
	for _, book := range books {
		ba, err := c.analyzeBook(ctx, book)
		if err != nil {
			return domain.ReadingProfile{}, err
		}
		perBook = append(perBook, ba)
	}

	interests, err := c.interests.Extract(ctx, userID)
	if err != nil {
		return domain.ReadingProfile{}, err
	}

	return domain.ReadingProfile{
		UserID:    userID,
		Books:     perBook,
		Stats:     analytics.AggregateStats(perBook),
		Interests: interests,
	}, nil
}

func (c *ProfileCollector) analyzeBook(ctx context.Context, book domain.Book) (domain.BookAnalytics, error) {
	progress, err := c.store.ListBookProgress(ctx, book.ID)
	if err != nil {
		return domain.BookAnalytics{}, fmt.Errorf("analyze book %s: %w", book.ID, err)
	}
	content, err := c.store.ListBookContent(ctx, book.UserID, book.ID, 0)
	if err != nil {
		return domain.BookAnalytics{}, fmt.Errorf("analyze book %s: %w", book.ID, err)
	}

	var highlights, notes, photoOCR int
	for _, item := range content {
		switch item.Type {
		case domain.ContentHighlight:
			highlights++
		case domain.ContentNote:
			notes++
		case domain.ContentPhotoOCR:
			photoOCR++
		}
	}

	completedAt := book.UpdatedAt
	if completedAt.IsZero() {
		completedAt = c.now()
	}
	// floor of one day keeps pages-per-day finite for same-day finishes
	days := int(math.Ceil(completedAt.Sub(book.StartDate).Hours() / 24))
	if days < 1 {
		days = 1
	}
	pagesPerDay := math.Round(float64(book.TotalPages)/float64(days)*10) / 10

	author := book.Author
	if author == "" {
		author = "Unknown"
	}
	attempts := book.AttemptCount
	if attempts < 1 {
		attempts = 1
	}

	return domain.BookAnalytics{
		BookID:                   book.ID,
		Title:                    book.Title,
		Author:                   author,
		Genre:                    book.Genre,
		DaysToComplete:           days,
		AveragePagesPerDay:       pagesPerDay,
		HighlightCount:           highlights,
		NoteCount:                notes,
		PhotoOCRCount:            photoOCR,
		TotalEngagement:          highlights + notes + photoOCR,
		Rating:                   book.Rating,
		HasReview:                book.Review != "",
		DailyGoalAchievementRate: analytics.DailyGoalAchievementRate(book.DailyTargetPages, progress),
		AttemptCount:             attempts,
	}, nil
}
