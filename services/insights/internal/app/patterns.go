package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"readingly/internal/keywords"
	"readingly/pkg/domain"
	"readingly/pkg/store"
)

const topHighlightKeywords = 10

// PatternCollector aggregates a user's raw reading records into the six
// pattern categories. Fetches are unbounded: the whole history is read
// per request.
type PatternCollector struct {
	store store.Store
	now   func() time.Time
}

// NewPatternCollector builds a collector over the given store.
func NewPatternCollector(s store.Store) *PatternCollector {
	return &PatternCollector{store: s, now: time.Now}
}

// Collect fetches the user's books, progress history, and content items
// and derives all pattern aggregates. The three reads are independent
// and issued concurrently.
func (c *PatternCollector) Collect(ctx context.Context, userID string) (domain.ReadingPatterns, error) {
	var (
		books    []domain.Book
		progress []domain.ProgressEntry
		content  []domain.ContentItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = c.store.ListBooks(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		progress, err = c.store.ListProgress(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		content, err = c.store.ListContent(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ReadingPatterns{}, fmt.Errorf("collect patterns: %w", err)
	}

	return domain.ReadingPatterns{
		UserID:       userID,
		CollectedAt:  c.now().UTC(),
		Monthly:      monthlyReadingCounts(books),
		Genres:       genreDistribution(books),
		Habits:       readingHabits(progress),
		Completion:   completionRates(books),
		Highlights:   highlightStats(books, content),
		YearOverYear: yearOverYear(books, content, c.now()),
	}, nil
}

func monthlyReadingCounts(books []domain.Book) []domain.MonthlyCount {
	counts := make(map[string]int)
	for _, b := range books {
		if b.Status != domain.StatusCompleted {
			continue
		}
		counts[b.CompletionTime().Format("2006-01")]++
	}
	out := make([]domain.MonthlyCount, 0, len(counts))
	for month, count := range counts {
		out = append(out, domain.MonthlyCount{Month: month, Count: count})
	}
	// "YYYY-MM" sorts correctly as a plain string
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

func genreDistribution(books []domain.Book) []domain.GenreShare {
	counts := make(map[string]int)
	order := make([]string, 0)
	total := 0
	for _, b := range books {
		if b.Status != domain.StatusCompleted || b.Genre == "" {
			continue
		}
		if _, seen := counts[b.Genre]; !seen {
			order = append(order, b.Genre)
		}
		counts[b.Genre]++
		total++
	}
	if total == 0 {
		return []domain.GenreShare{}
	}
	out := make([]domain.GenreShare, 0, len(order))
	for _, genre := range order {
		out = append(out, domain.GenreShare{
			Genre:      genre,
			Count:      counts[genre],
			Percentage: round1(float64(counts[genre]) / float64(total) * 100),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func readingHabits(progress []domain.ProgressEntry) domain.ReadingHabits {
	var habits domain.ReadingHabits
	for _, entry := range progress {
		habits.HourDistribution[entry.CreatedAt.Hour()]++
		habits.DayDistribution[int(entry.CreatedAt.Weekday())]++
	}
	if hour, ok := argmax(habits.HourDistribution[:]); ok {
		habits.PeakHour = &hour
	}
	if day, ok := argmax(habits.DayDistribution[:]); ok {
		habits.PeakDay = &day
	}
	return habits
}

// argmax returns the index of the largest bucket, or false when every
// bucket is zero (no data).
func argmax(buckets []int) (int, bool) {
	best, bestCount := 0, 0
	for i, count := range buckets {
		if count > bestCount {
			best, bestCount = i, count
		}
	}
	if bestCount == 0 {
		return 0, false
	}
	return best, true
}

func completionRates(books []domain.Book) domain.CompletionRates {
	rates := domain.CompletionRates{TotalStarted: len(books)}
	retryBooks, retrySuccesses := 0, 0
	for _, b := range books {
		switch b.Status {
		case domain.StatusCompleted:
			rates.Completed++
		case domain.StatusAbandoned:
			rates.Abandoned++
		case domain.StatusReading:
			rates.InProgress++
		}
		if b.AttemptCount > 1 {
			retryBooks++
			if b.Status == domain.StatusCompleted {
				retrySuccesses++
			}
		}
	}
	if rates.TotalStarted > 0 {
		rates.CompletionRate = round1(float64(rates.Completed) / float64(rates.TotalStarted) * 100)
		rates.AbandonRate = round1(float64(rates.Abandoned) / float64(rates.TotalStarted) * 100)
	}
	if retryBooks > 0 {
		rates.RetrySuccessRate = round1(float64(retrySuccesses) / float64(retryBooks) * 100)
	}
	return rates
}

func highlightStats(books []domain.Book, content []domain.ContentItem) domain.HighlightStats {
	genreByBook := make(map[string]string, len(books))
	for _, b := range books {
		if b.Genre != "" {
			genreByBook[b.ID] = b.Genre
		}
	}

	stats := domain.HighlightStats{ByGenre: make(map[string]int)}
	highlightText := ""
	for _, item := range content {
		if item.Type != domain.ContentHighlight {
			continue
		}
		stats.TotalCount++
		// highlights on deleted or genre-less books still count toward
		// the total, just not per genre
		if genre, ok := genreByBook[item.BookID]; ok {
			stats.ByGenre[genre]++
		}
		if highlightText != "" {
			highlightText += " "
		}
		highlightText += item.Text
	}
	stats.TopKeywords = keywords.Extract(highlightText, topHighlightKeywords)
	if stats.TopKeywords == nil {
		stats.TopKeywords = []string{}
	}
	return stats
}

func yearOverYear(books []domain.Book, content []domain.ContentItem, now time.Time) domain.YearOverYear {
	yoy := domain.YearOverYear{
		CurrentYear:  now.Year(),
		PreviousYear: now.Year() - 1,
	}

	currentIDs := make(map[string]struct{})
	previousIDs := make(map[string]struct{})
	for _, b := range books {
		if b.Status != domain.StatusCompleted {
			continue
		}
		switch b.CompletionTime().Year() {
		case yoy.CurrentYear:
			yoy.CurrentYearCompleted++
			currentIDs[b.ID] = struct{}{}
		case yoy.PreviousYear:
			yoy.PreviousYearCompleted++
			previousIDs[b.ID] = struct{}{}
		}
	}

	switch {
	case yoy.PreviousYearCompleted > 0:
		delta := float64(yoy.CurrentYearCompleted-yoy.PreviousYearCompleted) / float64(yoy.PreviousYearCompleted) * 100
		yoy.ChangePercentage = round1(delta)
	case yoy.CurrentYearCompleted > 0:
		// no baseline: any current activity reads as growth, clamped to 100
		yoy.ChangePercentage = 100
	}

	for _, item := range content {
		if item.Type != domain.ContentHighlight {
			continue
		}
		if _, ok := currentIDs[item.BookID]; ok {
			yoy.CurrentYearHighlights++
		}
		if _, ok := previousIDs[item.BookID]; ok {
			yoy.PreviousYearHighlights++
		}
	}
	return yoy
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
