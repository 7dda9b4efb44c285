package app

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"readingly/pkg/domain"
	"readingly/pkg/store"
)

func fixedNow() time.Time {
	return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
}

func newTestCollector(s store.Store) *PatternCollector {
	c := NewPatternCollector(s)
	c.now = fixedNow
	return c
}

func completedBook(id, userID, genre string, completedAt time.Time) domain.Book {
	return domain.Book{
		ID:        id,
		UserID:    userID,
		Title:     "book " + id,
		Genre:     genre,
		Status:    domain.StatusCompleted,
		CreatedAt: completedAt.Add(-10 * 24 * time.Hour),
		UpdatedAt: completedAt,
	}
}

func TestCollectEmptyUser(t *testing.T) {
	c := newTestCollector(store.NewMemoryStore())

	p, err := c.Collect(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(p.Monthly) != 0 {
		t.Errorf("monthly counts = %v, want empty", p.Monthly)
	}
	if len(p.Genres) != 0 {
		t.Errorf("genre distribution = %v, want empty", p.Genres)
	}
	if p.Habits.PeakHour != nil || p.Habits.PeakDay != nil {
		t.Errorf("peaks = %v/%v, want nil", p.Habits.PeakHour, p.Habits.PeakDay)
	}
	if p.Completion.TotalStarted != 0 || p.Completion.CompletionRate != 0 {
		t.Errorf("completion rates = %+v, want zero", p.Completion)
	}
	if p.Highlights.TotalCount != 0 || len(p.Highlights.TopKeywords) != 0 {
		t.Errorf("highlight stats = %+v, want zero", p.Highlights)
	}
	if p.YearOverYear.ChangePercentage != 0 {
		t.Errorf("yoy change = %v, want 0", p.YearOverYear.ChangePercentage)
	}
}

func TestMonthlyCountsSortedAscending(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("b1", "u", "novel", time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)))
	s.AddBook(completedBook("b2", "u", "novel", time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)))
	s.AddBook(completedBook("b3", "u", "novel", time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)))
	s.AddBook(domain.Book{ID: "b4", UserID: "u", Status: domain.StatusReading, CreatedAt: fixedNow()})

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.MonthlyCount{{Month: "2025-01", Count: 1}, {Month: "2025-03", Count: 2}}
	if len(p.Monthly) != len(want) {
		t.Fatalf("monthly = %v, want %v", p.Monthly, want)
	}
	for i := range want {
		if p.Monthly[i] != want[i] {
			t.Errorf("monthly[%d] = %v, want %v", i, p.Monthly[i], want[i])
		}
	}
}

func TestGenrePercentagesSumTo100(t *testing.T) {
	s := store.NewMemoryStore()
	genres := []string{"novel", "novel", "novel", "science", "science", "essay", "history"}
	for i, g := range genres {
		s.AddBook(completedBook(fmt.Sprintf("b%d", i), "u", g, time.Date(2025, 2, 1+i, 0, 0, 0, 0, time.UTC)))
	}

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, g := range p.Genres {
		sum += g.Percentage
	}
	if math.Abs(sum-100) > 0.5 {
		t.Errorf("percentage sum = %v, want ~100", sum)
	}
	if p.Genres[0].Genre != "novel" || p.Genres[0].Count != 3 {
		t.Errorf("top genre = %+v, want novel/3", p.Genres[0])
	}
}

func TestGenreEvenSplit(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("b1", "u", "novel", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	s.AddBook(completedBook("b2", "u", "essay", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Genres) != 2 {
		t.Fatalf("genres = %v, want 2 entries", p.Genres)
	}
	for _, g := range p.Genres {
		if g.Percentage != 50 {
			t.Errorf("genre %s percentage = %v, want 50", g.Genre, g.Percentage)
		}
	}
}

func TestReadingHabitsPeaks(t *testing.T) {
	s := store.NewMemoryStore()
	// three entries at 22:00, one at 09:00; two on Monday
	monday := time.Date(2025, 6, 9, 22, 0, 0, 0, time.UTC)
	s.AddProgress(
		domain.ProgressEntry{ID: "p1", UserID: "u", BookID: "b", Page: 10, CreatedAt: monday},
		domain.ProgressEntry{ID: "p2", UserID: "u", BookID: "b", Page: 20, CreatedAt: monday.Add(24 * time.Hour)},
		domain.ProgressEntry{ID: "p3", UserID: "u", BookID: "b", Page: 30, CreatedAt: monday.Add(48 * time.Hour)},
		domain.ProgressEntry{ID: "p4", UserID: "u", BookID: "b", Page: 40, CreatedAt: time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)},
	)

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if p.Habits.PeakHour == nil || *p.Habits.PeakHour != 22 {
		t.Errorf("peak hour = %v, want 22", p.Habits.PeakHour)
	}
	if p.Habits.PeakDay == nil || *p.Habits.PeakDay != 1 {
		t.Errorf("peak day = %v, want 1 (Monday)", p.Habits.PeakDay)
	}
	if p.Habits.HourDistribution[22] != 3 {
		t.Errorf("hour[22] = %d, want 3", p.Habits.HourDistribution[22])
	}
}

func TestCompletionRatesFiftyFifty(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("b1", "u", "", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	s.AddBook(domain.Book{ID: "b2", UserID: "u", Status: domain.StatusAbandoned, CreatedAt: fixedNow()})

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if p.Completion.CompletionRate != 50 || p.Completion.AbandonRate != 50 {
		t.Errorf("rates = %v/%v, want 50/50", p.Completion.CompletionRate, p.Completion.AbandonRate)
	}
}

func TestRetrySuccessRate(t *testing.T) {
	s := store.NewMemoryStore()
	b1 := completedBook("b1", "u", "", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b1.AttemptCount = 2
	s.AddBook(b1)
	s.AddBook(domain.Book{ID: "b2", UserID: "u", Status: domain.StatusAbandoned, AttemptCount: 3, CreatedAt: fixedNow()})
	s.AddBook(domain.Book{ID: "b3", UserID: "u", Status: domain.StatusReading, AttemptCount: 1, CreatedAt: fixedNow()})

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if p.Completion.RetrySuccessRate != 50 {
		t.Errorf("retry success rate = %v, want 50", p.Completion.RetrySuccessRate)
	}
}

func TestHighlightStatsKeywordsAndGenres(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("b1", "u", "science", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	s.AddContent(domain.ContentItem{ID: "c1", UserID: "u", BookID: "b1", Type: domain.ContentHighlight,
		Text: "evolution shapes evolution and biology", CreatedAt: fixedNow()}, nil)
	s.AddContent(domain.ContentItem{ID: "c2", UserID: "u", BookID: "b1", Type: domain.ContentNote,
		Text: "a note, not a highlight", CreatedAt: fixedNow()}, nil)

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if p.Highlights.TotalCount != 1 {
		t.Errorf("total highlights = %d, want 1", p.Highlights.TotalCount)
	}
	if p.Highlights.ByGenre["science"] != 1 {
		t.Errorf("byGenre = %v, want science:1", p.Highlights.ByGenre)
	}
	if len(p.Highlights.TopKeywords) == 0 || p.Highlights.TopKeywords[0] != "evolution" {
		t.Errorf("top keywords = %v, want evolution first", p.Highlights.TopKeywords)
	}
}

func TestYearOverYearBaseline(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("b1", "u", "", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
	s.AddBook(completedBook("b2", "u", "", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
	s.AddBook(completedBook("b3", "u", "", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	yoy := p.YearOverYear
	if yoy.CurrentYear != 2025 || yoy.PreviousYear != 2024 {
		t.Fatalf("years = %d/%d, want 2025/2024", yoy.CurrentYear, yoy.PreviousYear)
	}
	if yoy.CurrentYearCompleted != 2 || yoy.PreviousYearCompleted != 1 {
		t.Errorf("completed = %d/%d, want 2/1", yoy.CurrentYearCompleted, yoy.PreviousYearCompleted)
	}
	if yoy.ChangePercentage != 100 {
		t.Errorf("change = %v, want 100", yoy.ChangePercentage)
	}
}

func TestYearOverYearNoBaseline(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("b1", "u", "", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if p.YearOverYear.ChangePercentage != 100 {
		t.Errorf("change = %v, want 100 when previous year is empty", p.YearOverYear.ChangePercentage)
	}
}

func TestYearOverYearHighlightCounts(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("cur", "u", "", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
	s.AddBook(completedBook("prev", "u", "", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	s.AddContent(domain.ContentItem{ID: "h1", UserID: "u", BookID: "cur", Type: domain.ContentHighlight, Text: "x", CreatedAt: fixedNow()}, nil)
	s.AddContent(domain.ContentItem{ID: "h2", UserID: "u", BookID: "cur", Type: domain.ContentHighlight, Text: "y", CreatedAt: fixedNow()}, nil)
	s.AddContent(domain.ContentItem{ID: "h3", UserID: "u", BookID: "prev", Type: domain.ContentHighlight, Text: "z", CreatedAt: fixedNow()}, nil)

	p, err := newTestCollector(s).Collect(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if p.YearOverYear.CurrentYearHighlights != 2 || p.YearOverYear.PreviousYearHighlights != 1 {
		t.Errorf("highlights = %d/%d, want 2/1",
			p.YearOverYear.CurrentYearHighlights, p.YearOverYear.PreviousYearHighlights)
	}
}
