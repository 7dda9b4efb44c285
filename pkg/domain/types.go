package domain

import "time"

type BookStatus string

const (
	StatusReading   BookStatus = "reading"
	StatusCompleted BookStatus = "completed"
	StatusWillRead  BookStatus = "will_read"
	StatusWillRetry BookStatus = "will_retry"
	StatusPaused    BookStatus = "paused"
	StatusAbandoned BookStatus = "abandoned"
)

type ContentType string

const (
	ContentHighlight ContentType = "highlight"
	ContentNote      ContentType = "note"
	ContentPhotoOCR  ContentType = "photo_ocr"
)

// Book is a user's tracked book. A book with DeletedAt set is excluded
// from all analytics.
type Book struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	Title            string     `json:"title"`
	Author           string     `json:"author,omitempty"`
	Genre            string     `json:"genre,omitempty"`
	Publisher        string     `json:"publisher,omitempty"`
	ISBN             string     `json:"isbn,omitempty"`
	Status           BookStatus `json:"status"`
	Rating           *int       `json:"rating,omitempty"`
	Review           string     `json:"review,omitempty"`
	StartDate        time.Time  `json:"startDate"`
	TargetDate       *time.Time `json:"targetDate,omitempty"`
	CurrentPage      int        `json:"currentPage"`
	TotalPages       int        `json:"totalPages"`
	DailyTargetPages *int       `json:"dailyTargetPages,omitempty"`
	AttemptCount     int        `json:"attemptCount"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	DeletedAt        *time.Time `json:"-"`
}

// CompletionTime returns the best available completion timestamp:
// updated_at when set, created_at otherwise.
func (b Book) CompletionTime() time.Time {
	if !b.UpdatedAt.IsZero() {
		return b.UpdatedAt
	}
	return b.CreatedAt
}

// ProgressEntry is an append-only page-progress log record. Entries are
// never mutated or deleted.
type ProgressEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	BookID       string    `json:"bookId"`
	Page         int       `json:"page"`
	PreviousPage int       `json:"previousPage"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ContentItem is a captured highlight, note, or photo-OCR text tied to a
// book. Immutable once created except through upsert by source id.
type ContentItem struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	BookID     string      `json:"bookId"`
	Type       ContentType `json:"contentType"`
	Text       string      `json:"contentText"`
	PageNumber *int        `json:"pageNumber,omitempty"`
	SourceID   *string     `json:"sourceId,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Derived pattern aggregates. ReadingPatterns is computed fresh per
// request and never persisted itself.

type MonthlyCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

type GenreShare struct {
	Genre      string  `json:"genre"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type ReadingHabits struct {
	HourDistribution [24]int `json:"hourDistribution"`
	DayDistribution  [7]int  `json:"dayOfWeekDistribution"`
	PeakHour         *int    `json:"peakReadingHour"`
	PeakDay          *int    `json:"peakReadingDay"`
}

type CompletionRates struct {
	TotalStarted     int     `json:"totalStarted"`
	Completed        int     `json:"completed"`
	Abandoned        int     `json:"abandoned"`
	InProgress       int     `json:"inProgress"`
	CompletionRate   float64 `json:"completionRate"`
	AbandonRate      float64 `json:"abandonRate"`
	RetrySuccessRate float64 `json:"retrySuccessRate"`
}

type HighlightStats struct {
	TotalCount  int            `json:"totalCount"`
	ByGenre     map[string]int `json:"byGenre"`
	TopKeywords []string       `json:"topKeywords"`
}

type YearOverYear struct {
	CurrentYear            int     `json:"currentYear"`
	PreviousYear           int     `json:"previousYear"`
	CurrentYearCompleted   int     `json:"currentYearCompleted"`
	PreviousYearCompleted  int     `json:"previousYearCompleted"`
	ChangePercentage       float64 `json:"changePercentage"`
	CurrentYearHighlights  int     `json:"currentYearHighlights"`
	PreviousYearHighlights int     `json:"previousYearHighlights"`
}

type ReadingPatterns struct {
	UserID       string          `json:"userId"`
	CollectedAt  time.Time       `json:"collectedAt"`
	Monthly      []MonthlyCount  `json:"monthlyReadingCounts"`
	Genres       []GenreShare    `json:"genreDistribution"`
	Habits       ReadingHabits   `json:"readingHabits"`
	Completion   CompletionRates `json:"completionRates"`
	Highlights   HighlightStats  `json:"highlightStats"`
	YearOverYear YearOverYear    `json:"yearOverYear"`
}

type InsightCategory string

const (
	CategoryPattern        InsightCategory = "pattern"
	CategoryMilestone      InsightCategory = "milestone"
	CategoryRecommendation InsightCategory = "recommendation"
	CategoryReflection     InsightCategory = "reflection"
)

// Insight is a generated reading insight. Identity and provenance come
// from the service, content from the model.
type Insight struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     InsightCategory `json:"category"`
	RelatedBooks []string        `json:"relatedBooks"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

// InsightMemory is one appended row of a prior generation, used to give
// the model continuity across runs.
type InsightMemory struct {
	Content   string    `json:"content"` // JSON-encoded insight list
	CreatedAt time.Time `json:"createdAt"`
}

type Recommendation struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Reason   string   `json:"reason"`
	Keywords []string `json:"keywords"`
}

// Recommendation-flow profile types.

type BookAnalytics struct {
	BookID                   string  `json:"bookId"`
	Title                    string  `json:"title"`
	Author                   string  `json:"author"`
	Genre                    string  `json:"genre,omitempty"`
	DaysToComplete           int     `json:"daysToComplete"`
	AveragePagesPerDay       float64 `json:"averagePagesPerDay"`
	HighlightCount           int     `json:"highlightCount"`
	NoteCount                int     `json:"noteCount"`
	PhotoOCRCount            int     `json:"photoOcrCount"`
	TotalEngagement          int     `json:"totalEngagement"`
	Rating                   *int    `json:"rating,omitempty"`
	HasReview                bool    `json:"hasReview"`
	DailyGoalAchievementRate int     `json:"dailyGoalAchievementRate"`
	AttemptCount             int     `json:"attemptCount"`
}

type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

type ProfileStats struct {
	TotalBooksCompleted   int          `json:"totalBooksCompleted"`
	AverageRating         float64      `json:"averageRating"`
	FavoriteGenres        []GenreCount `json:"favoriteGenres"`
	AverageCompletionDays int          `json:"averageCompletionDays"`
	HighEngagementBooks   int          `json:"highEngagementBookCount"`
}

type HighlightRef struct {
	Content   string `json:"content"`
	BookTitle string `json:"bookTitle"`
}

type Interests struct {
	TopHighlights []HighlightRef `json:"topHighlights"`
	Keywords      []string       `json:"keywords"`
}

type ReadingProfile struct {
	UserID    string          `json:"userId"`
	Books     []BookAnalytics `json:"books"`
	Stats     ProfileStats    `json:"stats"`
	Interests Interests       `json:"interests"`
}

// Note structure types (clustering chain output).

type NoteNode struct {
	ID         string      `json:"id"`
	Type       ContentType `json:"type"`
	Content    string      `json:"content"`
	PageNumber *int        `json:"pageNumber,omitempty"`
	SourceID   *string     `json:"sourceId,omitempty"`
}

type NoteCluster struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Summary  string     `json:"summary"`
	Keywords []string   `json:"keywords,omitempty"`
	Nodes    []NoteNode `json:"nodes"`
}

type NoteConnection struct {
	FromNodeID string `json:"fromNodeId"`
	ToNodeID   string `json:"toNodeId"`
	Reason     string `json:"reason"`
}

type NoteStructure struct {
	BookID      string           `json:"bookId"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Clusters    []NoteCluster    `json:"clusters"`
	Connections []NoteConnection `json:"connections"`
}

// DeviceToken is a registered push target for a user.
type DeviceToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
