package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"readingly/pkg/ai"
	"readingly/pkg/domain"
	"readingly/pkg/store"
)

const recommendSystemPromptKO = "당신은 독서 추천 전문가입니다."
const recommendSystemPromptEN = "You are a book recommendation expert."

const promptKO = `사용자의 **책별 세부 독서 패턴**을 분석하여 다음 읽을 책 %d권을 추천해주세요.

## 📊 사용자 프로필
- 완독한 책: %d권
- 평균 별점: %s/5
- 선호 장르: %s
- 평균 완독 소요: %d일
- 높은 몰입도 책: %d권

## 📚 최근 완독한 책 상세 분석
%s

## 💡 사용자가 자주 하이라이트한 내용
%s

## 🎯 자주 등장하는 키워드
%s

## ✅ 추천 기준
1. 장르 선호도
2. 독서 속도
3. 참여도 패턴: 하이라이트/메모가 많았던 책 스타일
4. 일일 목표 달성률 기반 난이도 조절
5. 단번에 완독한 책의 특성 분석
6. 하이라이트 키워드 기반 주제 연관성

## 📤 출력 형식 (JSON만)
[
  {"title": "책 제목", "author": "저자명", "reason": "추천 이유 (2-3문장)", "keywords": ["키워드1", "키워드2", "키워드3"]},
  ...
]

**중요**:
- 실제 존재하는 한국 도서만 추천
- keywords는 이 책을 추천하는 핵심 이유를 2-3개 단어로 표현 (예: "자기계발", "리더십", "심리학")
- JSON만 출력`

const promptEN = `Analyze the user's **detailed reading patterns per book** and recommend %d books to read next.

## 📊 User Profile
- Books completed: %d
- Average rating: %s/5
- Favorite genres: %s
- Average completion time: %d days
- High engagement books: %d

## 📚 Recently Completed Books Analysis
%s

## 💡 Frequently Highlighted Content
%s

## 🎯 Frequent Keywords
%s

## ✅ Recommendation Criteria
1. Genre preference
2. Reading pace
3. Engagement pattern: similar to books with many highlights/notes
4. Difficulty based on daily goal achievement rate
5. Characteristics of books completed on first attempt
6. Topic relevance based on highlight keywords

## 📤 Output Format (JSON only)
[
  {"title": "Book Title", "author": "Author Name", "reason": "Recommendation reason (2-3 sentences)", "keywords": ["keyword1", "keyword2", "keyword3"]},
  ...
]

**Important**:
- Only recommend actual existing English books (internationally published)
- keywords should express the core reasons for recommending this book in 2-3 words (e.g., "self-improvement", "leadership", "psychology")
- Output JSON only`

const (
	defaultRecommendCount     = 5
	defaultMaxBooksInPrompt   = 10
	maxHighlightsInPrompt     = 5
	highlightSnippetMaxLength = 100
)

// ProfileSummary is the condensed profile echoed back to the client and
// persisted beside the recommendations.
type ProfileSummary struct {
	Stats         domain.ProfileStats `json:"stats"`
	BooksAnalyzed int                 `json:"booksAnalyzed"`
}

// Result is a full recommendation response for one user.
type Result struct {
	Recommendations []domain.Recommendation `json:"recommendations"`
	Profile         ProfileSummary          `json:"profile"`
}

// RecommendationService generates next-book recommendations from a
// collected reading profile.
type RecommendationService struct {
	store          store.Store
	generator      ai.TextGenerator
	collector      *ProfileCollector
	logger         *slog.Logger
	locale         string
	recommendCount int
}

func NewRecommendationService(s store.Store, gen ai.TextGenerator, collector *ProfileCollector, logger *slog.Logger, locale string) *RecommendationService {
	if locale != "en" {
		locale = "ko"
	}
	return &RecommendationService{
		store:          s,
		generator:      gen,
		collector:      collector,
		logger:         logger,
		locale:         locale,
		recommendCount: defaultRecommendCount,
	}
}

// ErrNoCompletedBooks signals a user without the history needed for
// recommendations. The handler turns it into a soft failure, not a 5xx.
var ErrNoCompletedBooks = fmt.Errorf("no completed books found")

// Generate collects the profile, prompts the model, and persists the
// result. locale "" falls back to the service default. Persistence is
// best-effort: a storage failure is logged and the recommendations
// still returned.
func (s *RecommendationService) Generate(ctx context.Context, userID, locale string) (Result, error) {
	if locale != "en" && locale != "ko" {
		locale = s.locale
	}

	profile, err := s.collector.Collect(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if len(profile.Books) == 0 {
		return Result{Recommendations: []domain.Recommendation{}, Profile: ProfileSummary{Stats: profile.Stats}}, ErrNoCompletedBooks
	}

	system := recommendSystemPromptKO
	if locale == "en" {
		system = recommendSystemPromptEN
	}
	raw, err := s.generator.GenerateText(ctx, system, s.buildPrompt(profile, locale))
	if err != nil {
		return Result{}, err
	}

	var recommendations []domain.Recommendation
	if err := ai.DecodeArray(raw, &recommendations); err != nil {
		return Result{}, err
	}

	result := Result{
		Recommendations: recommendations,
		Profile: ProfileSummary{
			Stats:         profile.Stats,
			BooksAnalyzed: len(profile.Books),
		},
	}
	s.persist(ctx, userID, result)
	return result, nil
}

func (s *RecommendationService) persist(ctx context.Context, userID string, result Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to encode recommendations", "user_id", userID, "err", err)
		return
	}
	if err := s.store.SaveRecommendations(ctx, userID, payload); err != nil {
		s.logger.Warn("failed to save recommendations", "user_id", userID, "err", err)
	}
}

func (s *RecommendationService) buildPrompt(profile domain.ReadingProfile, locale string) string {
	ko := locale == "ko"

	genres := make([]string, 0, len(profile.Stats.FavoriteGenres))
	for _, g := range profile.Stats.FavoriteGenres {
		genres = append(genres, g.Genre)
	}
	favoriteGenres := strings.Join(genres, ", ")
	if favoriteGenres == "" {
		favoriteGenres = pick(ko, "다양", "Various")
	}
	highlights := s.formatHighlights(profile.Interests.TopHighlights)
	if highlights == "" {
		highlights = pick(ko, "(없음)", "(none)")
	}
	keywordText := strings.Join(profile.Interests.Keywords, ", ")
	if keywordText == "" {
		keywordText = pick(ko, "(없음)", "(none)")
	}

	template := promptKO
	if !ko {
		template = promptEN
	}
	booksDetail := s.formatBooksDetail(profile.Books, ko)

	return fmt.Sprintf(template,
		s.recommendCount,
		profile.Stats.TotalBooksCompleted,
		strconv.FormatFloat(profile.Stats.AverageRating, 'f', -1, 64),
		favoriteGenres,
		profile.Stats.AverageCompletionDays,
		profile.Stats.HighEngagementBooks,
		booksDetail,
		highlights,
		keywordText,
	)
}

func (s *RecommendationService) formatBooksDetail(books []domain.BookAnalytics, ko bool) string {
	if len(books) > defaultMaxBooksInPrompt {
		books = books[:defaultMaxBooksInPrompt]
	}
	var b strings.Builder
	for i, book := range books {
		genre := book.Genre
		if genre == "" {
			genre = pick(ko, "미분류", "Uncategorized")
		}
		rating := pick(ko, "없음", "None")
		if book.Rating != nil {
			rating = fmt.Sprintf("%d/5", *book.Rating)
		}
		firstTry := ""
		if book.AttemptCount == 1 {
			firstTry = pick(ko, " (단번 완독)", " (completed first try)")
		}
		fmt.Fprintf(&b, "%d. %q (%s)\n", i+1, book.Title, book.Author)
		fmt.Fprintf(&b, "   - Genre: %s\n", genre)
		fmt.Fprintf(&b, "   - Completed in: %d days (avg %sp/day)\n",
			book.DaysToComplete, strconv.FormatFloat(book.AveragePagesPerDay, 'f', -1, 64))
		fmt.Fprintf(&b, "   - Engagement: %d highlights, %d notes\n", book.HighlightCount, book.NoteCount)
		fmt.Fprintf(&b, "   - Rating: %s\n", rating)
		fmt.Fprintf(&b, "   - Daily goal achievement: %d%%\n", book.DailyGoalAchievementRate)
		fmt.Fprintf(&b, "   - Attempts: %d%s\n", book.AttemptCount, firstTry)
	}
	return b.String()
}

func (s *RecommendationService) formatHighlights(highlights []domain.HighlightRef) string {
	if len(highlights) > maxHighlightsInPrompt {
		highlights = highlights[:maxHighlightsInPrompt]
	}
	parts := make([]string, 0, len(highlights))
	for i, h := range highlights {
		snippet := []rune(h.Content)
		if len(snippet) > highlightSnippetMaxLength {
			snippet = snippet[:highlightSnippetMaxLength]
		}
		parts = append(parts, fmt.Sprintf("%d. %q... (%s)", i+1, string(snippet), h.BookTitle))
	}
	return strings.Join(parts, "\n")
}

func pick(ko bool, koText, enText string) string {
	if ko {
		return koText
	}
	return enText
}
