package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"readingly/pkg/ai"
	"readingly/pkg/domain"
	"readingly/pkg/store"
)

const insightSystemPrompt = "당신은 독서 패턴 분석 전문가입니다. 사용자의 독서 데이터를 분석하여 의미 있는 인사이트를 제공해주세요."

const insightPromptTemplate = `## 독서 패턴 데이터
- 월별 독서량: %s
- 장르 분포: %s
- 독서 습관: %s
- 완독률: %s
- 하이라이트 통계: %s
- 전년 대비: %s

## 이전 인사이트 (참고용)
%s

## 분석 기준
1. **시간에 따른 변화**: 작년과 올해의 독서 패턴 변화 (장르, 독서량, 하이라이트 수)
2. **독서 습관**: 주로 읽는 시간대, 요일 패턴
3. **완독 패턴**: 완독률, 재시도 성공률, 포기율
4. **관심사 변화**: 하이라이트 키워드 기반 관심사 추이
5. **이전 인사이트 연결**: "지난번 분석에서 언급했던 X가 Y로 변화했습니다"

## 출력 형식 (JSON만)
[
  {
    "title": "인사이트 제목 (10자 이내)",
    "description": "상세 설명 (2-3문장, 구체적 수치 포함)",
    "category": "pattern" | "milestone" | "reflection",
    "relatedBooks": ["책 제목1", "책 제목2"]
  },
  ...
]

**중요**:
- 3-5개의 인사이트 생성
- 구체적 수치 포함 (예: "작년 대비 30%% 증가")
- 이전 인사이트와 연결 (있을 경우)
- JSON만 출력`

// insightItem is the shape the model is asked to emit per insight. The
// service adds identity and timestamps on top.
type insightItem struct {
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Category     domain.InsightCategory `json:"category"`
	RelatedBooks []string               `json:"relatedBooks"`
}

// InsightService turns collected reading patterns into model-generated
// insights, with a per-user cooldown and an append-only memory of prior
// runs.
type InsightService struct {
	store          store.Store
	generator      ai.TextGenerator
	collector      *PatternCollector
	logger         *slog.Logger
	rateLimitHours int
	memoryLimit    int
	now            func() time.Time
}

func NewInsightService(s store.Store, gen ai.TextGenerator, logger *slog.Logger, rateLimitHours, memoryLimit int) *InsightService {
	if rateLimitHours <= 0 {
		rateLimitHours = 24
	}
	if memoryLimit <= 0 {
		memoryLimit = 5
	}
	return &InsightService{
		store:          s,
		generator:      gen,
		collector:      NewPatternCollector(s),
		logger:         logger,
		rateLimitHours: rateLimitHours,
		memoryLimit:    memoryLimit,
		now:            time.Now,
	}
}

// Generate runs the full insight flow for one user: rate-limit check,
// pattern collection, memory load, model invocation, parse, persist.
func (s *InsightService) Generate(ctx context.Context, userID string) ([]domain.Insight, error) {
	allowed, err := s.checkRateLimit(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		hours, err := s.hoursUntilNextGeneration(ctx, userID)
		if err != nil {
			return nil, err
		}
		return nil, &RateLimitError{HoursRemaining: hours}
	}

	patterns, err := s.collector.Collect(ctx, userID)
	if err != nil {
		return nil, err
	}

	memory, err := s.loadMemory(ctx, userID)
	if err != nil {
		return nil, err
	}

	prompt := buildInsightPrompt(patterns, memory)
	raw, err := s.generator.GenerateText(ctx, insightSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var items []insightItem
	if err := ai.DecodeArray(raw, &items); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	insights := make([]domain.Insight, 0, len(items))
	for _, item := range items {
		related := item.RelatedBooks
		if related == nil {
			related = []string{}
		}
		insights = append(insights, domain.Insight{
			ID:           uuid.NewString(),
			Title:        item.Title,
			Description:  item.Description,
			Category:     item.Category,
			RelatedBooks: related,
			GeneratedAt:  now,
		})
	}

	if err := s.saveMemory(ctx, userID, insights, patterns); err != nil {
		return nil, err
	}
	if err := s.store.TouchRateLimit(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("rate limit update failed: %w", err)
	}
	return insights, nil
}

// checkRateLimit reports whether the user may generate. A missing
// record means allowed; a storage error fails the request rather than
// letting generation through.
func (s *InsightService) checkRateLimit(ctx context.Context, userID string) (bool, error) {
	last, found, err := s.store.LastGeneratedAt(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !found {
		return true, nil
	}
	return s.now().Sub(last).Hours() >= float64(s.rateLimitHours), nil
}

func (s *InsightService) hoursUntilNextGeneration(ctx context.Context, userID string) (int, error) {
	last, found, err := s.store.LastGeneratedAt(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !found {
		return 0, nil
	}
	remaining := float64(s.rateLimitHours) - s.now().Sub(last).Hours()
	if remaining <= 0 {
		return 0, nil
	}
	return int(math.Ceil(remaining)), nil
}

// loadMemory renders the newest prior runs as a numbered list, or the
// empty string when the user has no history.
func (s *InsightService) loadMemory(ctx context.Context, userID string) (string, error) {
	records, err := s.store.ListInsightMemory(ctx, userID, s.memoryLimit)
	if err != nil {
		return "", fmt.Errorf("memory load failed: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("이전 인사이트:")
	for i, record := range records {
		var items []insightItem
		if err := json.Unmarshal([]byte(record.Content), &items); err != nil {
			// skip rows written by an incompatible older format
			s.logger.Warn("skipping malformed memory row", "user_id", userID, "error", err)
			continue
		}
		titles := make([]string, 0, len(items))
		for _, item := range items {
			titles = append(titles, item.Title)
		}
		fmt.Fprintf(&b, "\n%d. [%s] %s", i+1, record.CreatedAt.Format("2006-01-02"), strings.Join(titles, ", "))
	}
	return b.String(), nil
}

func (s *InsightService) saveMemory(ctx context.Context, userID string, insights []domain.Insight, patterns domain.ReadingPatterns) error {
	items := make([]insightItem, 0, len(insights))
	for _, ins := range insights {
		items = append(items, insightItem{
			Title:        ins.Title,
			Description:  ins.Description,
			Category:     ins.Category,
			RelatedBooks: ins.RelatedBooks,
		})
	}
	content, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("memory save failed: %w", err)
	}
	metadata, err := json.Marshal(map[string]any{
		"patternsCollectedAt": patterns.CollectedAt,
		"totalBooks":          patterns.Completion.TotalStarted,
		"completedBooks":      patterns.Completion.Completed,
	})
	if err != nil {
		return fmt.Errorf("memory save failed: %w", err)
	}
	if err := s.store.AppendInsightMemory(ctx, userID, string(content), metadata); err != nil {
		return fmt.Errorf("memory save failed: %w", err)
	}
	return nil
}

func buildInsightPrompt(p domain.ReadingPatterns, memory string) string {
	if memory == "" {
		memory = "(이전 인사이트 없음)"
	}
	return fmt.Sprintf(insightPromptTemplate,
		formatMonthly(p.Monthly),
		formatGenres(p.Genres),
		formatHabits(p.Habits),
		formatCompletion(p.Completion),
		formatHighlights(p.Highlights),
		formatYearOverYear(p.YearOverYear),
		memory,
	)
}

func formatMonthly(monthly []domain.MonthlyCount) string {
	if len(monthly) == 0 {
		return "(데이터 없음)"
	}
	// only the most recent six months matter for the prompt
	if len(monthly) > 6 {
		monthly = monthly[len(monthly)-6:]
	}
	parts := make([]string, 0, len(monthly))
	for _, m := range monthly {
		parts = append(parts, fmt.Sprintf("%s: %d권", m.Month, m.Count))
	}
	return strings.Join(parts, ", ")
}

func formatGenres(genres []domain.GenreShare) string {
	if len(genres) == 0 {
		return "(데이터 없음)"
	}
	if len(genres) > 5 {
		genres = genres[:5]
	}
	parts := make([]string, 0, len(genres))
	for _, g := range genres {
		parts = append(parts, fmt.Sprintf("%s %s%%", g.Genre, formatNumber(g.Percentage)))
	}
	return strings.Join(parts, ", ")
}

var koreanDayNames = [7]string{"일", "월", "화", "수", "목", "금", "토"}

func formatHabits(h domain.ReadingHabits) string {
	peakHour := "데이터 없음"
	if h.PeakHour != nil {
		peakHour = fmt.Sprintf("%d시", *h.PeakHour)
	}
	peakDay := "데이터 없음"
	if h.PeakDay != nil {
		peakDay = koreanDayNames[*h.PeakDay] + "요일"
	}
	return fmt.Sprintf("주로 %s에 독서, %s에 가장 많이 읽음", peakHour, peakDay)
}

func formatCompletion(c domain.CompletionRates) string {
	return fmt.Sprintf("완독률 %s%%, 포기율 %s%%, 재시도 성공률 %s%%",
		formatNumber(c.CompletionRate), formatNumber(c.AbandonRate), formatNumber(c.RetrySuccessRate))
}

func formatHighlights(h domain.HighlightStats) string {
	keywordText := "없음"
	if len(h.TopKeywords) > 0 {
		kw := h.TopKeywords
		if len(kw) > 5 {
			kw = kw[:5]
		}
		keywordText = strings.Join(kw, ", ")
	}
	return fmt.Sprintf("총 %d개, 주요 키워드: %s", h.TotalCount, keywordText)
}

func formatYearOverYear(y domain.YearOverYear) string {
	direction := "증가"
	if y.ChangePercentage < 0 {
		direction = "감소"
	}
	return fmt.Sprintf("%d년 %d권 → %d년 %d권 (%s%% %s)",
		y.PreviousYear, y.PreviousYearCompleted,
		y.CurrentYear, y.CurrentYearCompleted,
		formatNumber(math.Abs(y.ChangePercentage)), direction)
}

// formatNumber prints a one-decimal value without a trailing ".0".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
