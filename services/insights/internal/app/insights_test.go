package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"readingly/pkg/ai"
	"readingly/pkg/domain"
	"readingly/pkg/store"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

const modelResponse = `다음은 분석 결과입니다:
[
  {"title": "밤의 독서가", "description": "주로 22시에 읽습니다.", "category": "pattern", "relatedBooks": ["책 하나"]},
  {"title": "완독률 상승", "description": "완독률이 올랐습니다.", "category": "milestone", "relatedBooks": []}
]`

func newTestService(s store.Store, gen ai.TextGenerator) *InsightService {
	svc := NewInsightService(s, gen, slog.New(slog.NewTextHandler(testWriter{}, nil)), 24, 5)
	svc.now = fixedNow
	svc.collector.now = fixedNow
	return svc
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestGenerateMapsItemsWithIdentity(t *testing.T) {
	s := store.NewMemoryStore()
	gen := &fakeGenerator{response: modelResponse}
	svc := newTestService(s, gen)

	insights, err := svc.Generate(context.Background(), "u")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("got %d insights, want 2", len(insights))
	}
	if insights[0].ID == "" || insights[0].ID == insights[1].ID {
		t.Errorf("ids not unique: %q vs %q", insights[0].ID, insights[1].ID)
	}
	if insights[0].GeneratedAt.IsZero() {
		t.Error("generatedAt not set")
	}
	if insights[0].Category != domain.CategoryPattern {
		t.Errorf("category = %q, want pattern", insights[0].Category)
	}
	if insights[1].RelatedBooks == nil {
		t.Error("relatedBooks should be an empty slice, not nil")
	}
}

func TestGenerateUpdatesRateLimitAndMemory(t *testing.T) {
	s := store.NewMemoryStore()
	svc := newTestService(s, &fakeGenerator{response: modelResponse})

	if _, err := svc.Generate(context.Background(), "u"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	last, found, err := s.LastGeneratedAt(context.Background(), "u")
	if err != nil || !found {
		t.Fatalf("rate limit row missing after generation: found=%v err=%v", found, err)
	}
	if !last.Equal(fixedNow()) {
		t.Errorf("last generated = %v, want %v", last, fixedNow())
	}

	records, err := s.ListInsightMemory(context.Background(), "u", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("memory rows = %d, want 1", len(records))
	}
	if !strings.Contains(records[0].Content, "밤의 독서가") {
		t.Errorf("memory content missing title: %s", records[0].Content)
	}
}

func TestGenerateBlockedWithinWindow(t *testing.T) {
	s := store.NewMemoryStore()
	if err := s.TouchRateLimit(context.Background(), "u", fixedNow().Add(-12*time.Hour)); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(s, &fakeGenerator{response: modelResponse})

	_, err := svc.Generate(context.Background(), "u")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rle.HoursRemaining != 12 {
		t.Errorf("hours remaining = %d, want 12", rle.HoursRemaining)
	}
}

func TestGenerateAllowedAfterWindow(t *testing.T) {
	s := store.NewMemoryStore()
	if err := s.TouchRateLimit(context.Background(), "u", fixedNow().Add(-25*time.Hour)); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(s, &fakeGenerator{response: modelResponse})

	if _, err := svc.Generate(context.Background(), "u"); err != nil {
		t.Fatalf("Generate after window: %v", err)
	}
}

func TestGenerateNonJSONResponse(t *testing.T) {
	svc := newTestService(store.NewMemoryStore(), &fakeGenerator{response: "죄송합니다, 분석할 수 없습니다."})

	_, err := svc.Generate(context.Background(), "u")
	if !errors.Is(err, ai.ErrNotJSON) {
		t.Fatalf("err = %v, want ErrNotJSON", err)
	}
}

func TestGeneratePropagatesTimeout(t *testing.T) {
	svc := newTestService(store.NewMemoryStore(), &fakeGenerator{err: ai.ErrTimeout})

	_, err := svc.Generate(context.Background(), "u")
	if !errors.Is(err, ai.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	svc := newTestService(s, &fakeGenerator{response: modelResponse})

	if _, err := svc.Generate(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}

	memory, err := svc.loadMemory(context.Background(), "u")
	if err != nil {
		t.Fatalf("loadMemory: %v", err)
	}
	if !strings.HasPrefix(memory, "이전 인사이트:") {
		t.Errorf("memory = %q, want 이전 인사이트 header", memory)
	}
	if !strings.Contains(memory, "밤의 독서가") || !strings.Contains(memory, "완독률 상승") {
		t.Errorf("memory missing titles: %q", memory)
	}
}

func TestLoadMemoryEmpty(t *testing.T) {
	svc := newTestService(store.NewMemoryStore(), &fakeGenerator{})

	memory, err := svc.loadMemory(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if memory != "" {
		t.Errorf("memory = %q, want empty string", memory)
	}
}

func TestPromptEmbedsMemoryAndPatterns(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("b1", "u", "novel", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	gen := &fakeGenerator{response: modelResponse}
	svc := newTestService(s, gen)

	if _, err := svc.Generate(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("prompts captured = %d, want 1", len(gen.prompts))
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "2025-03: 1권") {
		t.Errorf("prompt missing monthly summary:\n%s", prompt)
	}
	if !strings.Contains(prompt, "novel 100%") {
		t.Errorf("prompt missing genre summary:\n%s", prompt)
	}
	if !strings.Contains(prompt, "(이전 인사이트 없음)") {
		t.Errorf("prompt missing empty-memory placeholder:\n%s", prompt)
	}
}

func TestPromptRendersTemplateCleanly(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddBook(completedBook("b1", "u", "novel", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	gen := &fakeGenerator{response: modelResponse}
	svc := newTestService(s, gen)

	if _, err := svc.Generate(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	prompt := gen.prompts[0]
	// the instruction example must survive formatting intact
	if !strings.Contains(prompt, "작년 대비 30% 증가") {
		t.Errorf("prompt missing example instruction:\n%s", prompt)
	}
	if strings.Contains(prompt, "%!") {
		t.Errorf("prompt contains formatting artifact:\n%s", prompt)
	}
}
