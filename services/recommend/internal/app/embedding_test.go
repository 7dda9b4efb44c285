package app

import (
	"context"
	"errors"
	"testing"

	"readingly/pkg/domain"
	"readingly/pkg/store"
)

func strPtr(v string) *string { return &v }

func TestCaptureStoresEmbeddedContent(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewEmbeddingService(s, fixedEmbedder{vectors: map[string][]float32{
		"습관에 대한 하이라이트": {1, 0, 0},
	}})

	item, err := svc.Capture(context.Background(), CaptureRequest{
		UserID:     "u",
		BookID:     "b1",
		Type:       domain.ContentHighlight,
		Text:       "습관에 대한 하이라이트",
		PageNumber: intPtr(42),
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if item.ID == "" {
		t.Fatal("capture returned no id")
	}

	stored, err := s.ListBookContent(context.Background(), "u", "b1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].Text != "습관에 대한 하이라이트" {
		t.Fatalf("stored content = %+v", stored)
	}

	// the embedding must be searchable immediately
	found, err := s.SearchContent(context.Background(), "u", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != item.ID {
		t.Fatalf("search results = %+v", found)
	}
}

func TestCaptureRetryWithSourceIDDoesNotDuplicate(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewEmbeddingService(s, fixedEmbedder{})

	req := CaptureRequest{
		UserID:   "u",
		BookID:   "b1",
		Type:     domain.ContentHighlight,
		Text:     "첫 번째 내용",
		SourceID: strPtr("src-1"),
	}
	if _, err := svc.Capture(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	req.Text = "수정된 내용"
	if _, err := svc.Capture(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	stored, err := s.ListBookContent(context.Background(), "u", "b1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("rows = %d, want 1 after retry", len(stored))
	}
	if stored[0].Text != "수정된 내용" {
		t.Errorf("text = %q, want the retried content", stored[0].Text)
	}
}

func TestCaptureRejectsUnknownType(t *testing.T) {
	svc := NewEmbeddingService(store.NewMemoryStore(), fixedEmbedder{})

	_, err := svc.Capture(context.Background(), CaptureRequest{
		UserID: "u",
		BookID: "b1",
		Type:   domain.ContentType("bookmark"),
		Text:   "내용",
	})
	if !errors.Is(err, ErrInvalidContentType) {
		t.Fatalf("err = %v, want ErrInvalidContentType", err)
	}
}

func TestCaptureRejectsEmptyText(t *testing.T) {
	svc := NewEmbeddingService(store.NewMemoryStore(), fixedEmbedder{})

	_, err := svc.Capture(context.Background(), CaptureRequest{
		UserID: "u",
		BookID: "b1",
		Type:   domain.ContentNote,
		Text:   "   ",
	})
	if err == nil {
		t.Fatal("expected error for blank text")
	}
}
