package store

import (
	"context"
	"testing"
	"time"

	"readingly/pkg/domain"
)

func strPtr(v string) *string { return &v }

func TestUpsertContentReplacesOnSourceConflict(t *testing.T) {
	m := NewMemoryStore()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first := domain.ContentItem{
		ID:        "c1",
		UserID:    "u",
		BookID:    "b",
		Type:      domain.ContentHighlight,
		Text:      "원본",
		SourceID:  strPtr("src-1"),
		CreatedAt: created,
	}
	if err := m.UpsertContent(context.Background(), first, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}

	retry := domain.ContentItem{
		ID:       "c2",
		UserID:   "u",
		BookID:   "b",
		Type:     domain.ContentHighlight,
		Text:     "수정본",
		SourceID: strPtr("src-1"),
	}
	if err := m.UpsertContent(context.Background(), retry, []float32{0, 1}); err != nil {
		t.Fatal(err)
	}

	items, err := m.ListBookContent(context.Background(), "u", "b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("rows = %d, want 1", len(items))
	}
	if items[0].ID != "c1" {
		t.Errorf("id = %q, want the original row id", items[0].ID)
	}
	if items[0].Text != "수정본" {
		t.Errorf("text = %q, want replaced content", items[0].Text)
	}
	if !items[0].CreatedAt.Equal(created) {
		t.Errorf("createdAt = %v, want the original timestamp preserved", items[0].CreatedAt)
	}
}

func TestUpsertContentDifferentTypeSameSourceInserts(t *testing.T) {
	m := NewMemoryStore()

	highlight := domain.ContentItem{
		UserID:   "u",
		BookID:   "b",
		Type:     domain.ContentHighlight,
		Text:     "하이라이트",
		SourceID: strPtr("src-1"),
	}
	note := domain.ContentItem{
		UserID:   "u",
		BookID:   "b",
		Type:     domain.ContentNote,
		Text:     "메모",
		SourceID: strPtr("src-1"),
	}
	if err := m.UpsertContent(context.Background(), highlight, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertContent(context.Background(), note, nil); err != nil {
		t.Fatal(err)
	}

	items, err := m.ListBookContent(context.Background(), "u", "b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("rows = %d, want 2: the conflict key includes the type", len(items))
	}
}

func TestUpsertContentWithoutSourceAlwaysInserts(t *testing.T) {
	m := NewMemoryStore()

	item := domain.ContentItem{
		UserID: "u",
		BookID: "b",
		Type:   domain.ContentNote,
		Text:   "같은 내용",
	}
	if err := m.UpsertContent(context.Background(), item, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertContent(context.Background(), item, nil); err != nil {
		t.Fatal(err)
	}

	items, err := m.ListBookContent(context.Background(), "u", "b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("rows = %d, want 2 when no source id is set", len(items))
	}
}
