package app

import (
	"context"
	"encoding/json"
	"fmt"

	"readingly/pkg/domain"
	"readingly/pkg/store"
)

const (
	// MinContentCount is the smallest record set worth structuring.
	MinContentCount = 5
	// MaxContentCount caps the chain input at the newest records.
	MaxContentCount = 50
)

// NotEnoughContentError reports a book without enough captured records
// to build a structure from.
type NotEnoughContentError struct {
	CurrentCount  int
	RequiredCount int
}

func (e *NotEnoughContentError) Error() string {
	return fmt.Sprintf("at least %d reading records required, have %d", e.RequiredCount, e.CurrentCount)
}

// StructureService produces and persists the clustered note structure
// for one user's book.
type StructureService struct {
	store store.Store
	chain *Chain
}

func NewStructureService(s store.Store, chain *Chain) *StructureService {
	return &StructureService{store: s, chain: chain}
}

// Structure fetches the book's newest content items, runs the chain,
// and upserts the result keyed by user and book.
func (s *StructureService) Structure(ctx context.Context, userID, bookID string) (domain.NoteStructure, error) {
	items, err := s.store.ListBookContent(ctx, userID, bookID, MaxContentCount)
	if err != nil {
		return domain.NoteStructure{}, fmt.Errorf("fetch content: %w", err)
	}
	if len(items) < MinContentCount {
		return domain.NoteStructure{}, &NotEnoughContentError{
			CurrentCount:  len(items),
			RequiredCount: MinContentCount,
		}
	}

	structure, err := s.chain.Run(ctx, bookID, items)
	if err != nil {
		return domain.NoteStructure{}, err
	}

	payload, err := json.Marshal(structure)
	if err != nil {
		return domain.NoteStructure{}, fmt.Errorf("encode structure: %w", err)
	}
	if err := s.store.UpsertNoteStructure(ctx, userID, bookID, payload); err != nil {
		return domain.NoteStructure{}, fmt.Errorf("save structure: %w", err)
	}
	return structure, nil
}
