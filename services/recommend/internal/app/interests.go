package app

import (
	"context"
	"fmt"

	"readingly/internal/keywords"
	"readingly/pkg/ai"
	"readingly/pkg/domain"
	"readingly/pkg/store"
)

// interestProbe is the fixed query the user's embedded content is
// searched against to surface what they care about.
const interestProbe = "독서에서 중요하게 생각하는 주제와 개념"

const (
	defaultTopHighlights = 5
	defaultTopKeywords   = 10
)

// InterestExtractor finds the highlights most similar to the interest
// probe and distills keywords from them.
type InterestExtractor struct {
	store         store.Store
	embedder      ai.Embedder
	topHighlights int
	topKeywords   int
}

func NewInterestExtractor(s store.Store, embedder ai.Embedder) *InterestExtractor {
	return &InterestExtractor{
		store:         s,
		embedder:      embedder,
		topHighlights: defaultTopHighlights,
		topKeywords:   defaultTopKeywords,
	}
}

// Extract runs the vector search and resolves book titles for the top
// matches. An empty result is a normal outcome for new users.
func (e *InterestExtractor) Extract(ctx context.Context, userID string) (domain.Interests, error) {
	empty := domain.Interests{TopHighlights: []domain.HighlightRef{}, Keywords: []string{}}

	probe, err := e.embedder.EmbedText(ctx, interestProbe)
	if err != nil {
		return empty, fmt.Errorf("embed interest probe: %w", err)
	}
	matches, err := e.store.SearchContent(ctx, userID, probe, e.topHighlights)
	if err != nil {
		return empty, fmt.Errorf("interest search: %w", err)
	}
	if len(matches) == 0 {
		return empty, nil
	}

	bookIDs := make([]string, 0, len(matches))
	seen := make(map[string]struct{})
	for _, m := range matches {
		if _, ok := seen[m.BookID]; ok {
			continue
		}
		seen[m.BookID] = struct{}{}
		bookIDs = append(bookIDs, m.BookID)
	}
	titles, err := e.store.BookTitles(ctx, bookIDs)
	if err != nil {
		return empty, fmt.Errorf("resolve book titles: %w", err)
	}

	refs := make([]domain.HighlightRef, 0, len(matches))
	var combined string
	for _, m := range matches {
		title := titles[m.BookID]
		if title == "" {
			title = "Unknown"
		}
		refs = append(refs, domain.HighlightRef{Content: m.Text, BookTitle: title})
		if combined != "" {
			combined += " "
		}
		combined += m.Text
	}

	kw := keywords.Extract(combined, e.topKeywords)
	if kw == nil {
		kw = []string{}
	}
	return domain.Interests{TopHighlights: refs, Keywords: kw}, nil
}
