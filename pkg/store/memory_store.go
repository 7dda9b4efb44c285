package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"readingly/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs service tests and
// local development.
type MemoryStore struct {
	mu       sync.RWMutex
	books    map[string]domain.Book
	progress []domain.ProgressEntry
	content  map[string]domain.ContentItem
	vectors  map[string][]float32 // content id -> embedding
	memory   map[string][]domain.InsightMemory
	limits   map[string]time.Time

	structures      map[string][]byte // userID+"/"+bookID
	recommendations map[string][][]byte
	tokens          map[string]domain.DeviceToken // token -> row
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:           make(map[string]domain.Book),
		content:         make(map[string]domain.ContentItem),
		vectors:         make(map[string][]float32),
		memory:          make(map[string][]domain.InsightMemory),
		limits:          make(map[string]time.Time),
		structures:      make(map[string][]byte),
		recommendations: make(map[string][][]byte),
		tokens:          make(map[string]domain.DeviceToken),
	}
}

// Seed helpers used by tests.

func (m *MemoryStore) AddBook(b domain.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.books[b.ID] = b
}

func (m *MemoryStore) AddProgress(entries ...domain.ProgressEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, entries...)
}

func (m *MemoryStore) AddContent(item domain.ContentItem, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	m.content[item.ID] = item
	if len(embedding) > 0 {
		m.vectors[item.ID] = embedding
	}
}

func (m *MemoryStore) AddDeviceToken(t domain.DeviceToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.tokens[t.Token] = t
}

// books

func (m *MemoryStore) ListBooks(_ context.Context, userID string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Book, 0)
	for _, b := range m.books {
		if b.UserID == userID && b.DeletedAt == nil {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListCompletedBooks(_ context.Context, userID string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Book, 0)
	for _, b := range m.books {
		if b.UserID == userID && b.DeletedAt == nil && b.Status == domain.StatusCompleted {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) BookTitles(_ context.Context, bookIDs []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	titles := make(map[string]string, len(bookIDs))
	for _, id := range bookIDs {
		if b, ok := m.books[id]; ok {
			titles[id] = b.Title
		}
	}
	return titles, nil
}

// progress

func (m *MemoryStore) ListProgress(_ context.Context, userID string) ([]domain.ProgressEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ProgressEntry, 0)
	for _, p := range m.progress {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListBookProgress(_ context.Context, bookID string) ([]domain.ProgressEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ProgressEntry, 0)
	for _, p := range m.progress {
		if p.BookID == bookID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// content

func (m *MemoryStore) ListContent(_ context.Context, userID string) ([]domain.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ContentItem, 0)
	for _, c := range m.content {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListBookContent(_ context.Context, userID, bookID string, limit int) ([]domain.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ContentItem, 0)
	for _, c := range m.content {
		if c.UserID == userID && c.BookID == bookID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpsertContent(_ context.Context, item domain.ContentItem, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.SourceID != nil {
		for id, existing := range m.content {
			if existing.Type == item.Type && existing.SourceID != nil && *existing.SourceID == *item.SourceID {
				item.ID = id
				item.CreatedAt = existing.CreatedAt
				break
			}
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	m.content[item.ID] = item
	if len(embedding) > 0 {
		m.vectors[item.ID] = embedding
	}
	return nil
}

func (m *MemoryStore) SearchContent(_ context.Context, userID string, embedding []float32, limit int) ([]domain.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	type scored struct {
		item domain.ContentItem
		sim  float64
	}
	candidates := make([]scored, 0)
	for id, c := range m.content {
		if c.UserID != userID {
			continue
		}
		vec, ok := m.vectors[id]
		if !ok {
			continue
		}
		candidates = append(candidates, scored{item: c, sim: cosineSimilarity(embedding, vec)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]domain.ContentItem, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.item)
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rate limit

func (m *MemoryStore) LastGeneratedAt(_ context.Context, userID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.limits[userID]
	return at, ok, nil
}

func (m *MemoryStore) TouchRateLimit(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[userID] = at
	return nil
}

// insight memory

func (m *MemoryStore) AppendInsightMemory(_ context.Context, userID, content string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory[userID] = append(m.memory[userID], domain.InsightMemory{
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) ListInsightMemory(_ context.Context, userID string, limit int) ([]domain.InsightMemory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.memory[userID]
	out := make([]domain.InsightMemory, len(rows))
	copy(out, rows)
	// newest first, matching the DB ordering
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// generated artifacts

func (m *MemoryStore) UpsertNoteStructure(_ context.Context, userID, bookID string, structure []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structures[userID+"/"+bookID] = structure
	return nil
}

// NoteStructure returns the stored structure payload for tests.
func (m *MemoryStore) NoteStructure(userID, bookID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.structures[userID+"/"+bookID]
	return payload, ok
}

func (m *MemoryStore) SaveRecommendations(_ context.Context, userID string, recs []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recommendations[userID] = append(m.recommendations[userID], recs)
	return nil
}

// Recommendations returns saved recommendation payloads for tests.
func (m *MemoryStore) Recommendations(userID string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recommendations[userID]
}

// push targets

func (m *MemoryStore) ListDeviceTokens(_ context.Context, userID string) ([]domain.DeviceToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DeviceToken, 0)
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *MemoryStore) ListNudgeUserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, t := range m.tokens {
		if _, ok := seen[t.UserID]; ok {
			continue
		}
		seen[t.UserID] = struct{}{}
		out = append(out, t.UserID)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) DeleteDeviceToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}
