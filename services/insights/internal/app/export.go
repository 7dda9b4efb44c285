package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"readingly/pkg/domain"
	"readingly/pkg/storage"
	"readingly/pkg/store"
)

const exportURLExpiry = 24 * time.Hour

var statusLabels = map[domain.BookStatus]string{
	domain.StatusReading:   "읽는 중",
	domain.StatusCompleted: "완독",
	domain.StatusWillRead:  "읽을 예정",
	domain.StatusWillRetry: "다시 도전",
	domain.StatusPaused:    "잠시 중단",
}

var exportHeader = []string{
	"제목", "저자", "장르", "출판사", "ISBN",
	"독서상태", "별점", "한줄평", "시작일", "완독일", "페이지", "메모개수",
}

// ExportResult describes a finished export: where to download it from
// and how much it covers.
type ExportResult struct {
	URL       string `json:"url"`
	Year      int    `json:"year"`
	BookCount int    `json:"bookCount"`
}

// Exporter renders a user's yearly reading log as a CSV file and
// uploads it to object storage, returning a time-limited download URL.
type Exporter struct {
	store   store.Store
	objects storage.ObjectStore
	now     func() time.Time
}

func NewExporter(s store.Store, objects storage.ObjectStore) *Exporter {
	return &Exporter{store: s, objects: objects, now: time.Now}
}

// Export builds the CSV for one user and year. A zero year means the
// current year.
func (e *Exporter) Export(ctx context.Context, userID string, year int) (ExportResult, error) {
	if year == 0 {
		year = e.now().Year()
	}

	books, err := e.store.ListBooks(ctx, userID)
	if err != nil {
		return ExportResult{}, fmt.Errorf("export: %w", err)
	}
	content, err := e.store.ListContent(ctx, userID)
	if err != nil {
		return ExportResult{}, fmt.Errorf("export: %w", err)
	}

	selected := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if b.CreatedAt.Year() == year {
			selected = append(selected, b)
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].CreatedAt.After(selected[j].CreatedAt)
	})

	memoCounts := make(map[string]int)
	for _, item := range content {
		memoCounts[item.BookID]++
	}

	data, err := renderCSV(selected, memoCounts)
	if err != nil {
		return ExportResult{}, fmt.Errorf("export: %w", err)
	}

	key := fmt.Sprintf("exports/%s/reading_%d_%d.csv", userID, year, e.now().Unix())
	if err := e.objects.Put(ctx, key, data, "text/csv; charset=utf-8"); err != nil {
		return ExportResult{}, fmt.Errorf("export upload: %w", err)
	}
	url, err := e.objects.PresignGet(ctx, key, exportURLExpiry)
	if err != nil {
		return ExportResult{}, fmt.Errorf("export presign: %w", err)
	}
	return ExportResult{URL: url, Year: year, BookCount: len(selected)}, nil
}

func renderCSV(books []domain.Book, memoCounts map[string]int) ([]byte, error) {
	var buf bytes.Buffer
	// UTF-8 BOM so spreadsheet apps detect the encoding
	buf.WriteString("\uFEFF")

	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, b := range books {
		rating := ""
		if b.Rating != nil {
			rating = strconv.Itoa(*b.Rating)
		}
		completedDate := ""
		if b.Status == domain.StatusCompleted {
			completedDate = b.CompletionTime().Format("2006-01-02")
		}
		startDate := ""
		if !b.StartDate.IsZero() {
			startDate = b.StartDate.Format("2006-01-02")
		}
		status := statusLabels[b.Status]
		if status == "" {
			status = string(b.Status)
		}
		row := []string{
			b.Title, b.Author, b.Genre, b.Publisher, b.ISBN,
			status, rating, b.Review, startDate, completedDate,
			strconv.Itoa(b.TotalPages), strconv.Itoa(memoCounts[b.ID]),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
