package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"readingly/pkg/domain"
)

const migrateLockID int64 = 84218421

const defaultEmbeddingDim = 1536

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres with pgvector.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim := opts.EmbeddingDim
	if embeddingDim <= 0 {
		embeddingDim = defaultEmbeddingDim
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(
			&BookModel{},
			&ProgressModel{},
			&ContentModel{},
			&InsightMemoryModel{},
			&RateLimitModel{},
			&NoteStructureModel{},
			&RecommendationModel{},
			&DeviceTokenModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'reading_content_embeddings' AND column_name = 'embedding'
			) THEN
				ALTER TABLE reading_content_embeddings ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter content embedding type: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

// withMigrationLock serializes schema migration across replicas using a
// Postgres advisory lock.
func withMigrationLock(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrateLockID).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		return fn(tx)
	})
}

// books

func (s *GormStore) ListBooks(ctx context.Context, userID string) ([]domain.Book, error) {
	var models []BookModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("books query failed: %w", err)
	}
	return toBooks(models), nil
}

func (s *GormStore) ListCompletedBooks(ctx context.Context, userID string) ([]domain.Book, error) {
	var models []BookModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND deleted_at IS NULL", userID, string(domain.StatusCompleted)).
		Order("updated_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("books query failed: %w", err)
	}
	return toBooks(models), nil
}

func (s *GormStore) BookTitles(ctx context.Context, bookIDs []string) (map[string]string, error) {
	titles := make(map[string]string, len(bookIDs))
	if len(bookIDs) == 0 {
		return titles, nil
	}
	var rows []struct {
		ID    string
		Title string
	}
	err := s.db.WithContext(ctx).
		Model(&BookModel{}).
		Select("id", "title").
		Where("id IN ?", bookIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("book titles query failed: %w", err)
	}
	for _, row := range rows {
		titles[row.ID] = row.Title
	}
	return titles, nil
}

// progress

func (s *GormStore) ListProgress(ctx context.Context, userID string) ([]domain.ProgressEntry, error) {
	var models []ProgressModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("progress query failed: %w", err)
	}
	return toProgress(models), nil
}

func (s *GormStore) ListBookProgress(ctx context.Context, bookID string) ([]domain.ProgressEntry, error) {
	var models []ProgressModel
	err := s.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("progress query failed: %w", err)
	}
	return toProgress(models), nil
}

// content items

func (s *GormStore) ListContent(ctx context.Context, userID string) ([]domain.ContentItem, error) {
	var models []ContentModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("content query failed: %w", err)
	}
	return toContent(models), nil
}

func (s *GormStore) ListBookContent(ctx context.Context, userID, bookID string, limit int) ([]domain.ContentItem, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []ContentModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("content query failed: %w", err)
	}
	return toContent(models), nil
}

// UpsertContent inserts a content item, replacing an existing row with
// the same (content_type, source_id) so capture retries stay idempotent.
func (s *GormStore) UpsertContent(ctx context.Context, item domain.ContentItem, embedding []float32) error {
	model := ContentModel{
		ID:          item.ID,
		UserID:      item.UserID,
		BookID:      item.BookID,
		ContentType: string(item.Type),
		ContentText: item.Text,
		PageNumber:  item.PageNumber,
		SourceID:    item.SourceID,
		CreatedAt:   item.CreatedAt,
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if len(embedding) > 0 {
		vec := pgvector.NewVector(embedding)
		model.Embedding = &vec
	}
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_type"}, {Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_text", "page_number", "embedding"}),
	}
	if item.SourceID == nil {
		conflict = clause.OnConflict{DoNothing: true}
	}
	if err := s.db.WithContext(ctx).Clauses(conflict).Create(&model).Error; err != nil {
		return fmt.Errorf("content upsert failed: %w", err)
	}
	return nil
}

// SearchContent returns the user's content items ranked by cosine
// distance to the query embedding.
func (s *GormStore) SearchContent(ctx context.Context, userID string, embedding []float32, limit int) ([]domain.ContentItem, error) {
	if limit <= 0 {
		limit = 5
	}
	var models []ContentModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND embedding IS NOT NULL", userID).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{pgvector.NewVector(embedding)}}).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("content search failed: %w", err)
	}
	return toContent(models), nil
}

// rate limit

// LastGeneratedAt reports the user's last successful generation time.
// A missing row is not an error: it means the user has never generated.
func (s *GormStore) LastGeneratedAt(ctx context.Context, userID string) (time.Time, bool, error) {
	var model RateLimitModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return model.LastGeneratedAt, true, nil
}

func (s *GormStore) TouchRateLimit(ctx context.Context, userID string, at time.Time) error {
	model := RateLimitModel{
		ID:              uuid.NewString(),
		UserID:          userID,
		LastGeneratedAt: at,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_generated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("rate limit update failed: %w", err)
	}
	return nil
}

// insight memory

func (s *GormStore) AppendInsightMemory(ctx context.Context, userID, content string, metadata []byte) error {
	model := InsightMemoryModel{
		ID:              uuid.NewString(),
		UserID:          userID,
		InsightContent:  content,
		InsightMetadata: metadata,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("memory save failed: %w", err)
	}
	return nil
}

func (s *GormStore) ListInsightMemory(ctx context.Context, userID string, limit int) ([]domain.InsightMemory, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []InsightMemoryModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("memory load failed: %w", err)
	}
	out := make([]domain.InsightMemory, 0, len(models))
	for _, m := range models {
		out = append(out, domain.InsightMemory{
			Content:   m.InsightContent,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

// generated artifacts

// UpsertNoteStructure fully replaces the prior structure for
// (user, book); re-running the chain is not an incremental merge.
func (s *GormStore) UpsertNoteStructure(ctx context.Context, userID, bookID string, structure []byte) error {
	model := NoteStructureModel{
		ID:            uuid.NewString(),
		UserID:        userID,
		BookID:        bookID,
		StructureJSON: structure,
		UpdatedAt:     time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"structure_json", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("structure upsert failed: %w", err)
	}
	return nil
}

func (s *GormStore) SaveRecommendations(ctx context.Context, userID string, recs []byte) error {
	model := RecommendationModel{
		ID:        uuid.NewString(),
		UserID:    userID,
		Payload:   recs,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("recommendation save failed: %w", err)
	}
	return nil
}

// push targets

func (s *GormStore) ListDeviceTokens(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	var models []DeviceTokenModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("device tokens query failed: %w", err)
	}
	out := make([]domain.DeviceToken, 0, len(models))
	for _, m := range models {
		out = append(out, domain.DeviceToken{
			ID:        m.ID,
			UserID:    m.UserID,
			Token:     m.Token,
			Platform:  m.Platform,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func (s *GormStore) ListNudgeUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	err := s.db.WithContext(ctx).
		Model(&DeviceTokenModel{}).
		Distinct("user_id").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("nudge users query failed: %w", err)
	}
	return userIDs, nil
}

func (s *GormStore) DeleteDeviceToken(ctx context.Context, token string) error {
	err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&DeviceTokenModel{}).Error
	if err != nil {
		return fmt.Errorf("device token delete failed: %w", err)
	}
	return nil
}

// model conversions

func toBooks(models []BookModel) []domain.Book {
	out := make([]domain.Book, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Book{
			ID:               m.ID,
			UserID:           m.UserID,
			Title:            m.Title,
			Author:           m.Author,
			Genre:            m.Genre,
			Publisher:        m.Publisher,
			ISBN:             m.ISBN,
			Status:           domain.BookStatus(m.Status),
			Rating:           m.Rating,
			Review:           m.Review,
			StartDate:        m.StartDate,
			TargetDate:       m.TargetDate,
			CurrentPage:      m.CurrentPage,
			TotalPages:       m.TotalPages,
			DailyTargetPages: m.DailyTargetPages,
			AttemptCount:     m.AttemptCount,
			CreatedAt:        m.CreatedAt,
			UpdatedAt:        m.UpdatedAt,
			DeletedAt:        m.DeletedAt,
		})
	}
	return out
}

func toProgress(models []ProgressModel) []domain.ProgressEntry {
	out := make([]domain.ProgressEntry, 0, len(models))
	for _, m := range models {
		out = append(out, domain.ProgressEntry{
			ID:           m.ID,
			UserID:       m.UserID,
			BookID:       m.BookID,
			Page:         m.Page,
			PreviousPage: m.PreviousPage,
			CreatedAt:    m.CreatedAt,
		})
	}
	return out
}

func toContent(models []ContentModel) []domain.ContentItem {
	out := make([]domain.ContentItem, 0, len(models))
	for _, m := range models {
		out = append(out, domain.ContentItem{
			ID:         m.ID,
			UserID:     m.UserID,
			BookID:     m.BookID,
			Type:       domain.ContentType(m.ContentType),
			Text:       m.ContentText,
			PageNumber: m.PageNumber,
			SourceID:   m.SourceID,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out
}
