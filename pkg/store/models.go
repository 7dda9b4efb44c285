package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models mapped onto the logical tables.

type BookModel struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	Author           string
	Genre            string
	Publisher        string
	ISBN             string
	Status           string `gorm:"not null;index"`
	Rating           *int
	Review           string `gorm:"type:text"`
	StartDate        time.Time
	TargetDate       *time.Time
	CurrentPage      int
	TotalPages       int
	DailyTargetPages *int
	AttemptCount     int        `gorm:"not null;default:1"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
	DeletedAt        *time.Time `gorm:"index"`
}

func (BookModel) TableName() string { return "books" }

type ProgressModel struct {
	ID           string    `gorm:"primaryKey"`
	UserID       string    `gorm:"not null;index"`
	BookID       string    `gorm:"not null;index"`
	Page         int       `gorm:"not null"`
	PreviousPage int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
}

func (ProgressModel) TableName() string { return "reading_progress_history" }

type ContentModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index"`
	BookID      string `gorm:"not null;index"`
	ContentType string `gorm:"not null;uniqueIndex:idx_content_source"`
	ContentText string `gorm:"type:text;not null"`
	PageNumber  *int
	SourceID    *string          `gorm:"uniqueIndex:idx_content_source"`
	Embedding   *pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt   time.Time        `gorm:"not null;index"`
}

func (ContentModel) TableName() string { return "reading_content_embeddings" }

type InsightMemoryModel struct {
	ID              string         `gorm:"primaryKey"`
	UserID          string         `gorm:"not null;index"`
	InsightContent  string         `gorm:"type:text;not null"`
	InsightMetadata datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null;index"`
}

func (InsightMemoryModel) TableName() string { return "reading_insights_memory" }

type RateLimitModel struct {
	ID              string    `gorm:"primaryKey"`
	UserID          string    `gorm:"uniqueIndex;not null"`
	LastGeneratedAt time.Time `gorm:"not null"`
}

func (RateLimitModel) TableName() string { return "reading_insights_rate_limit" }

type NoteStructureModel struct {
	ID            string         `gorm:"primaryKey"`
	UserID        string         `gorm:"not null;uniqueIndex:idx_structure_owner"`
	BookID        string         `gorm:"not null;uniqueIndex:idx_structure_owner"`
	StructureJSON datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

func (NoteStructureModel) TableName() string { return "note_structures" }

type RecommendationModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;index"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

func (RecommendationModel) TableName() string { return "book_recommendations" }

type DeviceTokenModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Token     string    `gorm:"uniqueIndex;not null"`
	Platform  string
	CreatedAt time.Time `gorm:"not null"`
}

func (DeviceTokenModel) TableName() string { return "device_tokens" }
