package syncstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// syncStateRecord is the single row holding the watermark
type syncStateRecord struct {
	ID        int       `gorm:"primaryKey;autoIncrement:false"`
	Watermark time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

// TableName specifies the table name for GORM
func (syncStateRecord) TableName() string {
	return "sync_state"
}

// gormStore keeps the watermark in the run history database
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store on db, migrating its table
func NewGormStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&syncStateRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sync_state: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) Load(ctx context.Context) (domain.SyncState, error) {
	var record syncStateRecord
	err := s.db.WithContext(ctx).Where("id = ?", 1).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SyncState{}, nil
	}
	if err != nil {
		return domain.SyncState{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	return domain.SyncState{Watermark: record.Watermark, UpdatedAt: record.UpdatedAt}, nil
}

// Save upserts the single row in one statement
func (s *gormStore) Save(ctx context.Context, state domain.SyncState) error {
	record := syncStateRecord{ID: 1, Watermark: state.Watermark.UTC(), UpdatedAt: state.UpdatedAt.UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"watermark", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	return nil
}
