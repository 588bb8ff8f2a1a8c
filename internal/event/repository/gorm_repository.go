package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// gormRunRepository implements RunRepository using GORM
type gormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GORM-based RunRepository
func NewGormRunRepository(db *gorm.DB) (RunRepository, error) {
	if err := db.AutoMigrate(&domain.RunSummary{}); err != nil {
		return nil, err
	}
	return &gormRunRepository{db: db}, nil
}

func (r *gormRunRepository) Save(ctx context.Context, summary *domain.RunSummary) error {
	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Save(summary).Error
}

func (r *gormRunRepository) FindByID(ctx context.Context, id string) (*domain.RunSummary, error) {
	var summary domain.RunSummary
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

func (r *gormRunRepository) List(ctx context.Context, kind domain.RunKind, limit int) ([]*domain.RunSummary, error) {
	var runs []*domain.RunSummary
	query := r.db.WithContext(ctx).Model(&domain.RunSummary{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("started_at DESC").Find(&runs).Error
	return runs, err
}
