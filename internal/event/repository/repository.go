package repository

import (
	"context"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// RunRepository defines the interface for run history data access
type RunRepository interface {
	// Save stores a finished run summary, assigning an ID when missing
	Save(ctx context.Context, summary *domain.RunSummary) error

	// FindByID finds a run by its ID, returning nil when absent
	FindByID(ctx context.Context, id string) (*domain.RunSummary, error)

	// List returns the most recent runs first. An empty kind lists every kind.
	List(ctx context.Context, kind domain.RunKind, limit int) ([]*domain.RunSummary, error)
}
