package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// maxMemoryRuns bounds the in-memory history
const maxMemoryRuns = 200

// memoryRunRepository keeps recent runs in process memory when no database is configured
type memoryRunRepository struct {
	mu   sync.RWMutex
	runs []*domain.RunSummary
}

// NewMemoryRunRepository creates a new in-memory RunRepository
func NewMemoryRunRepository() RunRepository {
	return &memoryRunRepository{}
}

func (r *memoryRunRepository) Save(ctx context.Context, summary *domain.RunSummary) error {
	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	stored := *summary
	stored.Failures = append([]domain.FailureDetail(nil), summary.Failures...)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.runs {
		if existing.ID == stored.ID {
			r.runs[i] = &stored
			return nil
		}
	}
	r.runs = append(r.runs, &stored)
	if len(r.runs) > maxMemoryRuns {
		r.runs = r.runs[len(r.runs)-maxMemoryRuns:]
	}
	return nil
}

func (r *memoryRunRepository) FindByID(ctx context.Context, id string) (*domain.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.ID == id {
			c := *run
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memoryRunRepository) List(ctx context.Context, kind domain.RunKind, limit int) ([]*domain.RunSummary, error) {
	r.mu.RLock()
	var runs []*domain.RunSummary
	for _, run := range r.runs {
		if kind == "" || run.Kind == kind {
			c := *run
			runs = append(runs, &c)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
