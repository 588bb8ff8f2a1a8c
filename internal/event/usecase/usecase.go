package usecase

import (
	"context"
	"time"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// SyncUsecase defines the fetch run: emails in, calendar events out
type SyncUsecase interface {
	// Run processes every email received after the stored watermark and advances it
	// past the emails whose events were all synced or skipped
	Run(ctx context.Context, opts RunOptions) (*domain.RunSummary, error)
}

// RunOptions tunes a single fetch run
type RunOptions struct {
	// DryRun reconciles without writing to the calendar or moving the watermark
	DryRun bool
}

// EmailSource defines the mailbox the fetch run reads from
type EmailSource interface {
	// FetchSince returns the emails received strictly after watermark, oldest first.
	// Calling it again with the same watermark has no effect on the mailbox.
	FetchSince(ctx context.Context, watermark time.Time) ([]domain.RawEmail, error)
}

// CalendarAdapter defines the calendar store events are reconciled against
type CalendarAdapter interface {
	// FindCandidates lists the synced events overlapping [from, to)
	FindCandidates(ctx context.Context, from, to time.Time) ([]*domain.Event, error)

	// Create inserts the event and returns its external id
	Create(ctx context.Context, e *domain.Event) (string, error)

	// Update replaces the event stored under externalID
	Update(ctx context.Context, externalID string, e *domain.Event) error
}
