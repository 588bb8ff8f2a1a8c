package usecase

import (
	"context"
	"time"

	"github.com/omnific9/SchoolCalEnricher/internal/digest/domain"
	eventdomain "github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// DigestUsecase defines the digest run: calendar in, email out
type DigestUsecase interface {
	// Run builds the digest of the upcoming window and sends it to every recipient
	Run(ctx context.Context, opts RunOptions) (*Result, error)
}

// RunOptions tunes a single digest run
type RunOptions struct {
	// DryRun builds and renders the digest without sending it
	DryRun bool
	// Days overrides the window length when positive
	Days int
}

// Result is the outcome of a digest run
type Result struct {
	Summary  *eventdomain.RunSummary `json:"summary"`
	Digest   *domain.Digest          `json:"digest,omitempty"`
	Rendered *Rendered               `json:"rendered,omitempty"`
}

// EventReader defines the calendar the digest reads upcoming events from
type EventReader interface {
	FindCandidates(ctx context.Context, from, to time.Time) ([]*eventdomain.Event, error)
}

// RecipientResolver supplies the deduplicated recipient addresses
type RecipientResolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// Mailer delivers one rendered digest to one recipient
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// Announcer publishes a short push notification once the digest went out
type Announcer interface {
	Announce(ctx context.Context, title, body string, data map[string]string) error
}
