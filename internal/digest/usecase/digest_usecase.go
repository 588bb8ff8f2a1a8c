package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnific9/SchoolCalEnricher/internal/digest/domain"
	eventdomain "github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/internal/event/repository"
)

// ErrRunInProgress is returned when a digest run is requested while another is active
var ErrRunInProgress = errors.New("a digest run is already in progress")

// ErrNoRecipients is returned when no recipient source produced an address
var ErrNoRecipients = errors.New("no digest recipients")

// digestUsecase implements DigestUsecase
type digestUsecase struct {
	reader     EventReader
	aggregator *Aggregator
	renderer   *Renderer
	recipients RecipientResolver
	mailer     Mailer
	announcer  Announcer
	runs       repository.RunRepository
	days       int
	log        zerolog.Logger
	now        func() time.Time

	mu sync.Mutex
}

// NewDigestUsecase creates a new instance of digestUsecase. announcer may be nil.
func NewDigestUsecase(
	reader EventReader,
	aggregator *Aggregator,
	renderer *Renderer,
	recipients RecipientResolver,
	mailer Mailer,
	announcer Announcer,
	runs repository.RunRepository,
	days int,
	log zerolog.Logger,
) DigestUsecase {
	if days <= 0 {
		days = 7
	}
	return &digestUsecase{
		reader:     reader,
		aggregator: aggregator,
		renderer:   renderer,
		recipients: recipients,
		mailer:     mailer,
		announcer:  announcer,
		runs:       runs,
		days:       days,
		log:        log,
		now:        time.Now,
	}
}

// Run executes one digest run. Nothing is sent unless the digest was fully built and
// rendered; per-recipient send failures are counted on the summary.
func (u *digestUsecase) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if !u.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer u.mu.Unlock()

	summary := &eventdomain.RunSummary{
		ID:        uuid.New().String(),
		Kind:      eventdomain.RunKindDigest,
		StartedAt: u.now(),
		DryRun:    opts.DryRun,
	}
	result := &Result{Summary: summary}
	log := u.log.With().Str("run_id", summary.ID).Bool("dry_run", opts.DryRun).Logger()

	err := u.run(ctx, opts, result, log)
	if err != nil {
		summary.Error = err.Error()
	}
	summary.FinishedAt = u.now()

	if u.runs != nil {
		if saveErr := u.runs.Save(ctx, summary); saveErr != nil {
			log.Warn().Err(saveErr).Msg("failed to record run summary")
		}
	}

	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
	}
	event.Int("items", summary.DigestItems).
		Bool("empty", summary.DigestEmpty).
		Int("classification_failures", summary.ClassificationFailures).
		Int("recipients", summary.Recipients).
		Int("sent", summary.Sent).
		Int("send_failures", summary.SendFailures).
		Msg("digest run finished")

	return result, err
}

func (u *digestUsecase) run(ctx context.Context, opts RunOptions, result *Result, log zerolog.Logger) error {
	summary := result.Summary
	days := u.days
	if opts.Days > 0 {
		days = opts.Days
	}
	window := domain.NextDays(u.now(), days)

	events, err := u.reader.FindCandidates(ctx, window.Start, window.End)
	if err != nil {
		summary.AddFailure("", "", "find_candidates", err)
		return fmt.Errorf("failed to read upcoming events: %w", err)
	}
	log.Info().Int("events", len(events)).Time("from", window.Start).Time("to", window.End).Msg("loaded upcoming events")

	digest, err := u.aggregator.Build(ctx, window, events)
	if err != nil {
		return fmt.Errorf("failed to build digest: %w", err)
	}
	result.Digest = digest
	summary.DigestItems = digest.ItemCount
	summary.DigestEmpty = digest.Empty
	summary.ClassificationFailures = digest.ClassificationFailures

	rendered, err := u.renderer.Render(digest)
	if err != nil {
		return fmt.Errorf("failed to render digest: %w", err)
	}
	result.Rendered = &rendered

	if opts.DryRun {
		return nil
	}

	recipients, err := u.recipients.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	summary.Recipients = len(recipients)

	for _, to := range recipients {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := u.mailer.Send(ctx, to, rendered.Subject, rendered.HTML, rendered.Text); err != nil {
			summary.SendFailures++
			summary.AddFailure("", "", "send", fmt.Errorf("%s: %w", to, err))
			log.Warn().Err(err).Str("to", to).Msg("failed to send digest")
			continue
		}
		summary.Sent++
		log.Debug().Str("to", to).Msg("digest sent")
	}

	if u.announcer != nil && summary.Sent > 0 {
		body := digest.Message
		if !digest.Empty {
			body = fmt.Sprintf("%d items for the week ahead", digest.ItemCount)
		}
		err := u.announcer.Announce(ctx, rendered.Subject, body, map[string]string{
			"type":   "school_digest",
			"run_id": summary.ID,
			"items":  strconv.Itoa(digest.ItemCount),
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to announce digest")
		}
	}
	return nil
}
