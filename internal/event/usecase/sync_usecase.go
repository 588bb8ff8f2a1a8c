package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/internal/event/repository"
	"github.com/omnific9/SchoolCalEnricher/internal/syncstate"
)

// ErrRunInProgress is returned when a fetch run is requested while another is active
var ErrRunInProgress = errors.New("a fetch run is already in progress")

// Failure stages reported on the run summary
const (
	StageFetch     = "fetch"
	StageExtract   = "extract"
	StageDiscard   = "discard"
	StageLookup    = "find_candidates"
	StageCreate    = "create"
	StageUpdate    = "update"
	StageWatermark = "watermark"
)

// syncUsecase implements SyncUsecase
type syncUsecase struct {
	source    EmailSource
	extractor *Extractor
	calendar  CalendarAdapter
	state     syncstate.Store
	runs      repository.RunRepository
	policy    MatchPolicy
	log       zerolog.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewSyncUsecase creates a new instance of syncUsecase
func NewSyncUsecase(
	source EmailSource,
	extractor *Extractor,
	calendar CalendarAdapter,
	state syncstate.Store,
	runs repository.RunRepository,
	policy MatchPolicy,
	log zerolog.Logger,
) SyncUsecase {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &syncUsecase{
		source:    source,
		extractor: extractor,
		calendar:  calendar,
		state:     state,
		runs:      runs,
		policy:    policy,
		log:       log,
		now:       time.Now,
	}
}

type emailBatch struct {
	email      domain.RawEmail
	candidates []*domain.Event
}

// Run executes one fetch run. A returned error means the run could not start or the
// watermark could not be stored; per-email and per-event failures are reported on the
// summary only.
func (u *syncUsecase) Run(ctx context.Context, opts RunOptions) (*domain.RunSummary, error) {
	if !u.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer u.mu.Unlock()

	summary := &domain.RunSummary{
		ID:        uuid.New().String(),
		Kind:      domain.RunKindFetch,
		StartedAt: u.now(),
		DryRun:    opts.DryRun,
	}
	log := u.log.With().Str("run_id", summary.ID).Bool("dry_run", opts.DryRun).Logger()

	err := u.run(ctx, opts, summary, log)
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
	event.Int("emails", summary.EmailsSeen).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("discarded", summary.Discarded).
		Int("extraction_failures", summary.ExtractionFailures).
		Msg("fetch run finished")

	return summary, err
}

func (u *syncUsecase) run(ctx context.Context, opts RunOptions, summary *domain.RunSummary, log zerolog.Logger) error {
	state, err := u.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watermark: %w", err)
	}
	before := state.Watermark
	summary.WatermarkBefore = nonZero(before)
	summary.WatermarkAfter = nonZero(before)

	emails, err := u.source.FetchSince(ctx, before)
	if err != nil {
		summary.AddFailure("", "", StageFetch, err)
		return fmt.Errorf("failed to fetch emails: %w", err)
	}
	log.Info().Int("emails", len(emails)).Time("watermark", before).Msg("fetched emails")
	if len(emails) == 0 {
		return nil
	}

	batches := make([]emailBatch, 0, len(emails))
	var all []*domain.Event
	for _, email := range emails {
		if ctx.Err() != nil {
			break
		}
		summary.EmailsSeen++
		res := u.extractor.Extract(ctx, email)
		switch {
		case res.SkipReason != "":
			summary.EmailsSkipped++
		case res.OracleErr != nil:
			summary.ExtractionFailures++
			summary.AddFailure(email.ID, "", StageExtract, res.OracleErr)
		}
		for _, d := range res.Discarded {
			summary.Discarded++
			summary.AddFailure(email.ID, d.Title, StageDiscard, d.Err)
		}

		batch := emailBatch{email: email}
		for _, ext := range res.Extractions {
			batch.candidates = append(batch.candidates, ext.Event)
			all = append(all, ext.Event)
		}
		batches = append(batches, batch)
	}

	var existing []*domain.Event
	if len(all) > 0 {
		from, to := candidateRange(all, u.policy)
		existing, err = u.calendar.FindCandidates(ctx, from, to)
		if err != nil {
			summary.AddFailure("", "", StageLookup, err)
			return fmt.Errorf("failed to read existing events: %w", err)
		}
		log.Debug().Int("existing", len(existing)).Time("from", from).Time("to", to).Msg("loaded existing events")
	}

	reconciler := NewReconciler(u.policy, existing)
	outcomes := make([]EmailOutcome, 0, len(batches))
	for _, batch := range batches {
		failed := false
		for _, c := range batch.candidates {
			if !u.apply(ctx, reconciler, c, batch.email, opts, summary, log) {
				failed = true
			}
		}
		if failed {
			summary.EmailsFailed++
		}
		outcomes = append(outcomes, EmailOutcome{
			EmailID:    batch.email.ID,
			ReceivedAt: batch.email.ReceivedAt,
			Failed:     failed,
		})
	}

	next := NextWatermark(before, outcomes)
	if opts.DryRun || !next.After(before) {
		return nil
	}
	if err := u.state.Save(ctx, domain.SyncState{Watermark: next, UpdatedAt: u.now()}); err != nil {
		summary.AddFailure("", "", StageWatermark, err)
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	summary.WatermarkAfter = nonZero(next)
	log.Info().Time("watermark", next).Msg("watermark advanced")
	return nil
}

// apply decides one candidate and writes it. It reports false when the calendar
// write failed.
func (u *syncUsecase) apply(ctx context.Context, r *Reconciler, c *domain.Event, email domain.RawEmail, opts RunOptions, summary *domain.RunSummary, log zerolog.Logger) bool {
	d := r.Decide(c)
	log = log.With().Str("email_id", email.ID).Str("title", c.Title).Time("start", c.Start).Str("action", string(d.Action)).Logger()

	switch d.Action {
	case ActionSkip:
		summary.Skipped++
		log.Debug().Str("reason", d.Reason).Msg("event unchanged")
		return true

	case ActionCreate:
		id := "dry-run:" + c.Key().String()
		if !opts.DryRun {
			var err error
			id, err = u.calendar.Create(ctx, d.Event)
			if err != nil {
				summary.Failed++
				summary.AddFailure(email.ID, c.Title, StageCreate, err)
				log.Error().Err(err).Msg("failed to create event")
				return false
			}
		}
		r.Commit(d, id)
		summary.Created++
		log.Info().Str("event_id", id).Msg("event created")
		return true

	case ActionUpdate:
		externalID := d.Match.ExternalIDValue()
		if !opts.DryRun {
			if err := u.calendar.Update(ctx, externalID, d.Event); err != nil {
				summary.Failed++
				summary.AddFailure(email.ID, c.Title, StageUpdate, err)
				log.Error().Err(err).Str("event_id", externalID).Msg("failed to update event")
				return false
			}
		}
		r.Commit(d, externalID)
		summary.Updated++
		log.Info().Str("event_id", externalID).Msg("event updated")
		return true
	}
	return true
}

// candidateRange returns the calendar window holding every possible match of the
// candidates: their span widened by the matching tolerance and a day each side
func candidateRange(candidates []*domain.Event, policy MatchPolicy) (time.Time, time.Time) {
	from := candidates[0].Start
	to := candidates[0].EffectiveEnd()
	for _, c := range candidates[1:] {
		if c.Start.Before(from) {
			from = c.Start
		}
		if end := c.EffectiveEnd(); end.After(to) {
			to = end
		}
	}
	pad := 24*time.Hour + policy.TimeTolerance
	return from.Add(-pad), to.Add(pad)
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
