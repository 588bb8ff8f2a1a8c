package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	digestusecase "github.com/omnific9/SchoolCalEnricher/internal/digest/usecase"
	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	eventusecase "github.com/omnific9/SchoolCalEnricher/internal/event/usecase"
)

// Fetcher runs the email to calendar sync
type Fetcher interface {
	Run(ctx context.Context, opts eventusecase.RunOptions) (*domain.RunSummary, error)
}

// Digester runs the weekly digest
type Digester interface {
	Run(ctx context.Context, opts digestusecase.RunOptions) (*digestusecase.Result, error)
}

// Config sets when the scheduler runs each pipeline
type Config struct {
	// FetchInterval between periodic fetch runs; 0 disables the ticker
	FetchInterval time.Duration
	DigestWeekday time.Weekday
	DigestHour    int
	Location      *time.Location
	// DigestEnabled turns on the weekly digest timer
	DigestEnabled bool
}

// Scheduler drives fetch runs on a ticker or on demand and the digest once a week
type Scheduler struct {
	fetcher  Fetcher
	digester Digester
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	trigger  chan string
	stopChan chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a new scheduler. digester may be nil when the digest is disabled.
func New(fetcher Fetcher, digester Digester, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if digester == nil {
		cfg.DigestEnabled = false
	}
	return &Scheduler{
		fetcher:  fetcher,
		digester: digester,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		trigger:  make(chan string, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop. A fetch runs immediately. It does nothing when the
// scheduler was already started or stopped.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.log.Info().Dur("fetch_interval", s.cfg.FetchInterval).Bool("digest", s.cfg.DigestEnabled).
		Msg("starting scheduler")

	go func() {
		defer close(s.done)

		s.fetch(ctx, "startup")

		var tick <-chan time.Time
		if s.cfg.FetchInterval > 0 {
			ticker := time.NewTicker(s.cfg.FetchInterval)
			defer ticker.Stop()
			tick = ticker.C
		}

		var digestC <-chan time.Time
		var digestTimer *time.Timer
		if s.cfg.DigestEnabled {
			next := s.NextDigest(s.now())
			s.log.Info().Time("next_digest", next).Msg("digest scheduled")
			digestTimer = time.NewTimer(next.Sub(s.now()))
			defer digestTimer.Stop()
			digestC = digestTimer.C
		}

		for {
			select {
			case <-tick:
				s.fetch(ctx, "interval")
			case reason := <-s.trigger:
				s.fetch(ctx, reason)
			case <-digestC:
				s.digest(ctx)
				next := s.NextDigest(s.now())
				s.log.Info().Time("next_digest", next).Msg("digest scheduled")
				digestTimer.Reset(next.Sub(s.now()))
			case <-s.stopChan:
				s.log.Info().Msg("scheduler stopped")
				return
			case <-ctx.Done():
				s.log.Info().Msg("scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler and waits for the running job to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		if !s.started {
			close(s.done)
		}
	}
	s.mu.Unlock()
	<-s.done
}

// TriggerFetch queues a fetch run. Requests arriving while one is already queued are
// coalesced; it reports whether a new run was queued.
func (s *Scheduler) TriggerFetch(reason string) bool {
	select {
	case s.trigger <- reason:
		return true
	default:
		return false
	}
}

// NextDigest returns the first digest slot strictly after from
func (s *Scheduler) NextDigest(from time.Time) time.Time {
	local := from.In(s.cfg.Location)
	slot := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.DigestHour, 0, 0, 0, s.cfg.Location)
	days := (int(s.cfg.DigestWeekday) - int(local.Weekday()) + 7) % 7
	slot = slot.AddDate(0, 0, days)
	if !slot.After(from) {
		slot = slot.AddDate(0, 0, 7)
	}
	return slot
}

func (s *Scheduler) fetch(ctx context.Context, reason string) {
	log := s.log.With().Str("reason", reason).Logger()
	_, err := s.fetcher.Run(ctx, eventusecase.RunOptions{})
	switch {
	case errors.Is(err, eventusecase.ErrRunInProgress):
		log.Debug().Msg("fetch already running, skipped")
	case err != nil:
		log.Error().Err(err).Msg("scheduled fetch failed")
	}
}

func (s *Scheduler) digest(ctx context.Context) {
	_, err := s.digester.Run(ctx, digestusecase.RunOptions{})
	switch {
	case errors.Is(err, digestusecase.ErrRunInProgress):
		s.log.Debug().Msg("digest already running, skipped")
	case err != nil:
		s.log.Error().Err(err).Msg("scheduled digest failed")
	}
}
