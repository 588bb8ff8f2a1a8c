package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// RetryConfig bounds every call crossing the calendar boundary
type RetryConfig struct {
	Attempts int           // total tries per call, at least 1
	Backoff  time.Duration // first wait, doubled after each failure
	Timeout  time.Duration // deadline of a single try
}

// RetryingAdapter wraps an Adapter with per-call deadlines, bounded retry with
// exponential backoff and a circuit breaker shared by all calls
type RetryingAdapter struct {
	next  Adapter
	cfg   RetryConfig
	cb    *gobreaker.CircuitBreaker
	log   zerolog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryingAdapter creates the retry boundary around next
func NewRetryingAdapter(next Adapter, cfg RetryConfig, log zerolog.Logger) *RetryingAdapter {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	cbSettings := gobreaker.Settings{
		Name:        "google-calendar",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected request says nothing about the health of the service
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &RetryingAdapter{
		next:  next,
		cfg:   cfg,
		cb:    gobreaker.NewCircuitBreaker(cbSettings),
		log:   log,
		sleep: sleepContext,
	}
}

// FindCandidates implements Adapter
func (r *RetryingAdapter) FindCandidates(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	var events []*domain.Event
	err := r.do(ctx, "find_candidates", func(ctx context.Context) error {
		var err error
		events, err = r.next.FindCandidates(ctx, from, to)
		return err
	})
	return events, err
}

// Create implements Adapter
func (r *RetryingAdapter) Create(ctx context.Context, e *domain.Event) (string, error) {
	var id string
	err := r.do(ctx, "create", func(ctx context.Context) error {
		var err error
		id, err = r.next.Create(ctx, e)
		return err
	})
	return id, err
}

// Update implements Adapter
func (r *RetryingAdapter) Update(ctx context.Context, externalID string, e *domain.Event) error {
	return r.do(ctx, "update", func(ctx context.Context) error {
		return r.next.Update(ctx, externalID, e)
	})
}

func (r *RetryingAdapter) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	backoff := r.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		_, err := r.cb.Execute(func() (interface{}, error) {
			callCtx := ctx
			if r.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
				defer cancel()
			}
			return nil, call(callCtx)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("calendar %s: %w", op, ctx.Err())
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("calendar %s: %w", op, err)
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == r.cfg.Attempts {
			break
		}

		r.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("calendar call failed, retrying")
		if err := r.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("calendar %s: %w", op, err)
		}
		backoff *= 2
	}
	return fmt.Errorf("calendar %s failed after %d attempts: %w", op, r.cfg.Attempts, lastErr)
}

// IsRetryable reports whether a failed call may succeed when repeated. Google API
// client errors fail fast except request timeouts and rate limiting.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusRequestTimeout, apiErr.Code == http.StatusTooManyRequests:
			return true
		case apiErr.Code == http.StatusForbidden && isRateLimitReason(apiErr):
			return true
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return false
		}
	}
	return true
}

func isRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
