package calendar

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

type flakyAdapter struct {
	errs  []error // returned in order, then success
	calls int
	block bool
}

func (f *flakyAdapter) next(ctx context.Context) error {
	f.calls++
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.calls <= len(f.errs) {
		return f.errs[f.calls-1]
	}
	return nil
}

func (f *flakyAdapter) FindCandidates(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	if err := f.next(ctx); err != nil {
		return nil, err
	}
	return []*domain.Event{{Title: "ok"}}, nil
}

func (f *flakyAdapter) Create(ctx context.Context, e *domain.Event) (string, error) {
	if err := f.next(ctx); err != nil {
		return "", err
	}
	return "new-id", nil
}

func (f *flakyAdapter) Update(ctx context.Context, externalID string, e *domain.Event) error {
	return f.next(ctx)
}

func newTestRetry(next Adapter, attempts int) (*RetryingAdapter, *[]time.Duration) {
	r := NewRetryingAdapter(next, RetryConfig{Attempts: attempts, Backoff: 100 * time.Millisecond, Timeout: 50 * time.Millisecond}, zerolog.Nop())
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func apiErr(code int) error {
	return &googleapi.Error{Code: code, Message: http.StatusText(code)}
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	fake := &flakyAdapter{errs: []error{apiErr(503), apiErr(429)}}
	r, waits := newTestRetry(fake, 3)

	id, err := r.Create(context.Background(), &domain.Event{Title: "PTA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "new-id" {
		t.Errorf("id = %q", id)
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != 100*time.Millisecond || (*waits)[1] != 200*time.Millisecond {
		t.Errorf("backoff waits = %v, want [100ms 200ms]", *waits)
	}
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	fake := &flakyAdapter{errs: []error{apiErr(500), apiErr(502), apiErr(503), apiErr(504)}}
	r, _ := newTestRetry(fake, 3)

	err := r.Update(context.Background(), "evt1", &domain.Event{Title: "PTA"})
	if err == nil {
		t.Fatal("expected error")
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != 503 {
		t.Errorf("expected the last API error to be wrapped, got %v", err)
	}
}

func TestRetryFailsFastOnClientError(t *testing.T) {
	fake := &flakyAdapter{errs: []error{apiErr(400)}}
	r, waits := newTestRetry(fake, 3)

	if _, err := r.Create(context.Background(), &domain.Event{}); err == nil {
		t.Fatal("expected error")
	}
	if fake.calls != 1 || len(*waits) != 0 {
		t.Errorf("calls = %d waits = %v, want a single try", fake.calls, *waits)
	}
}

func TestRetryTreatsHangAsFailure(t *testing.T) {
	fake := &flakyAdapter{block: true}
	r, _ := newTestRetry(fake, 2)

	_, err := r.FindCandidates(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2", fake.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", apiErr(500), true},
		{"request timeout", apiErr(408), true},
		{"rate limited", apiErr(429), true},
		{"not found", apiErr(404), false},
		{"forbidden", apiErr(403), false},
		{"forbidden rate limit", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"network", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}
