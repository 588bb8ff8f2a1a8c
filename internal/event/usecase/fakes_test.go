package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/pkg/ai"
)

var errMalformed = fmt.Errorf("%w: not json", ai.ErrMalformedResponse)

// fakeOracle answers extraction requests by email subject
type fakeOracle struct {
	mu       sync.Mutex
	events   map[string][]ai.ExtractedEvent
	errs     map[string]error
	requests []ai.ExtractRequest
	classify func(req ai.ClassifyRequest) (string, error)
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		events: make(map[string][]ai.ExtractedEvent),
		errs:   make(map[string]error),
	}
}

func (f *fakeOracle) Extract(ctx context.Context, req ai.ExtractRequest) ([]ai.ExtractedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Subject]; err != nil {
		return nil, err
	}
	return f.events[req.Subject], nil
}

func (f *fakeOracle) Classify(ctx context.Context, req ai.ClassifyRequest) (string, error) {
	if f.classify != nil {
		return f.classify(req)
	}
	return ai.LabelOptional, nil
}

// fakeCalendar is an in-memory calendar store
type fakeCalendar struct {
	mu      sync.Mutex
	events  map[string]*domain.Event
	nextID  int
	creates int
	updates int
	failOn  func(e *domain.Event) error
	findErr error
	now     time.Time
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		events: make(map[string]*domain.Event),
		now:    time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeCalendar) FindCandidates(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*domain.Event
	for _, e := range f.events {
		if e.EffectiveEnd().Before(from) || !e.Start.Before(to) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeCalendar) Create(ctx context.Context, e *domain.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		if err := f.failOn(e); err != nil {
			return "", err
		}
	}
	f.nextID++
	f.creates++
	id := fmt.Sprintf("evt-%d", f.nextID)
	stored := e.Clone()
	stored.ExternalID = domain.StringPtr(id)
	stored.SyncedAt = domain.TimePtr(f.now)
	f.events[id] = stored
	return id, nil
}

func (f *fakeCalendar) Update(ctx context.Context, externalID string, e *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		if err := f.failOn(e); err != nil {
			return err
		}
	}
	if _, ok := f.events[externalID]; !ok {
		return errors.New("not found")
	}
	f.updates++
	stored := e.Clone()
	stored.ExternalID = domain.StringPtr(externalID)
	stored.SyncedAt = domain.TimePtr(f.now)
	f.events[externalID] = stored
	return nil
}

func (f *fakeCalendar) all() []*domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Event, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e)
	}
	return out
}

// fakeSource serves a fixed mailbox, honoring the watermark
type fakeSource struct {
	emails []domain.RawEmail
	err    error
	calls  []time.Time
}

func (f *fakeSource) FetchSince(ctx context.Context, watermark time.Time) ([]domain.RawEmail, error) {
	f.calls = append(f.calls, watermark)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.RawEmail
	for _, e := range f.emails {
		if e.ReceivedAt.After(watermark) {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeStateStore keeps the watermark in memory
type fakeStateStore struct {
	state   domain.SyncState
	saves   int
	saveErr error
}

func (f *fakeStateStore) Load(ctx context.Context) (domain.SyncState, error) {
	return f.state, nil
}

func (f *fakeStateStore) Save(ctx context.Context, state domain.SyncState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.state = state
	return nil
}
