package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnific9/SchoolCalEnricher/internal/digest/domain"
	eventdomain "github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/pkg/ai"
)

// Aggregator builds digests, classifying every action item afresh on each build
type Aggregator struct {
	oracle  ai.Oracle
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewAggregator creates a new Aggregator. timeout bounds each classification call.
func NewAggregator(oracle ai.Oracle, timeout time.Duration, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		oracle:  oracle,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Build assembles the digest of the events starting inside window. Events outside the
// window are ignored, so callers may pass a superset. A failed classification
// defaults the item to Optional; only a cancelled context fails the build.
func (a *Aggregator) Build(ctx context.Context, window domain.Window, events []*eventdomain.Event) (*domain.Digest, error) {
	d := &domain.Digest{Window: window, GeneratedAt: a.now()}

	var selected []*eventdomain.Event
	for _, e := range events {
		if window.Contains(e.Start) {
			selected = append(selected, e)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Start.Before(selected[j].Start) })
	d.EventCount = len(selected)

	if len(selected) == 0 {
		d.Empty = true
		d.Message = domain.EmptyMessage
		return d, nil
	}

	var items []domain.Item
	for _, e := range selected {
		if len(e.ActionItems) == 0 {
			item, failed := a.classify(ctx, e, nil)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("digest build interrupted: %w", err)
			}
			if failed {
				d.ClassificationFailures++
			}
			items = append(items, item)
			continue
		}
		for _, action := range e.ActionItems {
			item, failed := a.classify(ctx, e, action)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("digest build interrupted: %w", err)
			}
			if failed {
				d.ClassificationFailures++
			}
			items = append(items, item)
		}
	}

	d.Buckets = group(items)
	d.ItemCount = len(items)
	return d, nil
}

// classify asks the oracle for the priority of one action item, or of the event itself
// when action is nil. It reports whether the answer had to be defaulted.
func (a *Aggregator) classify(ctx context.Context, e *eventdomain.Event, action *eventdomain.ActionItem) (domain.Item, bool) {
	item := domain.Item{
		Description: e.Title,
		EventTitle:  e.Title,
		EventStart:  e.Start,
		AllDay:      e.AllDay,
		Location:    e.LocationValue(),
		FromEvent:   action == nil,
	}
	if action != nil {
		item.Description = action.Description
		item.Link = action.Link
		item.Due = action.Due
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	label, err := a.oracle.Classify(callCtx, ai.ClassifyRequest{
		Item:             item.Description,
		Due:              item.Due,
		EventTitle:       e.Title,
		EventStart:       e.Start,
		EventDescription: e.Description,
		Today:            a.now(),
	})

	priority, ok := eventdomain.ParsePriority(label)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("%w: unknown label %q", ai.ErrMalformedResponse, label)
		}
		a.log.Warn().Err(err).Str("item", item.Description).Str("event", e.Title).
			Msg("classification failed, defaulting to optional")
		priority = eventdomain.PriorityOptional
		item.Defaulted = true
	}

	item.Priority = priority
	if action != nil {
		p := priority
		action.Priority = &p
	}
	return item, item.Defaulted
}

// group buckets items in fixed priority order, each bucket sorted by due date with
// undated items last
func group(items []domain.Item) []domain.Bucket {
	var buckets []domain.Bucket
	for _, p := range eventdomain.Priorities {
		var bucket []domain.Item
		for _, item := range items {
			if item.Priority == p {
				bucket = append(bucket, item)
			}
		}
		if len(bucket) == 0 {
			continue
		}
		sort.SliceStable(bucket, func(i, j int) bool { return dueBefore(bucket[i], bucket[j]) })
		buckets = append(buckets, domain.Bucket{Priority: p, Label: p.Label(), Items: bucket})
	}
	return buckets
}

func dueBefore(a, b domain.Item) bool {
	switch {
	case a.Due == nil && b.Due == nil:
		return a.EventStart.Before(b.EventStart)
	case a.Due == nil:
		return false
	case b.Due == nil:
		return true
	case !a.Due.Equal(*b.Due):
		return a.Due.Before(*b.Due)
	default:
		return a.EventStart.Before(b.EventStart)
	}
}
