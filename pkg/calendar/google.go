package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// Adapter is the calendar store the sync pipeline and the digest read from and write to
type Adapter interface {
	FindCandidates(ctx context.Context, from, to time.Time) ([]*domain.Event, error)
	Create(ctx context.Context, e *domain.Event) (string, error)
	Update(ctx context.Context, externalID string, e *domain.Event) error
}

// GoogleCalendar implements Adapter on Google Calendar v3
type GoogleCalendar struct {
	srv        *gcal.Service
	calendarID string
	codec      Codec
	log        zerolog.Logger
}

// NewGoogleCalendar creates the adapter using an authorized HTTP client
func NewGoogleCalendar(ctx context.Context, client *http.Client, calendarID string, loc *time.Location, log zerolog.Logger, opts ...option.ClientOption) (*GoogleCalendar, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleCalendar{
		srv:        srv,
		calendarID: calendarID,
		codec:      NewCodec(loc),
		log:        log,
	}, nil
}

// FindCandidates lists the events overlapping [from, to), expanding recurring events
func (g *GoogleCalendar) FindCandidates(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	var events []*domain.Event
	err := g.srv.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250).
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.Status == "cancelled" {
					continue
				}
				e, err := g.codec.FromGoogle(item)
				if err != nil {
					g.log.Warn().Err(err).Str("event_id", item.Id).Msg("skipping unreadable calendar event")
					continue
				}
				events = append(events, e)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to list events: %w", err)
	}
	return events, nil
}

// Create inserts the event and returns its calendar id
func (g *GoogleCalendar) Create(ctx context.Context, e *domain.Event) (string, error) {
	created, err := g.srv.Events.Insert(g.calendarID, g.codec.ToGoogle(e)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create event: %w", err)
	}
	g.log.Debug().Str("event_id", created.Id).Str("link", created.HtmlLink).Msg("event created")
	return created.Id, nil
}

// Update replaces the event stored under externalID
func (g *GoogleCalendar) Update(ctx context.Context, externalID string, e *domain.Event) error {
	updated, err := g.srv.Events.Update(g.calendarID, externalID, g.codec.ToGoogle(e)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to update event %s: %w", externalID, err)
	}
	g.log.Debug().Str("event_id", updated.Id).Str("link", updated.HtmlLink).Msg("event updated")
	return nil
}

// SubscriberEmails returns the user scopes of the calendar ACL
func (g *GoogleCalendar) SubscriberEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := g.srv.Acl.List(g.calendarID).Pages(ctx, func(page *gcal.Acl) error {
		for _, rule := range page.Items {
			if rule.Scope != nil && rule.Scope.Type == "user" && rule.Scope.Value != "" {
				emails = append(emails, rule.Scope.Value)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list calendar ACL: %w", err)
	}
	return emails, nil
}
