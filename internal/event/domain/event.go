package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimedDuration is the length assumed for a timed event that has no end time
const DefaultTimedDuration = time.Hour

var (
	// ErrInvalidEvent is returned when a candidate breaks an Event invariant
	ErrInvalidEvent = errors.New("invalid event")
	// ErrNoStartDate is returned when the oracle produced an event without a usable start date
	ErrNoStartDate = errors.New("event has no start date")
)

// RawEmail is a school notification as delivered by an email source
type RawEmail struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Event represents a school calendar entry, either a candidate extracted from an email
// or an entry already synced to the calendar (ExternalID set)
type Event struct {
	Title         string        `json:"title"`
	Start         time.Time     `json:"start"`
	End           *time.Time    `json:"end,omitempty"`
	AllDay        bool          `json:"all_day"`
	Location      *string       `json:"location,omitempty"`
	Description   string        `json:"description,omitempty"`
	SourceEmailID string        `json:"source_email_id,omitempty"`
	ExternalID    *string       `json:"external_id,omitempty"`
	SyncedAt      *time.Time    `json:"synced_at,omitempty"`
	ActionItems   []*ActionItem `json:"action_items,omitempty"`
}

// Validate checks the Event invariants. It never corrects data.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidEvent)
	}
	if e.Start.IsZero() {
		return fmt.Errorf("%w: missing start", ErrInvalidEvent)
	}
	if e.End != nil && e.End.Before(e.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidEvent,
			e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
	}
	return nil
}

// EffectiveEnd returns the end written to the calendar. All-day events without an end
// cover their start day; timed events without an end last DefaultTimedDuration.
func (e *Event) EffectiveEnd() time.Time {
	if e.End != nil {
		return *e.End
	}
	if e.AllDay {
		return e.Start
	}
	return e.Start.Add(DefaultTimedDuration)
}

// LocationValue returns the location or "" when absent
func (e *Event) LocationValue() string {
	if e.Location == nil {
		return ""
	}
	return *e.Location
}

// ExternalIDValue returns the calendar id or "" when the event has not been synced
func (e *Event) ExternalIDValue() string {
	if e.ExternalID == nil {
		return ""
	}
	return *e.ExternalID
}

// IsSynced reports whether the event exists in the calendar
func (e *Event) IsSynced() bool {
	return e.ExternalID != nil && *e.ExternalID != ""
}

// Key returns the MatchKey of the event
func (e *Event) Key() MatchKey {
	return NewMatchKey(e.Title, e.Start)
}

// DiffersFrom reports whether the details that a calendar update would change differ
// between e and other: time, location, description and the linked action items.
// Titles are not compared; matching already decided they name the same event.
func (e *Event) DiffersFrom(other *Event) bool {
	if e.AllDay != other.AllDay {
		return true
	}
	if !sameMinute(e.Start, other.Start) || !sameMinute(e.EffectiveEnd(), other.EffectiveEnd()) {
		return true
	}
	if strings.TrimSpace(e.LocationValue()) != strings.TrimSpace(other.LocationValue()) {
		return true
	}
	if normalizeText(e.Description) != normalizeText(other.Description) {
		return true
	}
	return !sameActionItems(e.ActionItems, other.ActionItems)
}

// Clone returns a deep copy of the event
func (e *Event) Clone() *Event {
	c := *e
	if e.End != nil {
		end := *e.End
		c.End = &end
	}
	if e.Location != nil {
		loc := *e.Location
		c.Location = &loc
	}
	if e.ExternalID != nil {
		id := *e.ExternalID
		c.ExternalID = &id
	}
	if e.SyncedAt != nil {
		at := *e.SyncedAt
		c.SyncedAt = &at
	}
	c.ActionItems = make([]*ActionItem, 0, len(e.ActionItems))
	for _, item := range e.ActionItems {
		ic := *item
		if item.Due != nil {
			due := *item.Due
			ic.Due = &due
		}
		if item.Priority != nil {
			p := *item.Priority
			ic.Priority = &p
		}
		c.ActionItems = append(c.ActionItems, &ic)
	}
	return &c
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sameActionItems(a, b []*ActionItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if normalizeText(a[i].Description) != normalizeText(b[i].Description) {
			return false
		}
		if strings.TrimSpace(a[i].Link) != strings.TrimSpace(b[i].Link) {
			return false
		}
		if (a[i].Due == nil) != (b[i].Due == nil) {
			return false
		}
		if a[i].Due != nil && !sameMinute(*a[i].Due, *b[i].Due) {
			return false
		}
	}
	return true
}

// StringPtr is a small helper for optional string fields
func StringPtr(s string) *string {
	return &s
}

// TimePtr is a small helper for optional time fields
func TimePtr(t time.Time) *time.Time {
	return &t
}
