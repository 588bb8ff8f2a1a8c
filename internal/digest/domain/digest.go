package domain

import (
	"time"

	eventdomain "github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// EmptyMessage is the payload text of a digest whose window holds no events
const EmptyMessage = "There's nothing on the calendar this week."

// Window is the half-open time range [Start, End) a digest covers
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NextDays returns the window of the given number of days starting at from
func NextDays(from time.Time, days int) Window {
	return Window{Start: from, End: from.AddDate(0, 0, days)}
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Item is one classified action item with the context of its event
type Item struct {
	Description string               `json:"description"`
	Link        string               `json:"link,omitempty"`
	Due         *time.Time           `json:"due,omitempty"`
	Priority    eventdomain.Priority `json:"priority"`
	EventTitle  string               `json:"event_title"`
	EventStart  time.Time            `json:"event_start"`
	AllDay      bool                 `json:"all_day"`
	Location    string               `json:"location,omitempty"`
	// FromEvent marks an event without action items, classified as a whole
	FromEvent bool `json:"from_event,omitempty"`
	// Defaulted marks an item whose classification failed and fell back to Optional
	Defaulted bool `json:"defaulted,omitempty"`
}

// Bucket groups the items of one priority, sorted by due date
type Bucket struct {
	Priority eventdomain.Priority `json:"priority"`
	Label    string               `json:"label"`
	Items    []Item               `json:"items"`
}

// Digest is the priority-grouped document sent to recipients
type Digest struct {
	Window      Window    `json:"window"`
	GeneratedAt time.Time `json:"generated_at"`
	// Buckets are in MustDo, HighlyRecommended, Optional order; empty buckets are omitted
	Buckets []Bucket `json:"buckets"`
	Empty   bool     `json:"empty"`
	Message string   `json:"message,omitempty"`

	EventCount             int `json:"event_count"`
	ItemCount              int `json:"item_count"`
	ClassificationFailures int `json:"classification_failures"`
}

// Items returns the items of every bucket in digest order
func (d *Digest) Items() []Item {
	var items []Item
	for _, b := range d.Buckets {
		items = append(items, b.Items...)
	}
	return items
}
