package domain

import (
	"time"

	"github.com/omnific9/SchoolCalEnricher/pkg/fuzzy"
)

// MatchKey narrows reconciliation candidates. It is derived, never stored, and not unique.
type MatchKey struct {
	Title string    // normalized title, the similarity bucket
	Start time.Time // start rounded down to the minute
}

// NewMatchKey builds the key of an event title and start
func NewMatchKey(title string, start time.Time) MatchKey {
	return MatchKey{
		Title: fuzzy.Normalize(title),
		Start: start.Truncate(time.Minute),
	}
}

// Day returns the calendar day of the key in loc, used as the index bucket
func (k MatchKey) Day(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return k.Start.In(loc).Format("2006-01-02")
}

func (k MatchKey) String() string {
	return k.Title + "@" + k.Start.UTC().Format(time.RFC3339)
}
