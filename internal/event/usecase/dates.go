package usecase

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"Monday, January 2, 2006",
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// yearless layouts take the year of the reference date, rolling into the next year
// when the date would otherwise lie more than a month in the past
var yearlessLayouts = []string{
	"January 2",
	"Jan 2",
	"1/2",
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// parseDay parses an oracle start_date/end_date as midnight in loc
func parseDay(s string, loc *time.Location) (time.Time, bool) {
	if day, ok := parseDayLayouts(s, loc); ok {
		return day, true
	}
	if t, ok := parseLoose(s, loc); ok {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

// parseLoose hands absolute dates the fixed layouts miss ("2026/10/30",
// "30 October 2026") to dateparse. Text without digits and results without a plausible
// year are rejected.
func parseLoose(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "0123456789") {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil || t.Year() < 2000 {
		return time.Time{}, false
	}
	return t.In(loc), true
}

func parseDayLayouts(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	// some models answer with a full timestamp
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			t = t.In(loc)
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
		}
	}
	return time.Time{}, false
}

// parseClock parses an oracle start_time/end_time into hour and minute. Input is
// upper-cased first, so only upper-case meridiem layouts are listed.
func parseClock(s string) (hour, minute int, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return 0, 0, false
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	return 0, 0, false
}

// atClock places hour:minute on day in loc
func atClock(day time.Time, hour, minute int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}

// ParseDue turns a free-text due date into a time in loc. Relative expressions
// ("Friday", "tomorrow", "next week") are resolved against ref, usually the date the
// email was received. It returns nil when the text is not a date.
func ParseDue(s string, ref time.Time, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.UTC
	}
	text := strings.ToLower(strings.TrimSpace(s))
	text = strings.TrimRight(text, ".!")
	for _, prefix := range []string{"due by ", "due on ", "due ", "by ", "before ", "on ", "until "} {
		text = strings.TrimPrefix(text, prefix)
	}
	text = strings.TrimSpace(text)
	switch text {
	case "", "none", "null", "n/a", "na", "tbd", "asap":
		return nil
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, strings.ToUpper(text), loc); err == nil {
			t = t.In(loc)
			return &t
		}
	}
	if day, ok := parseDayLayouts(titleCase(text), loc); ok {
		return &day
	}

	refDay := ref.In(loc)
	refDay = time.Date(refDay.Year(), refDay.Month(), refDay.Day(), 0, 0, 0, 0, loc)

	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, titleCase(text), loc)
		if err != nil {
			continue
		}
		day := time.Date(refDay.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if day.Before(refDay.AddDate(0, -1, 0)) {
			day = day.AddDate(1, 0, 0)
		}
		return &day
	}

	switch text {
	case "today", "tonight", "end of day", "eod":
		return &refDay
	case "tomorrow":
		day := refDay.AddDate(0, 0, 1)
		return &day
	case "next week":
		day := refDay.AddDate(0, 0, 7)
		return &day
	}

	next := false
	if rest, found := strings.CutPrefix(text, "next "); found {
		text, next = rest, true
	} else if rest, found := strings.CutPrefix(text, "this "); found {
		text = rest
	}
	if wd, ok := weekdays[text]; ok {
		day := nextWeekday(refDay, wd, next)
		return &day
	}
	if t, ok := parseLoose(titleCase(text), loc); ok {
		return &t
	}
	return nil
}

// nextWeekday returns the first day on or after ref falling on wd. With strict set the
// result is always after ref.
func nextWeekday(ref time.Time, wd time.Weekday, strict bool) time.Time {
	delta := (int(wd) - int(ref.Weekday()) + 7) % 7
	if delta == 0 && strict {
		delta = 7
	}
	return ref.AddDate(0, 0, delta)
}

// titleCase capitalizes month names so the time package can parse lowercased input
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
