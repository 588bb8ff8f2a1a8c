package calendar

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

const (
	dateLayout     = "2006-01-02"
	dueLayout      = "2006-01-02 15:04"
	actionsHeading = "Parent action items:"

	propSourceEmail = "schoolcalSourceEmailId"
)

// actionLine matches "  - <action> [due <date>] (link: <link>)" with optional due and
// link. The older ": <url>" link suffix is still read.
var actionLine = regexp.MustCompile(`^\s*-\s+(.*?)(?:\s+\[due (\d{4}-\d{2}-\d{2}(?: \d{2}:\d{2})?)\])?(?:\s+\(link: (.+)\)|:\s+(https?://\S+))?\s*$`)

// Codec maps events to and from Google Calendar resources in the school time zone
type Codec struct {
	loc *time.Location
}

// NewCodec creates a codec for the given zone
func NewCodec(loc *time.Location) Codec {
	if loc == nil {
		loc = time.UTC
	}
	return Codec{loc: loc}
}

// ToGoogle builds the Calendar resource for e. All-day events use an exclusive end date.
func (c Codec) ToGoogle(e *domain.Event) *gcal.Event {
	out := &gcal.Event{
		Summary:     e.Title,
		Description: c.encodeDescription(e.Description, e.ActionItems),
		Location:    e.LocationValue(),
	}
	if e.SourceEmailID != "" {
		out.ExtendedProperties = &gcal.EventExtendedProperties{
			Private: map[string]string{propSourceEmail: e.SourceEmailID},
		}
	}

	if e.AllDay {
		start := e.Start.In(c.loc)
		end := e.EffectiveEnd().In(c.loc)
		out.Start = &gcal.EventDateTime{Date: start.Format(dateLayout)}
		out.End = &gcal.EventDateTime{Date: end.AddDate(0, 0, 1).Format(dateLayout)}
		return out
	}

	tz := c.loc.String()
	out.Start = &gcal.EventDateTime{DateTime: e.Start.In(c.loc).Format(time.RFC3339), TimeZone: tz}
	out.End = &gcal.EventDateTime{DateTime: e.EffectiveEnd().In(c.loc).Format(time.RFC3339), TimeZone: tz}
	return out
}

// FromGoogle converts a Calendar resource into a synced Event
func (c Codec) FromGoogle(item *gcal.Event) (*domain.Event, error) {
	if item.Start == nil {
		return nil, fmt.Errorf("event %s has no start", item.Id)
	}

	e := &domain.Event{
		Title:      item.Summary,
		ExternalID: domain.StringPtr(item.Id),
	}
	if item.Location != "" {
		e.Location = domain.StringPtr(item.Location)
	}
	e.Description, e.ActionItems = c.decodeDescription(item.Description)
	if item.ExtendedProperties != nil {
		e.SourceEmailID = item.ExtendedProperties.Private[propSourceEmail]
	}
	if item.Updated != "" {
		if updated, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			e.SyncedAt = &updated
		}
	}

	if item.Start.Date != "" {
		e.AllDay = true
		start, err := time.ParseInLocation(dateLayout, item.Start.Date, c.loc)
		if err != nil {
			return nil, fmt.Errorf("event %s: bad start date: %w", item.Id, err)
		}
		e.Start = start
		if item.End != nil && item.End.Date != "" {
			exclusive, err := time.ParseInLocation(dateLayout, item.End.Date, c.loc)
			if err != nil {
				return nil, fmt.Errorf("event %s: bad end date: %w", item.Id, err)
			}
			end := exclusive.AddDate(0, 0, -1)
			if end.Before(start) {
				end = start
			}
			e.End = &end
		}
	} else {
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return nil, fmt.Errorf("event %s: bad start time: %w", item.Id, err)
		}
		e.Start = start.In(c.loc)
		if item.End != nil && item.End.DateTime != "" {
			end, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				return nil, fmt.Errorf("event %s: bad end time: %w", item.Id, err)
			}
			end = end.In(c.loc)
			e.End = &end
		}
	}

	domain.LinkTo(e.ActionItems, e)
	return e, nil
}

func (c Codec) encodeDescription(description string, items []*domain.ActionItem) string {
	description = strings.TrimSpace(description)
	if len(items) == 0 {
		return description
	}

	var b strings.Builder
	if description != "" {
		b.WriteString(description)
		b.WriteString("\n\n")
	}
	b.WriteString(actionsHeading)
	for _, item := range items {
		b.WriteString("\n  - ")
		b.WriteString(singleLine(item.Description))
		if item.Due != nil {
			due := item.Due.In(c.loc)
			if due.Hour() == 0 && due.Minute() == 0 {
				fmt.Fprintf(&b, " [due %s]", due.Format(dateLayout))
			} else {
				fmt.Fprintf(&b, " [due %s]", due.Format(dueLayout))
			}
		}
		if link := singleLine(item.Link); link != "" {
			fmt.Fprintf(&b, " (link: %s)", link)
		}
	}
	return b.String()
}

// decodeDescription splits the free text from the action item block. Lines that do not
// look like action items stay in the description.
func (c Codec) decodeDescription(raw string) (string, []*domain.ActionItem) {
	idx := strings.Index(raw, actionsHeading)
	if idx < 0 || (idx > 0 && raw[idx-1] != '\n') {
		return strings.TrimSpace(raw), nil
	}

	description := strings.TrimSpace(raw[:idx])
	var items []*domain.ActionItem
	var rest []string
	for _, line := range strings.Split(raw[idx+len(actionsHeading):], "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := actionLine.FindStringSubmatch(line)
		if m == nil {
			rest = append(rest, strings.TrimSpace(line))
			continue
		}
		link := m[3]
		if link == "" {
			link = m[4]
		}
		item := &domain.ActionItem{Description: strings.TrimSpace(m[1]), Link: strings.TrimSpace(link)}
		if m[2] != "" {
			layout := dateLayout
			if len(m[2]) > len(dateLayout) {
				layout = dueLayout
			}
			if due, err := time.ParseInLocation(layout, m[2], c.loc); err == nil {
				item.Due = &due
			}
		}
		items = append(items, item)
	}
	if len(rest) > 0 {
		description = strings.TrimSpace(description + "\n" + strings.Join(rest, "\n"))
	}
	return description, items
}

// singleLine collapses whitespace so one item always encodes to one line
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
