package usecase

import (
	"time"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/pkg/fuzzy"
)

// MatchPolicy decides when a candidate and an existing event are the same entry.
// A pair matches when the start times are close enough (same calendar day in Location
// when SameDay is set, or at most TimeTolerance apart) and the titles are at least
// TitleThreshold similar.
type MatchPolicy struct {
	SameDay        bool
	TimeTolerance  time.Duration
	TitleThreshold float64
	Location       *time.Location
}

// Action is what reconciliation decided to do with a candidate
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Decision is the outcome for one candidate. Event is what should be written: the
// candidate itself on create, the candidate merged over Match on update.
type Decision struct {
	Action    Action
	Candidate *domain.Event
	Match     *domain.Event
	Event     *domain.Event
	Reason    string
}

// Reconciler matches candidates against the known calendar entries. Entries written
// during a batch are committed back into the index, so a duplicate later in the same
// batch resolves to skip.
type Reconciler struct {
	policy MatchPolicy
	byDay  map[string][]*domain.Event
	now    func() time.Time
}

// NewReconciler indexes the existing events by the day of their MatchKey
func NewReconciler(policy MatchPolicy, existing []*domain.Event) *Reconciler {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	r := &Reconciler{
		policy: policy,
		byDay:  make(map[string][]*domain.Event),
		now:    time.Now,
	}
	for _, e := range existing {
		r.add(e)
	}
	return r
}

// Reconcile decides every candidate of a batch, assuming each create and update
// succeeds. It is the dry form of the Decide and Commit loop the fetch run performs.
func Reconcile(policy MatchPolicy, candidates, existing []*domain.Event) []Decision {
	r := NewReconciler(policy, existing)
	decisions := make([]Decision, 0, len(candidates))
	for _, c := range candidates {
		d := r.Decide(c)
		id := ""
		if d.Action == ActionCreate {
			id = "pending:" + c.Key().String()
		}
		r.Commit(d, id)
		decisions = append(decisions, d)
	}
	return decisions
}

// Decide matches one candidate. It does not change the index; call Commit once the
// decision has been applied to the calendar.
func (r *Reconciler) Decide(c *domain.Event) Decision {
	match := r.bestMatch(c)
	if match == nil {
		return Decision{Action: ActionCreate, Candidate: c, Event: c, Reason: "no matching event"}
	}

	merged := mergeInto(c, match)
	if !merged.DiffersFrom(match) {
		return Decision{Action: ActionSkip, Candidate: c, Match: match, Event: match, Reason: "already up to date"}
	}
	return Decision{Action: ActionUpdate, Candidate: c, Match: match, Event: merged, Reason: "details changed"}
}

// Commit records an applied decision. externalID is the id returned by the calendar
// for a create and is ignored otherwise.
func (r *Reconciler) Commit(d Decision, externalID string) {
	now := r.now()
	switch d.Action {
	case ActionCreate:
		e := d.Event.Clone()
		e.ExternalID = domain.StringPtr(externalID)
		e.SyncedAt = &now
		r.add(e)
	case ActionUpdate:
		r.remove(d.Match)
		e := d.Event.Clone()
		e.SyncedAt = &now
		r.add(e)
	}
}

func (r *Reconciler) add(e *domain.Event) {
	day := e.Key().Day(r.policy.Location)
	r.byDay[day] = append(r.byDay[day], e)
}

func (r *Reconciler) remove(e *domain.Event) {
	day := e.Key().Day(r.policy.Location)
	bucket := r.byDay[day]
	for i, existing := range bucket {
		if existing == e {
			r.byDay[day] = append(bucket[:i:i], bucket[i+1:]...)
			return
		}
	}
}

// bestMatch returns the matching event with the closest start, preferring the most
// recently synced one on a tie
func (r *Reconciler) bestMatch(c *domain.Event) *domain.Event {
	var best *domain.Event
	var bestDelta time.Duration
	for _, day := range r.candidateDays(c) {
		for _, e := range r.byDay[day] {
			if !r.matches(c, e) {
				continue
			}
			delta := absDuration(c.Key().Start.Sub(e.Key().Start))
			switch {
			case best == nil, delta < bestDelta:
				best, bestDelta = e, delta
			case delta == bestDelta && syncedAfter(e, best):
				best = e
			}
		}
	}
	return best
}

func (r *Reconciler) matches(c, e *domain.Event) bool {
	ck, ek := c.Key(), e.Key()
	sameDay := r.policy.SameDay && ck.Day(r.policy.Location) == ek.Day(r.policy.Location)
	if !sameDay && absDuration(ck.Start.Sub(ek.Start)) > r.policy.TimeTolerance {
		return false
	}
	return fuzzy.Similarity(c.Title, e.Title) >= r.policy.TitleThreshold
}

// candidateDays lists the index buckets that may hold a match for c
func (r *Reconciler) candidateDays(c *domain.Event) []string {
	loc := r.policy.Location
	start := c.Key().Start
	days := []string{start.In(loc).Format("2006-01-02")}
	if r.policy.TimeTolerance <= 0 {
		return days
	}
	seen := map[string]bool{days[0]: true}
	from := start.Add(-r.policy.TimeTolerance).In(loc)
	last := start.Add(r.policy.TimeTolerance).In(loc).Format("2006-01-02")
	// step by calendar day so short DST days are not skipped
	for d := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc); ; d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
		if day >= last {
			break
		}
	}
	return days
}

// mergeInto lays the candidate over the matched event. Details the candidate does not
// carry (no description, no location) keep their stored value, and action items are
// united so an announcement repeating an event does not drop earlier items.
func mergeInto(c, match *domain.Event) *domain.Event {
	merged := c.Clone()
	merged.ExternalID = match.ExternalID
	merged.SyncedAt = match.SyncedAt
	if merged.Description == "" {
		merged.Description = match.Description
	}
	if merged.Location == nil && match.Location != nil {
		merged.Location = domain.StringPtr(*match.Location)
	}
	// a single all-day mention of a timed event carries no time to update
	if c.AllDay && c.End == nil && !match.AllDay && sameDate(c.Start, match.Start) {
		merged.AllDay = false
		merged.Start = match.Start
		merged.End = nil
		if match.End != nil {
			merged.End = domain.TimePtr(*match.End)
		}
	}

	items := make([]*domain.ActionItem, 0, len(match.ActionItems)+len(c.ActionItems))
	byDesc := make(map[string]int)
	for _, item := range match.Clone().ActionItems {
		byDesc[fuzzy.Normalize(item.Description)] = len(items)
		items = append(items, item)
	}
	for _, item := range merged.ActionItems {
		key := fuzzy.Normalize(item.Description)
		if i, ok := byDesc[key]; ok {
			if item.Link == "" {
				item.Link = items[i].Link
			}
			if item.Due == nil {
				item.Due = items[i].Due
			}
			items[i] = item
			continue
		}
		byDesc[key] = len(items)
		items = append(items, item)
	}
	domain.LinkTo(items, merged)
	merged.ActionItems = items
	return merged
}

func sameDate(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func syncedAfter(a, b *domain.Event) bool {
	if a.SyncedAt == nil {
		return false
	}
	if b.SyncedAt == nil {
		return true
	}
	return a.SyncedAt.After(*b.SyncedAt)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
