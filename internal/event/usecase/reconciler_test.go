package usecase

import (
	"testing"
	"time"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

func defaultPolicy(loc *time.Location) MatchPolicy {
	return MatchPolicy{SameDay: true, TitleThreshold: 0.6, Location: loc}
}

func synced(id string, e *domain.Event, at time.Time) *domain.Event {
	c := e.Clone()
	c.ExternalID = domain.StringPtr(id)
	c.SyncedAt = domain.TimePtr(at)
	return c
}

func TestReconcileDecisionTable(t *testing.T) {
	loc := schoolLoc(t)
	start := time.Date(2026, 10, 20, 18, 0, 0, 0, loc)
	syncedAt := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	existing := synced("evt1", &domain.Event{
		Title:       "PTA Meeting",
		Start:       start,
		Location:    domain.StringPtr("Library"),
		Description: "Monthly meeting",
	}, syncedAt)

	tests := []struct {
		name      string
		candidate *domain.Event
		want      Action
	}{
		{
			name:      "no match on another day",
			candidate: &domain.Event{Title: "PTA Meeting", Start: start.AddDate(0, 0, 1), Description: "Monthly meeting"},
			want:      ActionCreate,
		},
		{
			name:      "no match for unrelated title",
			candidate: &domain.Event{Title: "Science fair", Start: start},
			want:      ActionCreate,
		},
		{
			name:      "identical",
			candidate: &domain.Event{Title: "PTA Meeting", Start: start, Location: domain.StringPtr("Library"), Description: "Monthly meeting"},
			want:      ActionSkip,
		},
		{
			name:      "similar title same details",
			candidate: &domain.Event{Title: "pta meeting", Start: start, Location: domain.StringPtr(" Library "), Description: "Monthly  meeting"},
			want:      ActionSkip,
		},
		{
			name:      "candidate without optional details",
			candidate: &domain.Event{Title: "PTA Meeting", Start: start},
			want:      ActionSkip,
		},
		{
			name:      "changed location",
			candidate: &domain.Event{Title: "PTA Meeting", Start: start, Location: domain.StringPtr("Gym"), Description: "Monthly meeting"},
			want:      ActionUpdate,
		},
		{
			name:      "changed time same day",
			candidate: &domain.Event{Title: "PTA Meeting", Start: start.Add(30 * time.Minute), Location: domain.StringPtr("Library"), Description: "Monthly meeting"},
			want:      ActionUpdate,
		},
		{
			name:      "all-day mention of the timed event",
			candidate: &domain.Event{Title: "PTA Meeting", Start: time.Date(2026, 10, 20, 0, 0, 0, 0, loc), AllDay: true},
			want:      ActionSkip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconciler(defaultPolicy(loc), []*domain.Event{existing})
			d := r.Decide(tt.candidate)
			if d.Action != tt.want {
				t.Fatalf("Action = %s (%s), want %s", d.Action, d.Reason, tt.want)
			}
			if tt.want == ActionUpdate {
				if d.Match != existing || d.Event.ExternalIDValue() != "evt1" {
					t.Errorf("update should reuse evt1, got match=%v event id=%q", d.Match, d.Event.ExternalIDValue())
				}
			}
		})
	}
}

func TestReconcileUpdateKeepsStoredDetails(t *testing.T) {
	loc := schoolLoc(t)
	start := time.Date(2026, 10, 23, 9, 0, 0, 0, loc)
	due := time.Date(2026, 10, 20, 0, 0, 0, 0, loc)
	existing := synced("evt1", &domain.Event{
		Title:       "Field Trip",
		Start:       start,
		Location:    domain.StringPtr("Zoo"),
		Description: "Second grade visits the zoo.",
		ActionItems: []*domain.ActionItem{{Description: "Sign permission slip", Link: "https://forms.example/slip", Due: &due}},
	}, time.Now())

	candidate := &domain.Event{
		Title:       "Field Trip",
		Start:       start,
		Location:    domain.StringPtr("Aquarium"),
		ActionItems: []*domain.ActionItem{{Description: "Pack a lunch"}, {Description: "sign permission slip"}},
	}

	d := NewReconciler(defaultPolicy(loc), []*domain.Event{existing}).Decide(candidate)

	if d.Action != ActionUpdate {
		t.Fatalf("Action = %s", d.Action)
	}
	if d.Event.Description != "Second grade visits the zoo." {
		t.Errorf("description lost: %q", d.Event.Description)
	}
	if len(d.Event.ActionItems) != 2 {
		t.Fatalf("got %d action items, want 2", len(d.Event.ActionItems))
	}
	slip := d.Event.ActionItems[0]
	if slip.Link != "https://forms.example/slip" || slip.Due == nil || !slip.Due.Equal(due) {
		t.Errorf("merged item lost its link or due date: %+v", slip)
	}
	if d.Event.ActionItems[1].Description != "Pack a lunch" {
		t.Errorf("new item missing: %+v", d.Event.ActionItems[1])
	}
}

func TestReconcileDuplicateSuppression(t *testing.T) {
	loc := schoolLoc(t)
	start := time.Date(2026, 10, 30, 17, 0, 0, 0, loc)
	fromOffice := &domain.Event{Title: "Halloween Parade", Start: start, Location: domain.StringPtr("Blacktop"), SourceEmailID: "a"}
	fromPTA := &domain.Event{Title: "Halloween Parade", Start: start, Location: domain.StringPtr("Blacktop"), SourceEmailID: "b"}

	decisions := Reconcile(defaultPolicy(loc), []*domain.Event{fromOffice, fromPTA}, nil)

	if decisions[0].Action != ActionCreate || decisions[1].Action != ActionSkip {
		t.Errorf("actions = %s, %s; want create, skip", decisions[0].Action, decisions[1].Action)
	}
}

func TestReconcileIdempotence(t *testing.T) {
	loc := schoolLoc(t)
	day := func(d, h int) time.Time { return time.Date(2026, 10, d, h, 0, 0, 0, loc) }
	existing := []*domain.Event{
		synced("evt1", &domain.Event{Title: "PTA Meeting", Start: day(20, 18), Location: domain.StringPtr("Library")}, day(1, 0)),
		synced("evt2", &domain.Event{Title: "Book Fair", Start: day(22, 0), AllDay: true}, day(1, 0)),
	}
	batch := []*domain.Event{
		{Title: "PTA Meeting", Start: day(20, 18), Location: domain.StringPtr("Gym")},
		{Title: "Book Fair", Start: day(22, 0), AllDay: true},
		{Title: "Picture Day", Start: day(23, 0), AllDay: true},
		{Title: "Picture Day", Start: day(23, 0), AllDay: true},
	}

	// apply the first pass to a copy of the existing state
	state := map[string]*domain.Event{}
	for _, e := range existing {
		state[e.ExternalIDValue()] = e.Clone()
	}
	mutations := 0
	for i, d := range Reconcile(defaultPolicy(loc), batch, existing) {
		switch d.Action {
		case ActionCreate:
			mutations++
			state["new"+string(rune('a'+i))] = synced("new"+string(rune('a'+i)), d.Event, day(19, 0))
		case ActionUpdate:
			mutations++
			state[d.Match.ExternalIDValue()] = d.Event.Clone()
		}
	}
	if mutations != 2 {
		t.Fatalf("first pass made %d mutations, want 2 (one update, one create)", mutations)
	}

	var next []*domain.Event
	for _, e := range state {
		next = append(next, e)
	}
	for _, d := range Reconcile(defaultPolicy(loc), batch, next) {
		if d.Action != ActionSkip {
			t.Errorf("second pass: %q -> %s (%s), want skip", d.Candidate.Title, d.Action, d.Reason)
		}
	}
}

func TestReconcileTieBreak(t *testing.T) {
	loc := schoolLoc(t)
	start := time.Date(2026, 10, 20, 18, 0, 0, 0, loc)
	old := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	early := synced("early", &domain.Event{Title: "Open House", Start: start.Add(-2 * time.Hour)}, recent)
	close1 := synced("close-old", &domain.Event{Title: "Open House", Start: start.Add(30 * time.Minute)}, old)
	close2 := synced("close-new", &domain.Event{Title: "Open House", Start: start.Add(-30 * time.Minute)}, recent)

	d := NewReconciler(defaultPolicy(loc), []*domain.Event{early, close1, close2}).
		Decide(&domain.Event{Title: "Open House", Start: start})

	if d.Match == nil || d.Match.ExternalIDValue() != "close-new" {
		t.Errorf("matched %v, want the closest and most recently synced event", d.Match)
	}
}

func TestReconcilePolicyBoundaries(t *testing.T) {
	loc := schoolLoc(t)
	start := time.Date(2026, 10, 20, 23, 30, 0, 0, loc)
	existing := synced("evt1", &domain.Event{Title: "Spirit Night", Start: start}, time.Now())
	nextDay := &domain.Event{Title: "Spirit Night", Start: start.Add(time.Hour)}
	renamed := &domain.Event{Title: "Spirit Night at Pizza Place", Start: start}
	different := &domain.Event{Title: "Spirt Nite", Start: start}

	tests := []struct {
		name      string
		policy    MatchPolicy
		candidate *domain.Event
		matched   bool
	}{
		{"same day only, next day", MatchPolicy{SameDay: true, TitleThreshold: 0.6}, nextDay, false},
		{"tolerance covers the hour", MatchPolicy{SameDay: true, TimeTolerance: time.Hour, TitleThreshold: 0.6}, nextDay, true},
		{"tolerance just short", MatchPolicy{TimeTolerance: 59 * time.Minute, TitleThreshold: 0.6}, nextDay, false},
		{"containment scores one", MatchPolicy{SameDay: true, TitleThreshold: 1}, renamed, true},
		{"typos below strict threshold", MatchPolicy{SameDay: true, TitleThreshold: 0.95}, different, false},
		{"typos above loose threshold", MatchPolicy{SameDay: true, TitleThreshold: 0.5}, different, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.policy.Location = loc
			d := NewReconciler(tt.policy, []*domain.Event{existing}).Decide(tt.candidate)
			if got := d.Match != nil; got != tt.matched {
				t.Errorf("matched = %v, want %v", got, tt.matched)
			}
		})
	}
}

func TestCommitCreateMakesBatchDuplicatesSkip(t *testing.T) {
	loc := schoolLoc(t)
	r := NewReconciler(defaultPolicy(loc), nil)
	c := &domain.Event{Title: "Walkathon", Start: time.Date(2026, 11, 6, 0, 0, 0, 0, loc), AllDay: true}

	first := r.Decide(c)
	if first.Action != ActionCreate {
		t.Fatalf("first = %s", first.Action)
	}
	// not committed: the write failed, so a duplicate must still be created
	if again := r.Decide(c.Clone()); again.Action != ActionCreate {
		t.Errorf("uncommitted create should not suppress a retry, got %s", again.Action)
	}
	r.Commit(first, "evt9")
	if again := r.Decide(c.Clone()); again.Action != ActionSkip || again.Match.ExternalIDValue() != "evt9" {
		t.Errorf("after commit got %s", again.Action)
	}
}

func TestCandidateDaysAcrossSpringForward(t *testing.T) {
	loc := schoolLoc(t)
	// 2026-03-08 is 23 hours long in Los Angeles
	candidate := &domain.Event{Title: "Science Fair", Start: time.Date(2026, 3, 9, 0, 30, 0, 0, loc)}
	existing := synced("evt1", &domain.Event{Title: "Science Fair", Start: time.Date(2026, 3, 8, 12, 0, 0, 0, loc)}, time.Now())
	policy := MatchPolicy{TimeTolerance: 24 * time.Hour, TitleThreshold: 0.6, Location: loc}

	r := NewReconciler(policy, []*domain.Event{existing})
	days := r.candidateDays(candidate)
	want := map[string]bool{"2026-03-07": true, "2026-03-08": true, "2026-03-09": true, "2026-03-10": true}
	if len(days) != len(want) {
		t.Errorf("candidateDays = %v, want %d days", days, len(want))
	}
	for _, day := range days {
		if !want[day] {
			t.Errorf("unexpected day %s in %v", day, days)
		}
	}

	if d := r.Decide(candidate); d.Action != ActionUpdate || d.Match == nil {
		t.Errorf("Decide = %s, want an update of the event on the short day", d.Action)
	}
}
