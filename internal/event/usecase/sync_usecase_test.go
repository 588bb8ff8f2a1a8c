package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/internal/event/repository"
	"github.com/omnific9/SchoolCalEnricher/pkg/ai"
)

type syncFixture struct {
	oracle   *fakeOracle
	calendar *fakeCalendar
	source   *fakeSource
	state    *fakeStateStore
	runs     repository.RunRepository
	uc       SyncUsecase
	loc      *time.Location
}

func newSyncFixture(t *testing.T) *syncFixture {
	loc := schoolLoc(t)
	f := &syncFixture{
		oracle:   newFakeOracle(),
		calendar: newFakeCalendar(),
		source:   &fakeSource{},
		state:    &fakeStateStore{},
		runs:     repository.NewMemoryRunRepository(),
		loc:      loc,
	}
	extractor := NewExtractor(f.oracle, ExtractorConfig{Location: loc, SkipMarkers: []string{"you signed up for"}}, zerolog.Nop())
	f.uc = NewSyncUsecase(f.source, extractor, f.calendar, f.state, f.runs, defaultPolicy(loc), zerolog.Nop())
	return f
}

// addEmail registers an email received minute minutes after 8:00 on Oct 19 and the
// events the oracle finds in it
func (f *syncFixture) addEmail(id string, minute int, events ...ai.ExtractedEvent) domain.RawEmail {
	email := domain.RawEmail{
		ID:         id,
		Subject:    "subject " + id,
		Body:       "body of " + id,
		ReceivedAt: time.Date(2026, 10, 19, 8, minute, 0, 0, f.loc),
	}
	f.source.emails = append(f.source.emails, email)
	f.oracle.events[email.Subject] = events
	return email
}

func event(title, date, clock, location string) ai.ExtractedEvent {
	return ai.ExtractedEvent{Title: title, StartDate: date, StartTime: clock, Location: location}
}

func TestRunOracleFailureIsolation(t *testing.T) {
	f := newSyncFixture(t)
	var last domain.RawEmail
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("m%d", i)
		last = f.addEmail(id, i, event(fmt.Sprintf("Class %d potluck", i), fmt.Sprintf("2026-10-%d", 20+i), "", ""))
	}
	f.oracle.errs["subject m4"] = errMalformed

	summary, err := f.uc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.EmailsSeen != 10 || summary.Created != 9 || summary.ExtractionFailures != 1 {
		t.Errorf("summary = seen %d created %d extraction failures %d", summary.EmailsSeen, summary.Created, summary.ExtractionFailures)
	}
	if len(f.calendar.all()) != 9 {
		t.Errorf("calendar holds %d events, want 9", len(f.calendar.all()))
	}
	if !f.state.state.Watermark.Equal(last.ReceivedAt) {
		t.Errorf("watermark = %v, want %v", f.state.state.Watermark, last.ReceivedAt)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	f.addEmail("m1", 0, event("PTA meeting", "2026-10-20", "18:00", "Library"))
	f.addEmail("m2", 5, event("Book Fair", "2026-10-22", "", "Gym"))

	if _, err := f.uc.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}
	if f.calendar.creates != 2 {
		t.Fatalf("first run created %d events", f.calendar.creates)
	}

	// replay the same mailbox from scratch
	f.state.state = domain.SyncState{}
	summary, err := f.uc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if f.calendar.creates != 2 || f.calendar.updates != 0 {
		t.Errorf("second run mutated the calendar: creates=%d updates=%d", f.calendar.creates, f.calendar.updates)
	}
	if summary.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", summary.Skipped)
	}
}

func TestRunDuplicateAcrossEmails(t *testing.T) {
	f := newSyncFixture(t)
	f.addEmail("office", 0, event("Halloween Parade", "2026-10-30", "17:00", "Blacktop"))
	f.addEmail("pta", 1, event("Halloween Parade", "2026-10-30", "17:00", "Blacktop"))

	summary, err := f.uc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if f.calendar.creates != 1 || summary.Skipped != 1 {
		t.Errorf("creates=%d skipped=%d, want 1 and 1", f.calendar.creates, summary.Skipped)
	}
}

func TestRunUpdateDetection(t *testing.T) {
	f := newSyncFixture(t)
	f.addEmail("m1", 0, event("PTA meeting", "2026-10-20", "18:00", "Library"))
	if _, err := f.uc.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}

	f.addEmail("m2", 30, event("PTA meeting", "2026-10-20", "18:00", "Gym"))
	summary, err := f.uc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if f.calendar.updates != 1 || f.calendar.creates != 1 || summary.Updated != 1 {
		t.Errorf("creates=%d updates=%d", f.calendar.creates, f.calendar.updates)
	}
	if got := f.calendar.events["evt-1"].LocationValue(); got != "Gym" {
		t.Errorf("location = %q", got)
	}
	// only the new email was fetched
	if len(f.source.calls) != 2 || f.source.calls[1].IsZero() {
		t.Errorf("second run should fetch after the stored watermark, calls=%v", f.source.calls)
	}
}

func TestRunPartialFailureHoldsWatermark(t *testing.T) {
	f := newSyncFixture(t)
	m1 := f.addEmail("m1", 0, event("Picture Day", "2026-10-23", "", ""))
	f.addEmail("m2", 1, event("Flu clinic", "2026-10-24", "", ""), event("Bake sale", "2026-10-24", "", ""))
	f.addEmail("m3", 2, event("Spirit Week", "2026-10-26", "", ""))
	f.calendar.failOn = func(e *domain.Event) error {
		if e.Title == "Flu clinic" {
			return errors.New("503 backend error")
		}
		return nil
	}

	summary, err := f.uc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Created != 3 || summary.Failed != 1 || summary.EmailsFailed != 1 {
		t.Errorf("created=%d failed=%d emailsFailed=%d", summary.Created, summary.Failed, summary.EmailsFailed)
	}
	if !f.state.state.Watermark.Equal(m1.ReceivedAt) {
		t.Errorf("watermark = %v, want %v", f.state.state.Watermark, m1.ReceivedAt)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].EmailID != "m2" || summary.Failures[0].Stage != StageCreate {
		t.Errorf("failures = %+v", summary.Failures)
	}

	// the retry picks the failed email up again without duplicating its sibling
	f.calendar.failOn = nil
	summary, err = f.uc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 1 || summary.Skipped != 2 {
		t.Errorf("retry created=%d skipped=%d, want 1 and 2", summary.Created, summary.Skipped)
	}
	if len(f.calendar.all()) != 4 {
		t.Errorf("calendar holds %d events, want 4", len(f.calendar.all()))
	}
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	f := newSyncFixture(t)
	f.source.err = errors.New("imap: connection refused")

	summary, err := f.uc.Run(context.Background(), RunOptions{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.state.saves != 0 {
		t.Error("watermark must not move when the fetch fails")
	}
	if summary == nil || summary.Error == "" {
		t.Errorf("summary should carry the error: %+v", summary)
	}
	runs, _ := f.runs.List(context.Background(), domain.RunKindFetch, 10)
	if len(runs) != 1 {
		t.Errorf("failed run should be recorded, got %d runs", len(runs))
	}
}

func TestRunCalendarLookupFailureIsFatal(t *testing.T) {
	f := newSyncFixture(t)
	f.addEmail("m1", 0, event("Picture Day", "2026-10-23", "", ""))
	f.calendar.findErr = errors.New("calendar unavailable")

	if _, err := f.uc.Run(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected an error")
	}
	if f.state.saves != 0 || f.calendar.creates != 0 {
		t.Errorf("saves=%d creates=%d, want none", f.state.saves, f.calendar.creates)
	}
}

func TestRunDryRun(t *testing.T) {
	f := newSyncFixture(t)
	f.addEmail("m1", 0, event("Picture Day", "2026-10-23", "", ""))
	f.addEmail("m2", 1, event("Picture Day", "2026-10-23", "", ""))

	summary, err := f.uc.Run(context.Background(), RunOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 1 || summary.Skipped != 1 {
		t.Errorf("created=%d skipped=%d", summary.Created, summary.Skipped)
	}
	if f.calendar.creates != 0 || f.state.saves != 0 {
		t.Error("dry run must not write")
	}
}

func TestRunDiscardAndSkipDoNotBlockWatermark(t *testing.T) {
	f := newSyncFixture(t)
	f.addEmail("m1", 0, ai.ExtractedEvent{Title: "Concert", StartDate: "2026-10-22", StartTime: "19:00", EndTime: "18:00"})
	m2 := f.addEmail("m2", 1)
	f.source.emails[1].Body = "You signed up for: snack duty"

	summary, err := f.uc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Discarded != 1 || summary.EmailsSkipped != 1 || summary.Created != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if !f.state.state.Watermark.Equal(m2.ReceivedAt) {
		t.Errorf("watermark = %v, want %v", f.state.state.Watermark, m2.ReceivedAt)
	}
}
