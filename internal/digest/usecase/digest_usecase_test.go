package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	eventdomain "github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/internal/event/repository"
	"github.com/omnific9/SchoolCalEnricher/pkg/ai"
)

type digestFixture struct {
	reader    *fakeReader
	resolver  *fakeResolver
	mailer    *fakeMailer
	announcer *fakeAnnouncer
	runs      repository.RunRepository
	usecase   *digestUsecase
}

func newDigestFixture(t *testing.T, events ...*eventdomain.Event) *digestFixture {
	t.Helper()
	renderer, err := NewRenderer(time.UTC)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	f := &digestFixture{
		reader:    &fakeReader{events: events},
		resolver:  &fakeResolver{addrs: []string{"a@example.com", "b@example.com", "c@example.com"}},
		mailer:    &fakeMailer{failFor: map[string]bool{}},
		announcer: &fakeAnnouncer{},
		runs:      repository.NewMemoryRunRepository(),
	}
	oracle := &fakeClassifier{labels: map[string]string{"Sign permission slip": ai.LabelMustDo}}
	f.usecase = NewDigestUsecase(f.reader, newTestAggregator(oracle), renderer, f.resolver, f.mailer, f.announcer, f.runs, 7, zerolog.Nop()).(*digestUsecase)
	f.usecase.now = func() time.Time { return monday }
	return f
}

func fieldTrip() *eventdomain.Event {
	return &eventdomain.Event{
		Title:       "Field Trip",
		Start:       at(3, 1),
		ActionItems: []*eventdomain.ActionItem{{Description: "Sign permission slip"}},
	}
}

func TestDigestRunSendsToEveryRecipient(t *testing.T) {
	f := newDigestFixture(t, fieldTrip())

	res, err := f.usecase.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(f.mailer.sent) != 3 {
		t.Fatalf("sent %d mails, want 3", len(f.mailer.sent))
	}
	for _, m := range f.mailer.sent {
		if m.subject != "Weekly School Digest — October 19, 2026" {
			t.Errorf("subject = %q", m.subject)
		}
		if m.html == "" || m.text == "" {
			t.Errorf("mail to %s has an empty body", m.to)
		}
	}
	if !f.reader.from.Equal(monday) || !f.reader.to.Equal(monday.AddDate(0, 0, 7)) {
		t.Errorf("window = [%s, %s)", f.reader.from, f.reader.to)
	}
	s := res.Summary
	if s.Kind != eventdomain.RunKindDigest || s.Recipients != 3 || s.Sent != 3 || s.DigestItems != 1 {
		t.Errorf("summary = %+v", s)
	}
	if len(f.announcer.titles) != 1 {
		t.Errorf("announced %d times, want 1", len(f.announcer.titles))
	}

	stored, err := f.runs.FindByID(context.Background(), s.ID)
	if err != nil || stored == nil {
		t.Fatalf("run summary not recorded: %v", err)
	}
}

func TestDigestRunCountsSendFailures(t *testing.T) {
	f := newDigestFixture(t, fieldTrip())
	f.mailer.failFor["b@example.com"] = true

	res, err := f.usecase.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Summary.Sent != 2 || res.Summary.SendFailures != 1 {
		t.Errorf("sent/failures = %d/%d, want 2/1", res.Summary.Sent, res.Summary.SendFailures)
	}
	if len(res.Summary.Failures) != 1 || res.Summary.Failures[0].Stage != "send" {
		t.Errorf("failures = %+v", res.Summary.Failures)
	}
}

func TestDigestRunDryRun(t *testing.T) {
	f := newDigestFixture(t, fieldTrip())

	res, err := f.usecase.Run(context.Background(), RunOptions{DryRun: true, Days: 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(f.mailer.sent) != 0 || f.resolver.calls != 0 || len(f.announcer.titles) != 0 {
		t.Error("dry run must not resolve recipients, send or announce")
	}
	if res.Rendered == nil || res.Rendered.HTML == "" {
		t.Error("dry run should still render the digest")
	}
	if !f.reader.to.Equal(monday.AddDate(0, 0, 3)) {
		t.Errorf("window end = %s, want 3 days out", f.reader.to)
	}
}

func TestDigestRunEmptyWeekStillSends(t *testing.T) {
	f := newDigestFixture(t)

	res, err := f.usecase.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Summary.DigestEmpty || len(f.mailer.sent) != 3 {
		t.Errorf("empty digest: summary = %+v, sent = %d", res.Summary, len(f.mailer.sent))
	}
}

func TestDigestRunFailuresSendNothing(t *testing.T) {
	t.Run("calendar read", func(t *testing.T) {
		f := newDigestFixture(t, fieldTrip())
		f.reader.err = errUnavailable

		res, err := f.usecase.Run(context.Background(), RunOptions{})
		if !errors.Is(err, errUnavailable) {
			t.Fatalf("Run() error = %v, want %v", err, errUnavailable)
		}
		if len(f.mailer.sent) != 0 || res.Summary.Error == "" {
			t.Errorf("sent = %d, summary error = %q", len(f.mailer.sent), res.Summary.Error)
		}
	})

	t.Run("recipients", func(t *testing.T) {
		f := newDigestFixture(t, fieldTrip())
		f.resolver.addrs = nil

		if _, err := f.usecase.Run(context.Background(), RunOptions{}); !errors.Is(err, ErrNoRecipients) {
			t.Fatalf("Run() error = %v, want %v", err, ErrNoRecipients)
		}
		if len(f.mailer.sent) != 0 {
			t.Errorf("sent %d mails without recipients", len(f.mailer.sent))
		}
	})
}

func TestDigestRunAnnounceFailureIsNotFatal(t *testing.T) {
	f := newDigestFixture(t, fieldTrip())
	f.announcer.err = errUnavailable

	if _, err := f.usecase.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
