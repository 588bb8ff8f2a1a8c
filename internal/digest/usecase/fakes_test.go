package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	eventdomain "github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/pkg/ai"
)

var errUnavailable = errors.New("service unavailable")

// fakeClassifier answers Classify from a map keyed by item text
type fakeClassifier struct {
	mu     sync.Mutex
	labels map[string]string
	errs   map[string]error
	calls  []ai.ClassifyRequest
}

func (f *fakeClassifier) Extract(ctx context.Context, req ai.ExtractRequest) ([]ai.ExtractedEvent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClassifier) Classify(ctx context.Context, req ai.ClassifyRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.Item]; ok {
		return "", err
	}
	if label, ok := f.labels[req.Item]; ok {
		return label, nil
	}
	return ai.LabelOptional, nil
}

type fakeReader struct {
	events []*eventdomain.Event
	err    error
	from   time.Time
	to     time.Time
}

func (f *fakeReader) FindCandidates(ctx context.Context, from, to time.Time) ([]*eventdomain.Event, error) {
	f.from, f.to = from, to
	return f.events, f.err
}

type fakeResolver struct {
	addrs []string
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context) ([]string, error) {
	f.calls++
	return f.addrs, f.err
}

type sentMail struct {
	to, subject, html, text string
}

type fakeMailer struct {
	failFor map[string]bool
	sent    []sentMail
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if f.failFor[to] {
		return errUnavailable
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, html: htmlBody, text: textBody})
	return nil
}

type fakeAnnouncer struct {
	titles []string
	err    error
}

func (f *fakeAnnouncer) Announce(ctx context.Context, title, body string, data map[string]string) error {
	f.titles = append(f.titles, title)
	return f.err
}
