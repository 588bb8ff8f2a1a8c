package imap

import (
	"context"
	"fmt"
	"sort"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// Config holds the mailbox connection settings
type Config struct {
	Addr     string // host:port, implicit TLS
	Username string
	Password string
	Mailbox  string
	From     string        // sender filter, e.g. "@school.edu"
	Lookback time.Duration // window searched when there is no watermark yet
	Timeout  time.Duration
}

// Source reads school notification emails over IMAP. It opens the mailbox read-only
// and fetches bodies with BODY.PEEK so flags on the server never change.
type Source struct {
	cfg  Config
	log  zerolog.Logger
	dial func(addr string) (*client.Client, error)
	now  func() time.Time
}

// NewSource creates an IMAP email source
func NewSource(cfg Config, log zerolog.Logger) *Source {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	return &Source{
		cfg:  cfg,
		log:  log,
		dial: func(addr string) (*client.Client, error) { return client.DialTLS(addr, nil) },
		now:  time.Now,
	}
}

// FetchSince returns the emails from the configured sender received strictly after
// watermark, oldest first
func (s *Source) FetchSince(ctx context.Context, watermark time.Time) ([]domain.RawEmail, error) {
	c, err := s.dial(s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", s.cfg.Addr, err)
	}
	c.Timeout = s.cfg.Timeout

	// go-imap v1 has no context support: drop the connection when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()
	defer func() { _ = c.Logout() }()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login failed (use an app password): %w", err)
	}

	// readOnly=true issues EXAMINE
	if _, err := c.Select(s.cfg.Mailbox, true); err != nil {
		return nil, fmt.Errorf("imap examine %s: %w", s.cfg.Mailbox, err)
	}

	criteria := goimap.NewSearchCriteria()
	if s.cfg.From != "" {
		criteria.Header.Add("From", s.cfg.From)
	}
	criteria.Since = s.searchSince(watermark)

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	s.log.Debug().Int("count", len(uids)).Time("since", criteria.Since).Msg("imap search complete")
	if len(uids) == 0 {
		return nil, ctx.Err()
	}

	seqset := new(goimap.SeqSet)
	seqset.AddNum(uids...)
	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{goimap.FetchUid, goimap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *goimap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	emails, collectErr := collect(messages, section, watermark)
	if err := <-done; err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	if collectErr != nil {
		return nil, collectErr
	}

	SortChronological(emails)
	return emails, nil
}

// collect parses the fetched messages received after watermark. A message that cannot
// be read fails the whole fetch, so the watermark never moves past it. The channel is
// always drained so the fetch command can complete.
func collect(messages <-chan *goimap.Message, section *goimap.BodySectionName, watermark time.Time) ([]domain.RawEmail, error) {
	var emails []domain.RawEmail
	var firstErr error
	for msg := range messages {
		if firstErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			firstErr = fmt.Errorf("imap uid %d: server returned no body", msg.Uid)
			continue
		}
		email, err := ParseMessage(body, fmt.Sprintf("imap-uid-%d", msg.Uid), msg.InternalDate)
		if err != nil {
			firstErr = fmt.Errorf("imap uid %d: %w", msg.Uid, err)
			continue
		}
		if !email.ReceivedAt.After(watermark) {
			continue
		}
		emails = append(emails, email)
	}
	return emails, firstErr
}

// searchSince converts the watermark to the day granularity of IMAP SINCE. The server
// compares dates in its own zone, so one extra day is searched and post-filtered.
func (s *Source) searchSince(watermark time.Time) time.Time {
	since := watermark
	if since.IsZero() {
		lookback := s.cfg.Lookback
		if lookback == 0 {
			lookback = 30 * 24 * time.Hour
		}
		since = s.now().Add(-lookback)
	}
	y, m, d := since.Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, since.Location())
}

// SortChronological orders emails oldest first, breaking ties by id
func SortChronological(emails []domain.RawEmail) {
	sort.SliceStable(emails, func(i, j int) bool {
		if emails[i].ReceivedAt.Equal(emails[j].ReceivedAt) {
			return emails[i].ID < emails[j].ID
		}
		return emails[i].ReceivedAt.Before(emails[j].ReceivedAt)
	})
}
