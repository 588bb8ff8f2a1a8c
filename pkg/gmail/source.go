package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/pkg/htmltext"
)

const user = "me"

// Source reads school notification emails through the Gmail API. It only lists and
// gets messages, so labels and read state are left untouched.
type Source struct {
	srv      *gmail.Service
	from     string
	lookback time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewSource creates a Gmail email source using an authorized HTTP client
func NewSource(ctx context.Context, client *http.Client, from string, lookback time.Duration, log zerolog.Logger, opts ...option.ClientOption) (*Source, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	if lookback == 0 {
		lookback = 30 * 24 * time.Hour
	}
	return &Source{srv: srv, from: from, lookback: lookback, log: log, now: time.Now}, nil
}

// Query builds the Gmail search query for messages after the watermark
func (s *Source) Query(watermark time.Time) string {
	since := watermark
	if since.IsZero() {
		since = s.now().Add(-s.lookback)
	}
	var q []string
	if s.from != "" {
		q = append(q, "from:"+s.from)
	}
	// after: has second granularity and is exclusive, step back one second
	q = append(q, fmt.Sprintf("after:%d", since.Unix()-1))
	return strings.Join(q, " ")
}

// FetchSince returns the matching messages received strictly after watermark, oldest first
func (s *Source) FetchSince(ctx context.Context, watermark time.Time) ([]domain.RawEmail, error) {
	var ids []string
	err := s.srv.Users.Messages.List(user).Q(s.Query(watermark)).MaxResults(500).
		Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
			for _, m := range resp.Messages {
				ids = append(ids, m.Id)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %w", err)
	}

	type emailResult struct {
		email domain.RawEmail
		err   error
	}
	results := make([]emailResult, len(ids))

	// Fetch in parallel (with reasonable concurrency limit)
	semaphore := make(chan struct{}, 10)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			msg, err := s.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
			if err != nil {
				results[i] = emailResult{err: err}
				return
			}
			results[i] = emailResult{email: convertMessage(msg)}
		}(i, id)
	}
	wg.Wait()

	var emails []domain.RawEmail
	for i, r := range results {
		if r.err != nil {
			// A message we cannot read would otherwise be skipped past by the watermark
			return nil, fmt.Errorf("unable to get message %s: %w", ids[i], r.err)
		}
		if r.email.ReceivedAt.After(watermark) {
			emails = append(emails, r.email)
		}
	}

	sort.SliceStable(emails, func(i, j int) bool {
		if emails[i].ReceivedAt.Equal(emails[j].ReceivedAt) {
			return emails[i].ID < emails[j].ID
		}
		return emails[i].ReceivedAt.Before(emails[j].ReceivedAt)
	})
	s.log.Debug().Int("count", len(emails)).Msg("gmail fetch complete")
	return emails, nil
}

// Watch sets up push notifications for the mailbox on a Pub/Sub topic
func (s *Source) Watch(ctx context.Context, topicName string) (uint64, error) {
	// Only one push client is allowed per mailbox
	_ = s.srv.Users.Stop(user).Context(ctx).Do()

	resp, err := s.srv.Users.Watch(user, &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to watch mailbox: %w", err)
	}
	s.log.Info().Str("topic", topicName).Uint64("history_id", resp.HistoryId).
		Time("expires", time.UnixMilli(resp.Expiration)).Msg("gmail watch started")
	return resp.HistoryId, nil
}

// Stop stops push notifications for the mailbox
func (s *Source) Stop(ctx context.Context) error {
	if err := s.srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

// Helper functions

func convertMessage(msg *gmail.Message) domain.RawEmail {
	email := domain.RawEmail{
		ID:         msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload == nil {
		return email
	}
	email.Subject = getHeader(msg.Payload.Headers, "Subject")
	email.Sender = getHeader(msg.Payload.Headers, "From")
	if email.Subject == "" {
		email.Subject = "(no subject)"
	}

	plain, html := getEmailBody(msg.Payload)
	if strings.TrimSpace(plain) != "" {
		email.Body = plain
	} else if html != "" {
		email.Body = htmltext.ToText(html)
	}
	return email
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getEmailBody returns the first text/plain and text/html bodies found
func getEmailBody(payload *gmail.MessagePart) (plain, html string) {
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
			data, err := base64.URLEncoding.DecodeString(part.Body.Data)
			if err != nil {
				data, err = base64.RawURLEncoding.DecodeString(part.Body.Data)
			}
			if err == nil {
				switch part.MimeType {
				case "text/plain":
					if plain == "" {
						plain = string(data)
					}
				case "text/html":
					if html == "" {
						html = string(data)
					}
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return plain, html
}
