package imap

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/pkg/htmltext"
)

// ParseMessage turns an RFC 822 message into a RawEmail. text/plain is preferred,
// text/html is converted to text when no plain part exists. internalDate is the
// server receive time and wins over the Date header when set.
func ParseMessage(r io.Reader, fallbackID string, internalDate time.Time) (domain.RawEmail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return domain.RawEmail{}, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	email := domain.RawEmail{ID: fallbackID, ReceivedAt: internalDate}

	if id, err := mr.Header.MessageID(); err == nil && id != "" {
		email.ID = id
	}
	if subject, err := mr.Header.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = mr.Header.Get("Subject")
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		email.Sender = from[0].String()
	} else {
		email.Sender = mr.Header.Get("From")
	}
	if email.ReceivedAt.IsZero() {
		if date, err := mr.Header.Date(); err == nil {
			email.ReceivedAt = date
		}
	}
	if email.Subject == "" {
		email.Subject = "(no subject)"
	}

	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return email, fmt.Errorf("failed to read part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue // attachment
		}
		contentType, _, _ := h.ContentType()
		data, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch {
		case contentType == "text/plain" && plain == "":
			plain = string(data)
		case contentType == "text/html" && html == "":
			html = string(data)
		}
	}

	switch {
	case strings.TrimSpace(plain) != "":
		email.Body = plain
	case html != "":
		email.Body = htmltext.ToText(html)
	}
	return email, nil
}
