package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

// Config holds the SMTP submission settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// Mailer sends multipart digest emails over implicit TLS (SMTPS)
type Mailer struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

// New creates a new Mailer
func New(cfg Config, log zerolog.Logger) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FromName == "" {
		cfg.FromName = "School Digest"
	}
	return &Mailer{cfg: cfg, log: log, now: time.Now}
}

// Send delivers one message to one recipient. Each call opens its own session so a
// failure for one recipient does not affect the next.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := m.compose(to, subject, htmlBody, textBody)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	c, err := smtp.DialTLS(addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer c.Close()
	c.CommandTimeout = m.cfg.Timeout
	c.SubmissionTimeout = m.cfg.Timeout

	if m.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}
	if err := c.SendMail(m.cfg.From, []string{to}, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("failed to send to %s: %w", to, err)
	}
	if err := c.Quit(); err != nil {
		m.log.Debug().Err(err).Msg("smtp quit failed")
	}
	return nil
}

// compose builds a multipart/alternative message with a plain text and an HTML part
func (m *Mailer) compose(to, subject, htmlBody, textBody string) ([]byte, error) {
	var h mail.Header
	h.SetDate(m.now())
	h.SetAddressList("From", []*mail.Address{{Name: m.cfg.FromName, Address: m.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	inline, err := w.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create message body: %w", err)
	}
	if err := writePart(inline, "text/plain", textBody); err != nil {
		return nil, err
	}
	if err := writePart(inline, "text/html", htmlBody); err != nil {
		return nil, err
	}
	if err := inline.Close(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(inline *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	part, err := inline.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(part, body); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return part.Close()
}
