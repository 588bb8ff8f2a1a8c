package recipient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SubscriberLister lists the users the calendar is shared with
type SubscriberLister interface {
	SubscriberEmails(ctx context.Context) ([]string, error)
}

// ACLSource reads the user scopes of the calendar ACL
type ACLSource struct {
	Calendar SubscriberLister
}

func (s ACLSource) Name() string { return "calendar_acl" }

func (s ACLSource) Emails(ctx context.Context) ([]string, error) {
	return s.Calendar.SubscriberEmails(ctx)
}

// FileSource reads one address per line. Blank lines and lines starting with # are
// ignored; a missing file yields no addresses.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "email_list" }

func (s FileSource) Emails(ctx context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open email list: %w", err)
	}
	defer f.Close()

	var emails []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		emails = append(emails, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read email list: %w", err)
	}
	return emails, nil
}

// SheetSource reads the first column of a range of a sign-up spreadsheet
type SheetSource struct {
	srv           *sheets.Service
	spreadsheetID string
	readRange     string
}

// NewSheetSource creates a Sheets API backed source
func NewSheetSource(ctx context.Context, client *http.Client, spreadsheetID, readRange string, opts ...option.ClientOption) (*SheetSource, error) {
	if client != nil {
		opts = append(opts, option.WithHTTPClient(client))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets client: %w", err)
	}
	if readRange == "" {
		readRange = "B2:B"
	}
	return &SheetSource{srv: srv, spreadsheetID: spreadsheetID, readRange: readRange}, nil
}

func (s *SheetSource) Name() string { return "signup_sheet" }

func (s *SheetSource) Emails(ctx context.Context) ([]string, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to read sign-up sheet: %w", err)
	}
	return firstColumn(resp.Values), nil
}

func firstColumn(rows [][]interface{}) []string {
	var out []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if cell, ok := row[0].(string); ok {
			if cell = strings.TrimSpace(cell); cell != "" {
				out = append(out, cell)
			}
		}
	}
	return out
}
