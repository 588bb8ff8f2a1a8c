package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/pkg/ai"
)

// ExtractorConfig tunes how emails are prepared for the oracle
type ExtractorConfig struct {
	Location      *time.Location // school time zone dates and times are read in
	SkipMarkers   []string       // case-insensitive phrases marking emails that carry no new event
	MaxBodyLen    int            // characters of cleaned body sent to the oracle, 0 for no limit
	OracleTimeout time.Duration  // deadline of one oracle call, 0 for none
}

// Extraction is one candidate event and the action items found with it
type Extraction struct {
	Event       *domain.Event
	ActionItems []*domain.ActionItem
}

// Discard is an oracle result that could not become a candidate
type Discard struct {
	Title string
	Err   error
}

// ExtractResult is everything learned from one email
type ExtractResult struct {
	Extractions []Extraction
	Discarded   []Discard
	SkipReason  string // set when the email was skipped before the oracle call
	OracleErr   error  // set when the oracle failed; the email then yields no events
}

// Extractor turns raw emails into candidate events through the oracle
type Extractor struct {
	oracle ai.Oracle
	cfg    ExtractorConfig
	log    zerolog.Logger
	now    func() time.Time
}

// NewExtractor creates a new Extractor
func NewExtractor(oracle ai.Oracle, cfg ExtractorConfig, log zerolog.Logger) *Extractor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Extractor{
		oracle: oracle,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Extract returns the candidate events of one email in the order the oracle listed
// them. It never fails: oracle errors and invalid candidates are reported on the result
// and the email simply yields fewer events.
func (x *Extractor) Extract(ctx context.Context, email domain.RawEmail) ExtractResult {
	log := x.log.With().Str("email_id", email.ID).Str("subject", email.Subject).Logger()

	if marker, ok := x.skipMarker(email); ok {
		log.Info().Str("marker", marker).Msg("skipping email")
		return ExtractResult{SkipReason: fmt.Sprintf("contains %q", marker)}
	}

	body := cleanBody(email.Body, x.cfg.MaxBodyLen)
	if strings.TrimSpace(body) == "" && strings.TrimSpace(email.Subject) == "" {
		log.Info().Msg("empty email, nothing to extract")
		return ExtractResult{}
	}

	callCtx := ctx
	if x.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, x.cfg.OracleTimeout)
		defer cancel()
	}

	extracted, err := x.oracle.Extract(callCtx, ai.ExtractRequest{
		Subject:   email.Subject,
		Sender:    email.Sender,
		Body:      body,
		EmailDate: email.ReceivedAt.In(x.cfg.Location),
		Today:     x.now().In(x.cfg.Location),
	})
	if err != nil {
		log.Warn().Err(err).Msg("extraction failed, email yields no events")
		return ExtractResult{OracleErr: err}
	}

	var result ExtractResult
	for _, raw := range extracted {
		ext, err := x.toCandidate(raw, email)
		if err != nil {
			log.Warn().Err(err).Str("title", raw.Title).Msg("discarding candidate")
			result.Discarded = append(result.Discarded, Discard{Title: raw.Title, Err: err})
			continue
		}
		result.Extractions = append(result.Extractions, ext)
	}
	log.Debug().Int("events", len(result.Extractions)).Int("discarded", len(result.Discarded)).Msg("email extracted")
	return result
}

func (x *Extractor) skipMarker(email domain.RawEmail) (string, bool) {
	text := strings.ToLower(email.Subject + "\n" + email.Body)
	for _, marker := range x.cfg.SkipMarkers {
		m := strings.ToLower(strings.TrimSpace(marker))
		if m != "" && strings.Contains(text, m) {
			return marker, true
		}
	}
	return "", false
}

// toCandidate converts one oracle event. Start and end combine as follows: both times
// give a timed event; a start time alone ends one hour after that time on the last
// day; no time gives an all-day event spanning start to end date.
func (x *Extractor) toCandidate(raw ai.ExtractedEvent, email domain.RawEmail) (Extraction, error) {
	loc := x.cfg.Location

	startDay, ok := parseDay(raw.StartDate, loc)
	if !ok {
		return Extraction{}, fmt.Errorf("%w: %q", domain.ErrNoStartDate, raw.StartDate)
	}
	endDay, ok := parseDay(raw.EndDate, loc)
	if !ok {
		endDay = startDay
	}

	e := &domain.Event{
		Title:         strings.TrimSpace(raw.Title),
		Description:   strings.TrimSpace(raw.Description),
		SourceEmailID: email.ID,
	}
	if where := strings.TrimSpace(raw.Location); where != "" {
		e.Location = domain.StringPtr(where)
	}

	sh, sm, hasStart := parseClock(raw.StartTime)
	eh, em, hasEnd := parseClock(raw.EndTime)
	switch {
	case hasStart && hasEnd:
		e.Start = atClock(startDay, sh, sm, loc)
		e.End = domain.TimePtr(atClock(endDay, eh, em, loc))
	case hasStart:
		e.Start = atClock(startDay, sh, sm, loc)
		if !endDay.Equal(startDay) {
			e.End = domain.TimePtr(atClock(endDay, sh, sm, loc).Add(domain.DefaultTimedDuration))
		}
	default:
		e.AllDay = true
		e.Start = startDay
		if !endDay.Equal(startDay) {
			e.End = domain.TimePtr(endDay)
		}
	}

	if err := e.Validate(); err != nil {
		return Extraction{}, err
	}

	items := make([]*domain.ActionItem, 0, len(raw.ParentActions))
	for _, a := range raw.ParentActions {
		desc := strings.TrimSpace(a.Action)
		if desc == "" {
			continue
		}
		items = append(items, &domain.ActionItem{
			Description: desc,
			Link:        strings.Join(strings.Fields(a.Link), " "),
			Due:         ParseDue(a.Due, email.ReceivedAt, loc),
		})
	}
	domain.LinkTo(items, e)
	e.ActionItems = items

	return Extraction{Event: e, ActionItems: items}, nil
}

// cleanBody drops quoted replies and the signature, then truncates to maxLen runes
func cleanBody(body string, maxLen int) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if line == "-- " || trimmed == "--" {
			break
		}
		if strings.HasPrefix(trimmed, "-----Original Message-----") {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if strings.HasPrefix(trimmed, "On ") && strings.HasSuffix(trimmed, "wrote:") {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if maxLen > 0 {
		if r := []rune(out); len(r) > maxLen {
			out = string(r[:maxLen])
		}
	}
	return out
}
