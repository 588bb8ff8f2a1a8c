package recipient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
)

// Source yields recipient addresses from one place
type Source interface {
	Name() string
	Emails(ctx context.Context) ([]string, error)
}

// Resolver merges the addresses of its sources in order
type Resolver struct {
	sources []Source
	log     zerolog.Logger
}

// NewResolver creates a Resolver. Source order decides which spelling of a duplicate
// address is kept.
func NewResolver(log zerolog.Logger, sources ...Source) *Resolver {
	return &Resolver{sources: sources, log: log}
}

// Resolve returns the addresses of every source, deduplicated case-insensitively and
// keeping the first spelling seen. A failing source is logged and skipped; Resolve only
// fails when every source failed.
func (r *Resolver) Resolve(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	var errs []error

	for _, src := range r.sources {
		emails, err := src.Emails(ctx)
		if err != nil {
			r.log.Warn().Err(err).Str("source", src.Name()).Msg("recipient source failed, skipping")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		added := 0
		for _, raw := range emails {
			addr := strings.TrimSpace(raw)
			if addr == "" {
				continue
			}
			if _, err := mail.ParseAddress(addr); err != nil {
				r.log.Warn().Str("source", src.Name()).Str("address", addr).Msg("ignoring invalid address")
				continue
			}
			key := strings.ToLower(addr)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
			added++
		}
		r.log.Info().Str("source", src.Name()).Int("found", len(emails)).Int("added", added).Msg("loaded recipients")
	}

	if len(errs) > 0 && len(errs) == len(r.sources) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
