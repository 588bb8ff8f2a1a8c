package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	digestusecase "github.com/omnific9/SchoolCalEnricher/internal/digest/usecase"
	"github.com/omnific9/SchoolCalEnricher/internal/event/repository"
	eventusecase "github.com/omnific9/SchoolCalEnricher/internal/event/usecase"
	"github.com/omnific9/SchoolCalEnricher/internal/recipient"
	"github.com/omnific9/SchoolCalEnricher/internal/syncstate"
	"github.com/omnific9/SchoolCalEnricher/pkg/ai"
	"github.com/omnific9/SchoolCalEnricher/pkg/calendar"
	"github.com/omnific9/SchoolCalEnricher/pkg/config"
	"github.com/omnific9/SchoolCalEnricher/pkg/database"
	"github.com/omnific9/SchoolCalEnricher/pkg/fcm"
	"github.com/omnific9/SchoolCalEnricher/pkg/gmail"
	"github.com/omnific9/SchoolCalEnricher/pkg/googleauth"
	"github.com/omnific9/SchoolCalEnricher/pkg/imap"
	"github.com/omnific9/SchoolCalEnricher/pkg/logger"
	"github.com/omnific9/SchoolCalEnricher/pkg/mailer"
)

// app wires the components a command needs, building each one on first use
type app struct {
	cfg *config.Config
	log zerolog.Logger

	httpClient *http.Client
	gcal       *calendar.GoogleCalendar
	adapter    *calendar.RetryingAdapter
	oracle     ai.Oracle
	source     eventusecase.EmailSource
	state      syncstate.Store
	runs       repository.RunRepository

	closers []func() error
}

func newApp(cfg *config.Config, log zerolog.Logger) *app {
	return &app{cfg: cfg, log: log}
}

// Close releases every resource opened by the app
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *app) googleClient(ctx context.Context) (*http.Client, error) {
	if a.httpClient != nil {
		return a.httpClient, nil
	}
	client, err := googleauth.NewHTTPClient(ctx, a.cfg.GoogleCredentialsFile, a.cfg.GoogleTokenFile,
		logger.Component(a.log, "googleauth"))
	if err != nil {
		return nil, fmt.Errorf("google authorization failed: %w", err)
	}
	a.httpClient = client
	return client, nil
}

func (a *app) calendarAdapter(ctx context.Context) (*calendar.RetryingAdapter, error) {
	if a.adapter != nil {
		return a.adapter, nil
	}
	client, err := a.googleClient(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.Component(a.log, "calendar")
	gcal, err := calendar.NewGoogleCalendar(ctx, client, a.cfg.GoogleCalendarID, a.cfg.Timezone, log)
	if err != nil {
		return nil, err
	}
	a.gcal = gcal
	a.adapter = calendar.NewRetryingAdapter(gcal, calendar.RetryConfig{
		Attempts: a.cfg.Policy.CalendarRetries,
		Backoff:  a.cfg.Policy.CalendarRetryBackoff,
		Timeout:  a.cfg.Policy.CalendarTimeout,
	}, log)
	return a.adapter, nil
}

func (a *app) aiOracle() (ai.Oracle, error) {
	if a.oracle != nil {
		return a.oracle, nil
	}
	oracle, err := ai.NewOracle(ai.Config{
		Provider:      ai.ProviderType(a.cfg.AIProvider),
		OpenAIAPIKey:  a.cfg.OpenAIAPIKey,
		OpenAIModel:   a.cfg.OpenAIModel,
		OpenAIBaseURL: a.cfg.OpenAIBaseURL,
		GeminiAPIKey:  a.cfg.GeminiAPIKey,
		GeminiModel:   a.cfg.GeminiModel,
		OllamaBaseURL: a.cfg.OllamaBaseURL,
		OllamaModel:   a.cfg.OllamaModel,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.oracle = oracle
	return oracle, nil
}

func (a *app) emailSource(ctx context.Context) (eventusecase.EmailSource, error) {
	if a.source != nil {
		return a.source, nil
	}
	log := logger.Component(a.log, "source")
	switch a.cfg.EmailSource {
	case "imap":
		a.source = imap.NewSource(imap.Config{
			Addr:     a.cfg.IMAPAddr,
			Username: a.cfg.GmailAddress,
			Password: a.cfg.GmailPassword,
			Mailbox:  a.cfg.IMAPMailbox,
			From:     a.cfg.SchoolEmailFrom,
			Lookback: a.cfg.InitialLookback,
		}, log)
	case "gmail":
		client, err := a.googleClient(ctx)
		if err != nil {
			return nil, err
		}
		src, err := gmail.NewSource(ctx, client, a.cfg.SchoolEmailFrom, a.cfg.InitialLookback, log)
		if err != nil {
			return nil, err
		}
		a.source = src
	default:
		return nil, fmt.Errorf("unknown EMAIL_SOURCE %q", a.cfg.EmailSource)
	}
	return a.source, nil
}

// stores opens the watermark store and the run history selected by WATERMARK_STORE
func (a *app) stores() (syncstate.Store, repository.RunRepository, error) {
	if a.state != nil {
		return a.state, a.runs, nil
	}
	switch strings.ToLower(a.cfg.WatermarkStore) {
	case syncstate.KindFile, "":
		a.state = syncstate.NewFileStore(a.cfg.WatermarkFile)
		a.runs = repository.NewMemoryRunRepository()
	case syncstate.KindSQLite:
		store, err := syncstate.NewSQLiteStore(a.cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.state = store
		a.runs = repository.NewMemoryRunRepository()
	case syncstate.KindPostgres:
		if a.cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres watermark store")
		}
		db, err := database.NewPostgresConnection(a.cfg.DatabaseURL, logger.Component(a.log, "database"))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error { return database.Close(db) })
		state, err := syncstate.NewGormStore(db)
		if err != nil {
			return nil, nil, err
		}
		runs, err := repository.NewGormRunRepository(db)
		if err != nil {
			return nil, nil, err
		}
		a.state, a.runs = state, runs
	default:
		return nil, nil, fmt.Errorf("%w: %q", syncstate.ErrUnknownKind, a.cfg.WatermarkStore)
	}
	return a.state, a.runs, nil
}

func (a *app) syncUsecase(ctx context.Context) (eventusecase.SyncUsecase, error) {
	source, err := a.emailSource(ctx)
	if err != nil {
		return nil, err
	}
	cal, err := a.calendarAdapter(ctx)
	if err != nil {
		return nil, err
	}
	oracle, err := a.aiOracle()
	if err != nil {
		return nil, err
	}
	state, runs, err := a.stores()
	if err != nil {
		return nil, err
	}

	p := a.cfg.Policy
	extractor := eventusecase.NewExtractor(oracle, eventusecase.ExtractorConfig{
		Location:      a.cfg.Timezone,
		SkipMarkers:   p.SkipMarkers,
		MaxBodyLen:    p.MaxBodyLen,
		OracleTimeout: p.OracleTimeout,
	}, logger.Component(a.log, "extractor"))

	return eventusecase.NewSyncUsecase(source, extractor, cal, state, runs, eventusecase.MatchPolicy{
		SameDay:        p.MatchSameDay,
		TimeTolerance:  p.MatchTimeTolerance,
		TitleThreshold: p.MatchTitleThreshold,
		Location:       a.cfg.Timezone,
	}, logger.Component(a.log, "sync")), nil
}

func (a *app) recipients(ctx context.Context) (*recipient.Resolver, error) {
	if _, err := a.calendarAdapter(ctx); err != nil {
		return nil, err
	}
	sources := []recipient.Source{
		recipient.ACLSource{Calendar: a.gcal},
		recipient.FileSource{Path: a.cfg.EmailListFile},
	}
	if a.cfg.SignupSheetID != "" {
		client, err := a.googleClient(ctx)
		if err != nil {
			return nil, err
		}
		sheet, err := recipient.NewSheetSource(ctx, client, a.cfg.SignupSheetID, a.cfg.SignupSheetRange)
		if err != nil {
			return nil, err
		}
		sources = append(sources, sheet)
	}
	return recipient.NewResolver(logger.Component(a.log, "recipients"), sources...), nil
}

func (a *app) digestUsecase(ctx context.Context) (digestusecase.DigestUsecase, error) {
	cal, err := a.calendarAdapter(ctx)
	if err != nil {
		return nil, err
	}
	oracle, err := a.aiOracle()
	if err != nil {
		return nil, err
	}
	_, runs, err := a.stores()
	if err != nil {
		return nil, err
	}
	resolver, err := a.recipients(ctx)
	if err != nil {
		return nil, err
	}
	renderer, err := digestusecase.NewRenderer(a.cfg.Timezone)
	if err != nil {
		return nil, err
	}

	log := logger.Component(a.log, "digest")
	send := mailer.New(mailer.Config{
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Username: a.cfg.GmailAddress,
		Password: a.cfg.GmailPassword,
		From:     a.cfg.DigestFrom,
	}, logger.Component(a.log, "mailer"))

	var announcer digestusecase.Announcer
	if a.cfg.FirebaseCredentials != "" {
		client, err := fcm.NewClient(ctx, a.cfg.FirebaseCredentials, a.cfg.FCMDigestTopic, logger.Component(a.log, "fcm"))
		if err != nil {
			log.Warn().Err(err).Msg("push announcements disabled")
		} else {
			announcer = client
		}
	}

	aggregator := digestusecase.NewAggregator(oracle, a.cfg.Policy.OracleTimeout, log)
	return digestusecase.NewDigestUsecase(cal, aggregator, renderer, resolver, send, announcer, runs, a.cfg.Policy.DigestDays, log), nil
}
