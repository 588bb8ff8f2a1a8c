package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	api "github.com/omnific9/SchoolCalEnricher/cmd/api"
	digestusecase "github.com/omnific9/SchoolCalEnricher/internal/digest/usecase"
	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	eventusecase "github.com/omnific9/SchoolCalEnricher/internal/event/usecase"
	"github.com/omnific9/SchoolCalEnricher/internal/notification"
	"github.com/omnific9/SchoolCalEnricher/internal/scheduler"
	"github.com/omnific9/SchoolCalEnricher/pkg/config"
	"github.com/omnific9/SchoolCalEnricher/pkg/gmail"
	"github.com/omnific9/SchoolCalEnricher/pkg/logger"
)

var (
	version    = "dev"
	jsonOutput bool
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "schoolcal",
		Short:         "School email to calendar enricher",
		Long:          "schoolcal reads school notification emails, keeps a shared calendar in sync with the\nevents they announce and mails parents a weekly digest of what needs doing.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(fetchCmd(), digestCmd(), serveCmd(), recipientsCmd(), watermarkCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if jsonOutput {
			printJSON(map[string]string{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// setup loads the configuration and builds the app for one command
func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log := logger.New(level, cfg.LogFormat)
	return newApp(cfg, log), nil
}

func fetchCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Sync events from new school emails to the calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.ValidateFetch(); err != nil {
				return err
			}

			uc, err := a.syncUsecase(cmd.Context())
			if err != nil {
				return err
			}
			summary, runErr := uc.Run(cmd.Context(), eventusecase.RunOptions{DryRun: dryRun})
			if summary != nil {
				printSummary(os.Stdout, summary)
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Decide without writing to the calendar or moving the watermark")
	return cmd
}

func digestCmd() *cobra.Command {
	var (
		dryRun bool
		days   int
	)
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build and send the weekly digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.ValidateDigest(dryRun); err != nil {
				return err
			}

			uc, err := a.digestUsecase(cmd.Context())
			if err != nil {
				return err
			}
			result, runErr := uc.Run(cmd.Context(), digestusecase.RunOptions{DryRun: dryRun, Days: days})
			if result == nil {
				return runErr
			}
			if jsonOutput {
				printJSON(result)
				return runErr
			}
			if dryRun && result.Rendered != nil {
				fmt.Printf("Subject: %s\n\n%s\n", result.Rendered.Subject, result.Rendered.Text)
			}
			printSummary(os.Stdout, result.Summary)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the digest without sending it")
	cmd.Flags().IntVar(&days, "days", 0, "Days covered by the digest (default DIGEST_DAYS)")
	return cmd
}

func recipientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipients",
		Short: "List the resolved digest recipients",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			resolver, err := a.recipients(cmd.Context())
			if err != nil {
				return err
			}
			addrs, err := resolver.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(addrs)
				return nil
			}
			for _, addr := range addrs {
				fmt.Println(addr)
			}
			fmt.Fprintf(os.Stderr, "%d unique recipient(s)\n", len(addrs))
			return nil
		},
	}
}

func watermarkCmd() *cobra.Command {
	var set string
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Show or overwrite the fetch watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.stores()
			if err != nil {
				return err
			}
			if set != "" {
				wm, err := time.Parse(time.RFC3339, set)
				if err != nil {
					return fmt.Errorf("invalid --set value: %w", err)
				}
				state := domain.SyncState{Watermark: wm.UTC(), UpdatedAt: time.Now().UTC()}
				if err := store.Save(cmd.Context(), state); err != nil {
					return err
				}
			}

			state, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(state)
			} else if state.Watermark.IsZero() {
				fmt.Println("no watermark yet")
			} else {
				fmt.Println(state.Watermark.In(a.cfg.Timezone).Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "New watermark (RFC3339)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run fetch and digest on a schedule and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.ValidateServe(); err != nil {
				return err
			}

			syncUc, err := a.syncUsecase(ctx)
			if err != nil {
				return err
			}
			var digestUc digestusecase.DigestUsecase
			if err := a.cfg.ValidateDigest(false); err != nil {
				a.log.Warn().Err(err).Msg("weekly digest disabled")
			} else if digestUc, err = a.digestUsecase(ctx); err != nil {
				return err
			}
			state, runs, err := a.stores()
			if err != nil {
				return err
			}

			sched := scheduler.New(syncUc, digestUc, scheduler.Config{
				FetchInterval: a.cfg.FetchInterval,
				DigestWeekday: a.cfg.DigestWeekday,
				DigestHour:    a.cfg.DigestHour,
				Location:      a.cfg.Timezone,
				DigestEnabled: digestUc != nil,
			}, logger.Component(a.log, "scheduler"))
			sched.Start(ctx)
			defer sched.Stop()

			if a.cfg.PubSubProjectID != "" {
				startNotifications(ctx, a, sched)
			}

			handler := api.NewHandler(syncUc, digestUc, state, runs, sched, a.cfg.Policy, logger.Component(a.log, "api"))
			srv := &http.Server{
				Addr:              ":" + a.cfg.Port,
				Handler:           handler.Router(a.cfg.APIJWTSecret),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", srv.Addr).Msg("server starting")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// startNotifications subscribes to Gmail push notifications. Failures only disable push.
func startNotifications(ctx context.Context, a *app, sched *scheduler.Scheduler) {
	log := logger.Component(a.log, "notification")

	var watcher notification.MailboxWatcher
	if src, err := a.emailSource(ctx); err == nil {
		if g, ok := src.(*gmail.Source); ok {
			watcher = g
		}
	}

	svc, err := notification.NewService(ctx, a.cfg.PubSubProjectID, a.cfg.PubSubTopic, a.cfg.PubSubSubscription,
		sched, watcher, a.cfg.GoogleCredentialsFile, log)
	if err != nil {
		log.Error().Err(err).Msg("push notifications disabled")
		return
	}
	a.closers = append(a.closers, func() error { return svc.Close(context.Background()) })

	go func() {
		if err := svc.Start(ctx); err != nil {
			log.Error().Err(err).Msg("notification service stopped")
		}
	}()
}

func printSummary(w io.Writer, s *domain.RunSummary) {
	if jsonOutput {
		printJSON(s)
		return
	}

	if s.DryRun {
		fmt.Fprintln(w, "[dry run]")
	}
	switch s.Kind {
	case domain.RunKindFetch:
		fmt.Fprintf(w, "Emails:   %d seen, %d skipped, %d failed\n", s.EmailsSeen, s.EmailsSkipped, s.EmailsFailed)
		fmt.Fprintf(w, "Events:   %d created, %d updated, %d unchanged, %d failed, %d discarded\n",
			s.Created, s.Updated, s.Skipped, s.Failed, s.Discarded)
		if s.ExtractionFailures > 0 {
			fmt.Fprintf(w, "Oracle:   %d extraction failure(s)\n", s.ExtractionFailures)
		}
		if s.WatermarkAfter != nil {
			fmt.Fprintf(w, "Watermark: %s\n", s.WatermarkAfter.Format(time.RFC3339))
		}
	case domain.RunKindDigest:
		if s.DigestEmpty {
			fmt.Fprintln(w, "Digest:   empty week")
		} else {
			fmt.Fprintf(w, "Digest:   %d item(s), %d classification failure(s)\n", s.DigestItems, s.ClassificationFailures)
		}
		if !s.DryRun {
			fmt.Fprintf(w, "Sent:     %d of %d recipient(s), %d failure(s)\n", s.Sent, s.Recipients, s.SendFailures)
		}
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  ! %s %s %s: %s\n", f.Stage, f.EmailID, f.Event, f.Error)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Run failed: %s\n", s.Error)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
