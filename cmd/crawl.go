package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/api"
	"github.com/JakeFAU/eures-crawler/internal/app"
	"github.com/JakeFAU/eures-crawler/internal/scheduler"
	"github.com/JakeFAU/eures-crawler/internal/session"
)

type crawlOptions struct {
	dryRun   bool
	schedule string
	cookie   string
	xsrf     string
}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs the EURES ingestion",
		Long: `Runs one ingestion: search pages are walked in order, each listing's detail
is fetched and every page is committed before the next is requested.

With --schedule (or schedule.cron) the command stays up and runs on the cron
schedule until interrupted. When metrics.addr is set an ops server exposes
health, readiness, metrics and run status.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.dryRun, "dry-run", false, "keep listings and run events in memory")
	f.StringVar(&opts.schedule, "schedule", "", "cron expression; overrides schedule.cron")
	f.StringVar(&opts.cookie, "cookie", "", "EURES_JVSE_SESSIONID value; used before any stored session and instead of launching a browser")
	f.StringVar(&opts.xsrf, "xsrf", "", "XSRF-TOKEN value to use instead of launching a browser")
	cmd.MarkFlagsRequiredTogether("cookie", "xsrf")
	return cmd
}

func runCrawl(ctx context.Context, opts *crawlOptions) error {
	e, err := resolveEnv(ctx)
	if err != nil {
		return err
	}

	cfg := e.cfg
	if opts.schedule != "" {
		cfg.Schedule.Cron = opts.schedule
	}
	if opts.cookie != "" {
		cfg.Session.Driver = session.DriverStatic
		cfg.Session.Cookie = opts.cookie
		cfg.Session.XSRFToken = opts.xsrf
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var appOpts []app.Option
	if opts.dryRun {
		appOpts = append(appOpts, app.WithDryRun())
	}
	a, err := newApp(ctx, cfg, e.logger, appOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()
	if opts.cookie != "" {
		a.Client.SetCredential(cfg.StaticCredential())
	}

	if cfg.Schedule.Cron == "" {
		return runOnce(ctx, a)
	}
	return runScheduled(ctx, a)
}

func runOnce(ctx context.Context, a *app.App) error {
	stopServer := serveOps(ctx, a, nil)
	defer stopServer()

	if err := a.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.Logger.Warn("crawl interrupted")
			return nil
		}
		return err
	}
	a.Logger.Info("Crawl command finished.")
	return nil
}

func runScheduled(ctx context.Context, a *app.App) error {
	s, err := scheduler.New(a.Config.Schedule.Cron, a.Run, a.Logger.Named("scheduler"))
	if err != nil {
		return err
	}
	if err := s.Start(ctx, a.Config.Schedule.RunOnStart); err != nil {
		return err
	}
	stopServer := serveOps(ctx, a, s.Trigger)

	a.Logger.Info("waiting for scheduled runs",
		zap.String("cron", a.Config.Schedule.Cron),
		zap.Time("next", s.Next()),
	)
	<-ctx.Done()

	a.Logger.Info("shutting down scheduler")
	s.Stop()
	stopServer()
	return nil
}

// serveOps starts the ops server when an address is configured and returns a function that stops it.
func serveOps(ctx context.Context, a *app.App, trigger api.Trigger) func() {
	if a.Config.Metrics.Addr == "" {
		return func() {}
	}
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Server(trigger).ListenAndServe(srvCtx); err != nil {
			a.Logger.Error("ops server stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
