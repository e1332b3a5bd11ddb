// Package cmd defines the eures-crawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/app"
	"github.com/JakeFAU/eures-crawler/internal/config"
	"github.com/JakeFAU/eures-crawler/internal/logging"
)

// envKeyType is the key for storing the loaded environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env is what every subcommand needs before it builds services.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp is the application factory. Tests replace it to inject fakes.
var newApp = app.New

// newRootCmd creates the root command and registers the subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "eures-crawler",
		Short: "Harvests EURES job vacancies into a local or shared database.",
		Long: `eures-crawler queries the EURES job-search API with a browser-acquired
session, walks every result page, fetches each vacancy's detail document and
upserts the listings into SQLite or Postgres. Runs can be one-shot or
scheduled with a cron expression.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Configuration and logging are loaded once here; services are built by each subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json); environment variables use the EURES_ prefix")

	cmd.AddCommand(newCrawlCmd(), newSessionCmd(), newSchemaCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	logger, lerr := logging.New(logging.Config{})
	if lerr != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	logger.Fatal("Command execution failed", zap.Error(err))
}
