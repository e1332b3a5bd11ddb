package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/eures-crawler/internal/app"
	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

// newSessionCmd groups the credential maintenance subcommands.
func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspects or refreshes the stored EURES session",
	}
	cmd.AddCommand(newSessionRefreshCmd(), newSessionShowCmd(), newSessionClearCmd())
	return cmd
}

func newSessionRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Acquires a new session and stores it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := resolveEnv(ctx)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, e.cfg, e.logger, app.CredentialsOnly())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer a.Close()

			cred, err := a.Acquirer.Acquire(ctx)
			if err != nil {
				return fmt.Errorf("acquire session: %w", err)
			}
			if err := a.Credentials.Save(ctx, cred); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session stored: %s\n", cred.Redacted())
			return nil
		},
	}
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Prints the stored session with its values redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := resolveEnv(ctx)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, e.cfg, e.logger, app.CredentialsOnly())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer a.Close()

			cred, ok := a.Credentials.Load(ctx)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no stored session")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session: %s\n", cred.Redacted())
			return nil
		},
	}
}

func newSessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Deletes the stored session so the next crawl acquires a new one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := resolveEnv(ctx)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, e.cfg, e.logger, app.CredentialsOnly())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer a.Close()

			clearer, ok := a.Credentials.(crawler.CredentialClearer)
			if !ok {
				return fmt.Errorf("credentials backend %q cannot be cleared", e.cfg.Credentials.Backend)
			}
			if err := clearer.Clear(ctx); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			return nil
		},
	}
}
