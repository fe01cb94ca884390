// Package cli provides the command-line interface for reachbox.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/reachbox/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger
	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error

	// Lazily built service graph
	app *App
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "reachbox",
	Short: "Outreach inbox: categorize, search and answer incoming email",
	Long: `Reachbox ingests email from IMAP mailboxes, classifies each message by
outreach intent (Interested, MeetingBooked, NotInterested, Spam, OutOfOffice),
indexes it for full-text search, notifies on interested leads and drafts
replies grounded in a small knowledge base.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			if err := app.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close services: %v\n", err)
			}
		}
		if closeLogger != nil {
			_ = closeLogger()
		}
	},
}

// getApp builds the service graph on first use.
func getApp(ctx context.Context) (*App, error) {
	if app != nil {
		return app, nil
	}
	a, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app = a
	return app, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(kbCmd)
}

