package cli

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/reachbox/internal/knowledge"
	"github.com/raphaelgruber/reachbox/internal/mailbox"
	"github.com/raphaelgruber/reachbox/internal/server"
)

var serveWipe bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and mailbox pollers",
	Long: `Run the HTTP API and, when MAILBOX_CONFIG is set, poll every configured
IMAP account and feed new messages into the pipeline.

The knowledge base is seeded from KNOWLEDGE_SEED (or the default
snippet) when it is empty.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWipe, "wipe", false, "wipe all data from database on startup (testing only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := getApp(ctx)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	if serveWipe {
		if err := a.DB.WipeData(ctx); err != nil {
			return fmt.Errorf("wipe database: %w", err)
		}
		logger.Warn("database wiped")
	}

	texts, err := knowledge.SeedTexts(cfg.KnowledgeSeed)
	if err != nil {
		return err
	}
	if n, err := a.Knowledge.SeedIfEmpty(ctx, texts); err != nil {
		logger.Warn("knowledge seed failed", "error", err)
	} else if n > 0 {
		logger.Info("knowledge base seeded", "snippets", n)
	}

	var wg sync.WaitGroup
	if cfg.MailboxConfig != "" {
		poller, err := newPoller(a)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	srv := server.New(server.Deps{
		Search:    a.DB,
		Reply:     a.Reply,
		Ingest:    a.Worker,
		Knowledge: a.Knowledge,
		Embedder:  a.Embedder,
		Content:   a.Content,
		Metrics:   a.Metrics,
	}, server.Options{JWTSecret: cfg.APIJWTSecret}, logger)

	err = srv.Run(ctx, ":"+cfg.ServerPort)
	stop()
	wg.Wait()
	if err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newPoller(a *App) (*mailbox.Poller, error) {
	accounts, err := mailbox.LoadAccounts(cfg.MailboxConfig)
	if err != nil {
		return nil, err
	}
	tracker, err := mailbox.NewTracker(cfg.MailboxStateFile)
	if err != nil {
		return nil, err
	}

	sources := make([]mailbox.Source, 0, len(accounts))
	for _, acc := range accounts {
		sources = append(sources, mailbox.NewIMAPSource(acc, logger))
	}

	logger.Info("mailbox polling enabled", "accounts", len(sources), "interval", cfg.MailboxPollInterval)
	return mailbox.NewPoller(sources, tracker, a.Worker.Submit, mailbox.PollerConfig{
		Interval:  cfg.MailboxPollInterval,
		SinceDays: cfg.MailboxSinceDays,
	}, logger), nil
}
