package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/reachbox/internal/categorize"
	"github.com/raphaelgruber/reachbox/internal/chroma"
	"github.com/raphaelgruber/reachbox/internal/config"
	"github.com/raphaelgruber/reachbox/internal/db"
	"github.com/raphaelgruber/reachbox/internal/knowledge"
	"github.com/raphaelgruber/reachbox/internal/llm"
	"github.com/raphaelgruber/reachbox/internal/metrics"
	"github.com/raphaelgruber/reachbox/internal/notify"
	"github.com/raphaelgruber/reachbox/internal/pipeline"
	"github.com/raphaelgruber/reachbox/internal/reply"
)

// contentStore is what both content backends offer.
type contentStore interface {
	pipeline.ContentStore
	Similar(ctx context.Context, account string, embedding []float32, k int) ([]string, error)
}

// App holds the long-lived handles shared by commands. Built once,
// closed once.
type App struct {
	DB         *db.Client
	Embedder   *llm.Embedder
	Knowledge  *knowledge.Base
	Content    contentStore
	Dispatcher *notify.Dispatcher
	Pipeline   *pipeline.Pipeline
	Worker     *pipeline.Worker
	Reply      *reply.Engine
	Metrics    *metrics.Collector

	closers []func(ctx context.Context) error
	logger  *slog.Logger
}

// NewApp connects to every configured backend and wires the services.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Metrics: metrics.NewCollector(), logger: logger}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:            cfg.SurrealDBURL,
		Namespace:      cfg.SurrealDBNamespace,
		Database:       cfg.SurrealDBDatabase,
		Username:       cfg.SurrealDBUser,
		Password:       cfg.SurrealDBPass,
		AuthLevel:      cfg.SurrealDBAuthLevel,
		EmbedDimension: cfg.EmbedDimension,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.DB = dbClient
	a.closers = append(a.closers, dbClient.Close)

	fail := func(err error) (*App, error) {
		_ = a.Close(context.Background())
		return nil, err
	}

	a.Embedder, err = llm.NewEmbedder(cfg)
	if err != nil {
		return fail(fmt.Errorf("init embedder: %w", err))
	}

	categorizeModel, err := llm.NewModel(ctx, cfg, cfg.CategorizeModel)
	if err != nil {
		return fail(fmt.Errorf("init categorize model: %w", err))
	}
	replyModel, err := llm.NewModel(ctx, cfg, cfg.ReplyModel)
	if err != nil {
		return fail(fmt.Errorf("init reply model: %w", err))
	}

	var store knowledge.Store
	switch cfg.KnowledgeBackend {
	case config.BackendMemory:
		store = knowledge.NewMemoryStore(cfg.EmbedDimension)
	case config.BackendSurreal:
		store = db.NewKnowledgeStore(dbClient)
	default:
		return fail(fmt.Errorf("unsupported knowledge backend: %s", cfg.KnowledgeBackend))
	}
	a.Knowledge = knowledge.New(store, a.Embedder, logger)

	switch cfg.ContentBackend {
	case config.BackendChroma:
		cs, err := chroma.NewContentStore(connectCtx, cfg.ChromaURL, cfg.ChromaCollection, a.Embedder, logger)
		if err != nil {
			return fail(fmt.Errorf("init chroma: %w", err))
		}
		a.Content = cs
		a.closers = append(a.closers, func(context.Context) error { return cs.Close() })
	case config.BackendSurreal:
		a.Content = db.NewContentStore(dbClient)
	default:
		return fail(fmt.Errorf("unsupported content backend: %s", cfg.ContentBackend))
	}

	sinks, closeSinks, err := notify.SinksFromConfig(ctx, cfg, logger)
	if err != nil {
		return fail(fmt.Errorf("init notification sinks: %w", err))
	}
	a.closers = append(a.closers, func(context.Context) error { return closeSinks() })
	a.Dispatcher = notify.NewDispatcher(sinks, cfg.NotifyTimeout, logger)
	a.Dispatcher.OnDelivery = func(sink string, d time.Duration, err error) {
		a.Metrics.RecordTiming(metrics.OpNotify+"."+sink, d, err)
	}

	a.Pipeline = pipeline.New(pipeline.Deps{
		Categorizer: categorize.New(categorizeModel, cfg.CategorizeTimeout, logger),
		Index:       dbClient,
		Embedder:    a.Embedder,
		Content:     a.Content,
		Dispatcher:  a.Dispatcher,
		Metrics:     a.Metrics,
		Logger:      logger,
	},
		pipeline.WithIndexAttempts(cfg.IndexAttempts),
		pipeline.WithIndexTimeout(cfg.IndexTimeout),
		pipeline.WithVectorizeTimeout(cfg.VectorizeTimeout),
	)
	a.Worker = pipeline.NewWorker(a.Pipeline, cfg.Workers, logger)

	a.Reply = reply.New(replyModel, a.Knowledge, reply.Config{
		Temperature: cfg.ReplyTemperature,
		Timeout:     cfg.ReplyTimeout,
	}, logger)

	logger.Info("services ready",
		"llm_provider", cfg.LLMProvider,
		"embed_model", a.Embedder.Model(),
		"knowledge_backend", cfg.KnowledgeBackend,
		"content_backend", cfg.ContentBackend,
		"sinks", a.Dispatcher.Sinks())
	return a, nil
}

// Close stops the worker, waits for pending notifications and releases
// backends in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	if a.Worker != nil {
		a.Worker.Close()
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
