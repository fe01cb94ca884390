// Package server exposes the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/reachbox/internal/metrics"
	"github.com/raphaelgruber/reachbox/internal/models"
	"github.com/raphaelgruber/reachbox/internal/pipeline"
)

// Searcher runs search queries against the index.
type Searcher interface {
	SearchEmails(ctx context.Context, q models.SearchQuery) ([]models.EmailRecord, error)
}

// Replier drafts replies.
type Replier interface {
	SuggestReply(ctx context.Context, email models.EmailRecord) (string, error)
}

// Ingester processes emails and streams outcomes.
type Ingester interface {
	Process(ctx context.Context, e models.EmailRecord) (pipeline.Outcome, error)
	Subscribe(buffer int) (<-chan pipeline.Outcome, func())
}

// Knowledge adds snippets to the knowledge base.
type Knowledge interface {
	Add(ctx context.Context, text string) (models.KnowledgeSnippet, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContentSearcher finds similar emails within one account.
type ContentSearcher interface {
	Similar(ctx context.Context, account string, embedding []float32, k int) ([]string, error)
}

// Deps are the services behind the API. Content and Embedder may be nil,
// which disables the similar-emails endpoint.
type Deps struct {
	Search    Searcher
	Reply     Replier
	Ingest    Ingester
	Knowledge Knowledge
	Embedder  Embedder
	Content   ContentSearcher
	Metrics   *metrics.Collector
}

// Options tune the server.
type Options struct {
	// JWTSecret enables HS256 bearer authentication when non-empty.
	JWTSecret string
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	router *gin.Engine
	logger *slog.Logger
}

// New builds the router.
func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), LoggingMiddleware(logger))

	s := &Server{deps: deps, router: router, logger: logger}

	router.GET("/api/health", s.health)

	api := router.Group("/api")
	if opts.JWTSecret != "" {
		api.Use(AuthMiddleware(opts.JWTSecret))
	}
	api.GET("/emails/search", s.searchEmails)
	api.POST("/emails/suggest-reply", s.suggestReply)
	api.POST("/emails/similar", s.similarEmails)
	api.POST("/emails", s.ingestEmail)
	api.POST("/knowledge", s.addKnowledge)
	api.GET("/stats", s.stats)
	api.GET("/events", s.events)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second, // Long for LLM responses
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
