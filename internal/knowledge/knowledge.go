// Package knowledge implements the curated knowledge base that grounds
// suggested replies.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// ErrNoContextAvailable is returned by QueryNearest when the store is empty.
var ErrNoContextAvailable = errors.New("no context available")

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is an append-only snippet store.
// Nearest must order by similarity descending, then by ID ascending.
type Store interface {
	Append(ctx context.Context, text string, embedding []float32) (models.KnowledgeSnippet, error)
	Nearest(ctx context.Context, embedding []float32, k int) ([]models.ScoredSnippet, error)
}

// Base is the knowledge base: an embedder in front of a Store.
type Base struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
}

// New creates a knowledge base.
func New(store Store, embedder Embedder, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{store: store, embedder: embedder, logger: logger}
}

// Add embeds text and appends it as a new snippet.
func (b *Base) Add(ctx context.Context, text string) (models.KnowledgeSnippet, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.KnowledgeSnippet{}, errors.New("snippet text is empty")
	}

	embedding, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return models.KnowledgeSnippet{}, fmt.Errorf("embed snippet: %w", err)
	}

	snippet, err := b.store.Append(ctx, text, embedding)
	if err != nil {
		return models.KnowledgeSnippet{}, fmt.Errorf("append snippet: %w", err)
	}

	b.logger.Info("knowledge snippet added", "id", snippet.ID, "text_len", len(text))
	return snippet, nil
}

// QueryNearest returns the k snippets closest to text.
// Returns ErrNoContextAvailable if nothing is stored.
func (b *Base) QueryNearest(ctx context.Context, text string, k int) ([]models.ScoredSnippet, error) {
	if k <= 0 {
		k = 1
	}

	embedding, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return b.NearestTo(ctx, embedding, k)
}

// NearestTo is QueryNearest for an already computed embedding.
func (b *Base) NearestTo(ctx context.Context, embedding []float32, k int) ([]models.ScoredSnippet, error) {
	results, err := b.store.Nearest(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("nearest snippets: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoContextAvailable
	}
	return results, nil
}
