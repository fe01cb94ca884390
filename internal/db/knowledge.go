package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raphaelgruber/reachbox/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

type snippetRow struct {
	Seq     int64     `json:"seq"`
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
	Score   float64   `json:"score"`
}

// KnowledgeStore persists the curated knowledge base in the snippet table.
type KnowledgeStore struct {
	client *Client
}

// NewKnowledgeStore returns the SurrealDB-backed knowledge store.
func NewKnowledgeStore(client *Client) *KnowledgeStore {
	return &KnowledgeStore{client: client}
}

// Append stores one snippet under the next sequence number.
// The counter bump and the insert are retried together on write conflicts.
func (s *KnowledgeStore) Append(ctx context.Context, text string, embedding []float32) (models.KnowledgeSnippet, error) {
	c := s.client
	if err := c.ensureSchema(ctx); err != nil {
		return models.KnowledgeSnippet{}, err
	}
	if len(embedding) != c.cfg.EmbedDimension {
		return models.KnowledgeSnippet{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), c.cfg.EmbedDimension)
	}

	var snippet models.KnowledgeSnippet
	op := func() error {
		seq, err := c.nextSequence(ctx, "snippet")
		if err != nil {
			return retryableOrPermanent(err)
		}

		results, err := surrealdb.Query[[]snippetRow](ctx, c.db, `
			CREATE type::record("snippet", $seq) SET
				seq = $seq,
				text = $text,
				embedding = $embedding,
				created = time::now()
			RETURN seq, text, created
		`, map[string]any{"seq": seq, "text": text, "embedding": embedding})
		if err != nil {
			return retryableOrPermanent(fmt.Errorf("create snippet: %w", wrapQueryError(err)))
		}

		rows := first(results)
		if len(rows) == 0 {
			return backoff.Permanent(fmt.Errorf("create snippet: no result returned"))
		}
		snippet = models.KnowledgeSnippet{
			ID:        rows[0].Seq,
			Text:      rows[0].Text,
			Embedding: embedding,
			Created:   rows[0].Created,
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return models.KnowledgeSnippet{}, err
	}
	return snippet, nil
}

// Nearest returns the k snippets most similar to embedding by cosine
// similarity. Equal scores fall back to insertion order.
func (s *KnowledgeStore) Nearest(ctx context.Context, embedding []float32, k int) ([]models.ScoredSnippet, error) {
	c := s.client
	if err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if len(embedding) != c.cfg.EmbedDimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), c.cfg.EmbedDimension)
	}

	results, err := surrealdb.Query[[]snippetRow](ctx, c.db, `
		SELECT seq, text, created, vector::similarity::cosine(embedding, $embedding) AS score
		FROM snippet
		ORDER BY score DESC, seq ASC
		LIMIT $k
	`, map[string]any{"embedding": embedding, "k": k})
	if err != nil {
		return nil, fmt.Errorf("nearest snippets: %w", err)
	}

	rows := first(results)
	out := make([]models.ScoredSnippet, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.ScoredSnippet{
			KnowledgeSnippet: models.KnowledgeSnippet{ID: row.Seq, Text: row.Text, Created: row.Created},
			Score:            row.Score,
		})
	}
	return out, nil
}

// nextSequence atomically increments and returns the named counter.
func (c *Client) nextSequence(ctx context.Context, name string) (int64, error) {
	results, err := surrealdb.Query[[]int64](ctx, c.db, `
		UPSERT type::record("counter", $name) SET value = (value ?? 0) + 1 RETURN VALUE value
	`, map[string]any{"name": name})
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, wrapQueryError(err))
	}

	values := first(results)
	if len(values) == 0 {
		return 0, fmt.Errorf("next sequence %s: no value returned", name)
	}
	return values[0], nil
}

func retryableOrPermanent(err error) error {
	if isRetryable(err) {
		return err
	}
	return backoff.Permanent(err)
}
