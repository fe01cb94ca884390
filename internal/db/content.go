package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/reachbox/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// ContentStore keeps email body embeddings per account in email_content.
// It is append-only; re-ingesting an email adds another entry.
type ContentStore struct {
	client *Client
}

// NewContentStore returns the SurrealDB-backed content store.
func NewContentStore(client *Client) *ContentStore {
	return &ContentStore{client: client}
}

// Add appends one entry.
func (s *ContentStore) Add(ctx context.Context, entry models.ContentEntry) error {
	c := s.client
	if err := c.ensureSchema(ctx); err != nil {
		return err
	}
	if len(entry.Embedding) != c.cfg.EmbedDimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Embedding), c.cfg.EmbedDimension)
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE email_content SET
			account = $account,
			uid = $uid,
			category = $category,
			text = $text,
			embedding = $embedding,
			created = time::now()
	`, map[string]any{
		"account":   entry.Account,
		"uid":       entry.UID,
		"category":  string(entry.Category),
		"text":      entry.Text,
		"embedding": entry.Embedding,
	})
	if err != nil {
		return fmt.Errorf("add content: %w", wrapQueryError(err))
	}
	return nil
}

// Similar returns the uids of the account's emails closest to embedding,
// best first. An email ingested several times may appear more than once.
func (s *ContentStore) Similar(ctx context.Context, account string, embedding []float32, k int) ([]string, error) {
	c := s.client
	if err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}

	results, err := surrealdb.Query[[]struct {
		UID string `json:"uid"`
	}](ctx, c.db, `
		SELECT uid, vector::similarity::cosine(embedding, $embedding) AS score
		FROM email_content
		WHERE account = $account
		ORDER BY score DESC
		LIMIT $k
	`, map[string]any{"account": account, "embedding": embedding, "k": k})
	if err != nil {
		return nil, fmt.Errorf("similar content: %w", err)
	}

	rows := first(results)
	uids := make([]string, 0, len(rows))
	for _, row := range rows {
		uids = append(uids, row.UID)
	}
	return uids, nil
}
