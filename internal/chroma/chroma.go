// Package chroma stores per-account email embeddings in a Chroma collection.
package chroma

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/google/uuid"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContentStore is a Chroma-backed per-account content store.
// Every Add creates a new document, so re-ingested emails appear twice.
type ContentStore struct {
	client     chroma.Client
	collection chroma.Collection
	logger     *slog.Logger
}

// NewContentStore connects to baseURL and opens (or creates) the collection.
// Query texts are embedded with embedder so the collection never falls
// back to Chroma's bundled model.
func NewContentStore(ctx context.Context, baseURL, collection string, embedder Embedder, logger *slog.Logger) (*ContentStore, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}

	col, err := client.GetOrCreateCollection(ctx, collection,
		chroma.WithEmbeddingFunctionCreate(&embeddingFunction{embedder: embedder}),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}

	logger.Info("chroma content store ready", "url", baseURL, "collection", collection)
	return &ContentStore{client: client, collection: col, logger: logger}, nil
}

// Add stores one entry with its precomputed embedding.
func (s *ContentStore) Add(ctx context.Context, entry models.ContentEntry) error {
	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"account":  entry.Account,
		"uid":      entry.UID,
		"category": string(entry.Category),
	})
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}

	err = s.collection.Add(ctx,
		chroma.WithIDs(documentID(entry.Account, entry.UID)),
		chroma.WithTexts(entry.Text),
		chroma.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(entry.Embedding)),
		chroma.WithMetadatas(metadata),
	)
	if err != nil {
		return fmt.Errorf("add content: %w", err)
	}
	return nil
}

// Similar returns the uids of the account's emails closest to embedding, best first.
func (s *ContentStore) Similar(ctx context.Context, account string, embedding []float32, k int) ([]string, error) {
	results, err := s.collection.Query(ctx,
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(embedding)),
		chroma.WithNResults(k),
		chroma.WithWhereQuery(chroma.EqString("account", account)),
	)
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return nil, nil
	}

	groups := results.GetIDGroups()
	if len(groups) == 0 {
		return nil, nil
	}

	uids := make([]string, 0, len(groups[0]))
	for _, id := range groups[0] {
		if _, uid, ok := parseDocumentID(string(id)); ok {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

// Close releases the HTTP client.
func (s *ContentStore) Close() error {
	return s.client.Close()
}

// documentID is account|uid|random so repeated adds never collide.
func documentID(account, uid string) chroma.DocumentID {
	return chroma.DocumentID(account + "|" + uid + "|" + uuid.NewString())
}

func parseDocumentID(id string) (account, uid string, ok bool) {
	parts := strings.Split(id, "|")
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
