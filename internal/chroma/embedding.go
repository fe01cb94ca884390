package chroma

import (
	"context"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// embeddingFunction adapts an Embedder to Chroma's embedding function.
type embeddingFunction struct {
	embedder Embedder
}

func (f *embeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	out := make([]embeddings.Embedding, 0, len(texts))
	for i, text := range texts {
		e, err := f.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *embeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	v, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbeddingFromFloat32(v), nil
}
