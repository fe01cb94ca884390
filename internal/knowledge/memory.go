package knowledge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// MemoryStore is a process-local Store. Contents are lost on restart,
// so it suits tests and single-process deployments seeded at startup.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	nextID    int64
	snippets  []models.KnowledgeSnippet
}

// NewMemoryStore creates an empty store for embeddings of the given size.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension, nextID: 1}
}

// Append stores a copy of embedding under the next ID.
func (s *MemoryStore) Append(ctx context.Context, text string, embedding []float32) (models.KnowledgeSnippet, error) {
	if len(embedding) != s.dimension {
		return models.KnowledgeSnippet{}, fmt.Errorf("dimension mismatch: got %d, want %d", len(embedding), s.dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snippet := models.KnowledgeSnippet{
		ID:        s.nextID,
		Text:      text,
		Embedding: append([]float32(nil), embedding...),
		Created:   time.Now().UTC(),
	}
	s.nextID++
	s.snippets = append(s.snippets, snippet)
	return snippet, nil
}

// Nearest ranks every stored snippet against embedding.
func (s *MemoryStore) Nearest(ctx context.Context, embedding []float32, k int) ([]models.ScoredSnippet, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(embedding), s.dimension)
	}

	s.mu.RLock()
	snapshot := append([]models.KnowledgeSnippet(nil), s.snippets...)
	s.mu.RUnlock()

	return Rank(embedding, snapshot, k), nil
}

// Len returns the number of stored snippets.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snippets)
}
