package knowledge

import (
	"math"
	"sort"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// CosineSimilarity computes cosine similarity between two vectors.
// Returns 0.0 for zero-norm vectors or mismatched lengths.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores candidates against target and returns the top k,
// best first. Equal scores keep ascending ID order.
func Rank(target []float32, candidates []models.KnowledgeSnippet, k int) []models.ScoredSnippet {
	scored := make([]models.ScoredSnippet, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, models.ScoredSnippet{
			KnowledgeSnippet: c,
			Score:            CosineSimilarity(target, c.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
