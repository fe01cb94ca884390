package models

import "time"

// KnowledgeSnippet is one curated piece of reference text used to ground replies.
// ID is assigned by the store, unique and increasing in insertion order.
type KnowledgeSnippet struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Created   time.Time `json:"created,omitempty"`
}

// ScoredSnippet pairs a snippet with its similarity to a query.
type ScoredSnippet struct {
	KnowledgeSnippet
	Score float64 `json:"score"`
}

// ContentEntry is an email body embedding kept in the per-account content store.
// Duplicates on re-ingestion are acceptable.
type ContentEntry struct {
	Account   string    `json:"account"`
	UID       string    `json:"uid"`
	Category  Category  `json:"category"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}
