// Package reply drafts replies grounded in the knowledge base.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/reachbox/internal/knowledge"
	"github.com/raphaelgruber/reachbox/internal/models"
)

// ErrReplyUnavailable is returned when no reply could be generated.
// There is no local fallback text.
var ErrReplyUnavailable = errors.New("reply unavailable")

const (
	// DefaultTemperature is the sampling temperature for drafts.
	DefaultTemperature = 0.7
	// DefaultTimeout bounds one generation call.
	DefaultTimeout = 60 * time.Second
	// BodyPrefixChars is how much of the body goes into the prompt.
	BodyPrefixChars = 1000
	// contextSnippets is the number of snippets retrieved per reply.
	contextSnippets = 1
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Retriever finds the snippets closest to a text.
type Retriever interface {
	QueryNearest(ctx context.Context, text string, k int) ([]models.ScoredSnippet, error)
}

// Engine drafts replies.
type Engine struct {
	model       Generator
	retriever   Retriever
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

// Config tunes an Engine. Zero values use the defaults.
type Config struct {
	Temperature float64
	// Timeout bounds each call on its own: the context lookup and the
	// generation.
	Timeout time.Duration
}

// New creates a reply engine.
func New(model Generator, retriever Retriever, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		model:       model,
		retriever:   retriever,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// SuggestReply drafts a reply to email. An empty knowledge base or a
// failed lookup yields a reply without grounding context.
func (e *Engine) SuggestReply(ctx context.Context, email models.EmailRecord) (string, error) {
	snippets := e.retrieve(ctx, email.Body)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, err := e.model.Generate(ctx, BuildPrompt(email, snippets), e.temperature)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrReplyUnavailable, err)
	}

	e.logger.Info("reply generated",
		"key", email.Key().String(),
		"context_snippets", len(snippets),
		"duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// retrieve looks up grounding context within the per-call timeout.
func (e *Engine) retrieve(ctx context.Context, body string) []models.ScoredSnippet {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	snippets, err := e.retriever.QueryNearest(ctx, body, contextSnippets)
	switch {
	case errors.Is(err, knowledge.ErrNoContextAvailable):
		e.logger.Debug("knowledge base empty, replying without context")
		return nil
	case err != nil:
		e.logger.Warn("context lookup failed, replying without context", "error", err)
		return nil
	}
	return snippets
}

// BuildPrompt renders the generation prompt. With no snippets the
// context section is omitted.
func BuildPrompt(email models.EmailRecord, snippets []models.ScoredSnippet) string {
	var sb strings.Builder
	if len(snippets) > 0 {
		sb.WriteString("Generate a professional reply to this email using the provided context.\n\n")
	} else {
		sb.WriteString("Generate a professional reply to this email.\n\n")
	}

	sb.WriteString("Email:\nSubject: ")
	sb.WriteString(email.Subject)
	sb.WriteString("\nBody: ")
	sb.WriteString(models.Prefix(email.Body, BodyPrefixChars))
	sb.WriteString("\n\n")

	if len(snippets) > 0 {
		sb.WriteString("Context:\n")
		for _, s := range snippets {
			sb.WriteString(s.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Suggested Reply:")
	return sb.String()
}
