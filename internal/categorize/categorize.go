// Package categorize assigns outreach-intent labels to emails with an LLM.
package categorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// ErrClassificationUnavailable is returned when the model cannot produce a label.
var ErrClassificationUnavailable = errors.New("classification unavailable")

// BodyPrefixChars is how much of the body is shown to the model.
const BodyPrefixChars = 1000

// DefaultTimeout bounds a single classification call.
const DefaultTimeout = 20 * time.Second

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Categorizer labels emails. Output is always one of the closed categories.
type Categorizer struct {
	model   Generator
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a categorizer. A zero timeout uses DefaultTimeout.
func New(model Generator, timeout time.Duration, logger *slog.Logger) *Categorizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{model: model, timeout: timeout, logger: logger}
}

// Categorize asks the model for a label at temperature 0.
// Unrecognized model output becomes Uncategorized, not an error.
func (c *Categorizer) Categorize(ctx context.Context, subject, body string) (models.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.model.Generate(ctx, BuildPrompt(subject, body), 0)
	if err != nil {
		return models.CategoryUncategorized, fmt.Errorf("%w: %w", ErrClassificationUnavailable, err)
	}

	category := models.ParseCategory(raw)
	c.logger.Debug("categorized",
		"category", category,
		"raw", models.Prefix(raw, 50),
		"duration_ms", time.Since(start).Milliseconds())
	return category, nil
}

// BuildPrompt renders the classification prompt.
func BuildPrompt(subject, body string) string {
	labels := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		labels = append(labels, string(c))
	}

	var sb strings.Builder
	sb.WriteString("Categorize this email into exactly one of these labels:\n")
	sb.WriteString(strings.Join(labels, ", "))
	sb.WriteString("\n\nAnswer with the label only.\n\n")
	sb.WriteString("Subject: ")
	sb.WriteString(subject)
	sb.WriteString("\nBody: ")
	sb.WriteString(models.Prefix(body, BodyPrefixChars))
	return sb.String()
}
