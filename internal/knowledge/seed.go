package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSnippet is added when no seed file is configured.
const DefaultSnippet = "Our product helps with cold outreach automation. " +
	"For interested leads, share the booking link: https://cal.com/example"

// SeedFile is the YAML layout of a knowledge seed file:
//
//	snippets:
//	  - text: "Our product helps with cold outreach automation..."
type SeedFile struct {
	Snippets []struct {
		Text string `yaml:"text"`
	} `yaml:"snippets"`
}

// LoadSeed reads snippet texts from a YAML seed file.
func LoadSeed(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	texts := make([]string, 0, len(seed.Snippets))
	for _, s := range seed.Snippets {
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	return texts, nil
}

// Seed adds each text to the base, stopping at the first failure.
// It returns how many snippets were added.
func (b *Base) Seed(ctx context.Context, texts []string) (int, error) {
	for i, text := range texts {
		if _, err := b.Add(ctx, text); err != nil {
			return i, fmt.Errorf("seed snippet %d: %w", i, err)
		}
	}
	return len(texts), nil
}

// SeedIfEmpty seeds texts only when the store holds no snippets yet.
// It returns how many snippets were added.
func (b *Base) SeedIfEmpty(ctx context.Context, texts []string) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	_, err := b.QueryNearest(ctx, texts[0], 1)
	switch {
	case errors.Is(err, ErrNoContextAvailable):
		return b.Seed(ctx, texts)
	case err != nil:
		return 0, fmt.Errorf("check knowledge base: %w", err)
	}
	return 0, nil
}

// SeedTexts resolves the startup seed: the file at path when set,
// DefaultSnippet otherwise.
func SeedTexts(path string) ([]string, error) {
	if path == "" {
		return []string{DefaultSnippet}, nil
	}
	return LoadSeed(path)
}
