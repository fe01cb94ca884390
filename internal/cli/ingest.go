package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/reachbox/internal/models"
	"github.com/raphaelgruber/reachbox/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json>",
	Short: "Run emails from a JSON file through the pipeline",
	Long: `Categorize, index, vectorize and (for interested leads) notify on
emails read from a JSON file holding one email object or an array of them.

Re-ingesting an email with the same account and uid replaces the indexed
record.

Example:
  reachbox ingest inbox-export.json`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	emails, err := readEmails(args[0])
	if err != nil {
		return err
	}

	a, err := getApp(ctx)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	var failed int
	for _, e := range emails {
		outcome, err := a.Worker.Process(ctx, e)
		if err != nil {
			return fmt.Errorf("process %s: %w", e.Key(), err)
		}
		printOutcome(outcome)
		if !outcome.OK() {
			failed++
		}
	}

	fmt.Println()
	summary := fmt.Sprintf("Processed %d emails, %d with failures", len(emails), failed)
	if failed > 0 {
		fmt.Println(theme.errorStyle().Render(summary))
		return nil
	}
	fmt.Println(theme.completedStyle().Render(summary))
	return nil
}

func readEmails(path string) ([]models.EmailRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var emails []models.EmailRecord
		if err := json.Unmarshal(data, &emails); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return emails, nil
	}

	var email models.EmailRecord
	if err := json.Unmarshal(data, &email); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return []models.EmailRecord{email}, nil
}

func printOutcome(o pipeline.Outcome) {
	label := theme.categoryStyle(o.Category).Render(o.Category.DisplayName())
	switch {
	case o.OK() && o.Notified:
		fmt.Printf("%s %s %s (notified)\n", theme.completedStyle().Render("✓"), o.Key, label)
	case o.OK():
		fmt.Printf("%s %s %s\n", theme.completedStyle().Render("✓"), o.Key, label)
	default:
		fmt.Printf("%s %s %s: %s failed: %v\n", theme.errorStyle().Render("✗"), o.Key, label, o.Stage, o.Cause)
	}

	if verbose {
		for _, s := range o.Stages {
			line := fmt.Sprintf("    %s %dms", s.Stage, s.DurationMs)
			if s.Err != nil {
				line += ": " + s.Err.Error()
			}
			fmt.Println(theme.hintStyle().Render(line))
		}
	}
}
