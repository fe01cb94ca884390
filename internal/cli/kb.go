package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/reachbox/internal/knowledge"
)

var kbQueryLimit int

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the reply knowledge base",
}

var kbAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a snippet to the knowledge base",
	Example: `  reachbox kb add "For interested leads, share the booking link: https://cal.com/example"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := getApp(ctx)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}

		snippet, err := a.Knowledge.Add(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(theme.completedStyle().Render(fmt.Sprintf("Added snippet %d", snippet.ID)))
		return nil
	},
}

var kbSeedCmd = &cobra.Command{
	Use:   "seed [file.yaml]",
	Short: "Add every snippet from a seed file",
	Long: `Add every snippet from a YAML seed file:

  snippets:
    - text: "Our product helps with cold outreach automation."

Without a file, KNOWLEDGE_SEED is used, then the built-in default snippet.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		path := cfg.KnowledgeSeed
		if len(args) == 1 {
			path = args[0]
		}
		texts, err := knowledge.SeedTexts(path)
		if err != nil {
			return err
		}

		a, err := getApp(ctx)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}

		n, err := a.Knowledge.Seed(ctx, texts)
		if err != nil {
			return err
		}
		fmt.Println(theme.completedStyle().Render(fmt.Sprintf("Added %d snippets", n)))
		return nil
	},
}

var kbQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Show the snippets closest to a text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := getApp(ctx)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}

		results, err := a.Knowledge.QueryNearest(ctx, strings.Join(args, " "), kbQueryLimit)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%s %s\n", theme.hintStyle().Render(fmt.Sprintf("#%d %.3f", r.ID, r.Score)), r.Text)
		}
		return nil
	},
}

func init() {
	kbQueryCmd.Flags().IntVarP(&kbQueryLimit, "limit", "n", 3, "max snippets")

	kbCmd.AddCommand(kbAddCmd)
	kbCmd.AddCommand(kbSeedCmd)
	kbCmd.AddCommand(kbQueryCmd)
}
