package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/reachbox/internal/models"
)

var (
	searchAccount  string
	searchFolder   string
	searchCategory string
	searchLimit    int
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search indexed email",
	Long: `Search indexed email by full text and filters.

Without text, the newest matching emails are listed first.
Filters are combined: every given filter must match.

Examples:
  reachbox search "demo tuesday"
  reachbox search --account sales@example.com --category Interested
  reachbox search pricing --folder INBOX -n 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchAccount, "account", "a", "", "filter by account")
	searchCmd.Flags().StringVarP(&searchFolder, "folder", "f", "", "filter by folder")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "filter by category")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "max results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	q := models.SearchQuery{
		Account: searchAccount,
		Folder:  searchFolder,
		Limit:   searchLimit,
	}
	if len(args) == 1 {
		q.Text = args[0]
	}
	if searchCategory != "" {
		category, err := models.LookupCategory(searchCategory)
		if err != nil {
			return err
		}
		q.Category = category
	}

	a, err := getApp(ctx)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	results, err := a.DB.SearchEmails(ctx, q)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	previewWidth := max(termWidth()-6, 20)
	for i, e := range results {
		fmt.Printf("%d. %s %s\n", i+1,
			theme.statusStyle().Render(e.Subject),
			theme.categoryStyle(e.Category).Render("["+e.Category.DisplayName()+"]"))
		fmt.Printf("   %s  %s  %s\n", e.From, e.Date.Format("2006-01-02 15:04"), theme.hintStyle().Render(e.Key().String()))
		if body := strings.Join(strings.Fields(e.Body), " "); body != "" {
			fmt.Printf("   %s\n", models.Preview(body, previewWidth))
		}
		if verbose {
			fmt.Printf("   folder: %s\n", e.Folder)
		}
		fmt.Println()
	}
	return nil
}
