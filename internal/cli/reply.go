package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/reachbox/internal/models"
)

var (
	replySubject string
	replyBody    string
	replyAccount string
	replyUID     string
)

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Draft a reply grounded in the knowledge base",
	Long: `Draft a reply to an email using the closest knowledge base snippet.

The email is taken from an indexed record (--account and --uid), from
--subject and --body, or with --body - read from stdin.

Examples:
  reachbox reply --account sales@example.com --uid 4711
  reachbox reply --subject "Pricing?" --body "Can you send me a booking link?"
  cat message.txt | reachbox reply --subject "Re: demo" --body -`,
	Args: cobra.NoArgs,
	RunE: runReply,
}

func init() {
	replyCmd.Flags().StringVarP(&replySubject, "subject", "s", "", "email subject")
	replyCmd.Flags().StringVarP(&replyBody, "body", "b", "", "email body, or - for stdin")
	replyCmd.Flags().StringVar(&replyAccount, "account", "", "account of an indexed email")
	replyCmd.Flags().StringVar(&replyUID, "uid", "", "uid of an indexed email")
}

func runReply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := getApp(ctx)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	email := models.EmailRecord{Subject: replySubject, Body: replyBody}
	switch {
	case replyAccount != "" && replyUID != "":
		stored, err := a.DB.GetEmail(ctx, models.Key{Account: replyAccount, UID: replyUID})
		if err != nil {
			return fmt.Errorf("load email: %w", err)
		}
		if stored == nil {
			return fmt.Errorf("email %s/%s not found", replyAccount, replyUID)
		}
		email = *stored
	case replyBody == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		email.Body = string(data)
	case replyBody == "":
		return fmt.Errorf("either --body or --account and --uid are required")
	}

	text, err := a.Reply.SuggestReply(ctx, email)
	if err != nil {
		return err
	}

	fmt.Println(theme.statusStyle().Render("Suggested reply:"))
	fmt.Println()
	fmt.Println(text)
	return nil
}
