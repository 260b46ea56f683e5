package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// commentCmd posts a plain-text comment on an issue.
var commentCmd = &cobra.Command{
	Use:   "comment ISSUE-KEY BODY",
	Short: "Add a comment to an issue",
	Long: `Add a comment to an issue. The body is plain text; paragraphs,
"- " bullet lists, numbered lists and **bold**/_italic_/` + "`code`" + ` marks
are converted to JIRA's rich-text format on the way out.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.AddComment(context.Background(), args[0], args[1]); err != nil {
			return err
		}

		if client.Offline() {
			fmt.Printf("Remote unreachable; comment on %s queued as a pending change\n", args[0])
			return nil
		}
		fmt.Printf("Commented on %s\n", args[0])
		return nil
	},
}
