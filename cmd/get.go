package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/tether/pkg/models"
)

// getCmd fetches a single issue in the requested projection.
var getCmd = &cobra.Command{
	Use:   "get ISSUE-KEY",
	Short: "Show an issue",
	Long: `Show a single issue by key.

The --mode flag controls how much detail is fetched and printed:
summary (key, title, status and type), details (adds description,
people, priority and labels) or full (adds components, comments and
available transitions).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, err := cmd.Flags().GetString("mode")
		if err != nil {
			return err
		}
		mode := models.FetchMode(modeFlag)
		if !mode.Valid() {
			return fmt.Errorf("invalid mode %q (want summary, details or full)", modeFlag)
		}

		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		issue, err := client.GetIssue(context.Background(), args[0], mode)
		if err != nil {
			return err
		}
		if issue == nil {
			return fmt.Errorf("issue %s not found", args[0])
		}

		printIssue(issue)
		if client.Offline() {
			fmt.Println("\n(served from local cache; remote unreachable)")
		}
		return nil
	},
}

func init() {
	getCmd.Flags().StringP("mode", "m", "summary", "fetch mode: summary, details or full")
}

func printIssue(issue *models.Issue) {
	fmt.Printf("%s  %s\n", issue.Key, issue.Title)
	fmt.Printf("  Status: %s  Type: %s\n", issue.Status, issue.Type)

	if issue.Mode == models.ModeSummary {
		return
	}

	if issue.Description != "" {
		fmt.Printf("  Description:\n    %s\n", strings.ReplaceAll(issue.Description, "\n", "\n    "))
	}
	if issue.Assignee != nil {
		fmt.Printf("  Assignee: %s\n", issue.Assignee.DisplayName)
	}
	if issue.Reporter != nil {
		fmt.Printf("  Reporter: %s\n", issue.Reporter.DisplayName)
	}
	if issue.Priority != "" {
		fmt.Printf("  Priority: %s\n", issue.Priority)
	}
	if len(issue.Labels) > 0 {
		fmt.Printf("  Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if !issue.Updated.IsZero() {
		fmt.Printf("  Updated: %s\n", issue.Updated.Format("2006-01-02 15:04"))
	}

	if issue.Mode == models.ModeDetails {
		return
	}

	if len(issue.Components) > 0 {
		fmt.Printf("  Components: %s\n", strings.Join(issue.Components, ", "))
	}
	if len(issue.Comments) > 0 {
		fmt.Printf("  Comments (%d):\n", len(issue.Comments))
		for _, comment := range issue.Comments {
			fmt.Printf("    [%s] %s\n", comment.Author.DisplayName, comment.Body)
		}
	}
	if len(issue.Transitions) > 0 {
		names := make([]string, 0, len(issue.Transitions))
		for _, t := range issue.Transitions {
			names = append(names, t.Name)
		}
		fmt.Printf("  Transitions: %s\n", strings.Join(names, ", "))
	}
}
