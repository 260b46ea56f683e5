package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/tether/pkg/models"
)

// searchCmd runs a JQL query against the remote, falling back to the
// cached result for an equivalent query when offline.
var searchCmd = &cobra.Command{
	Use:   "search JQL",
	Short: "Search issues with a JQL query",
	Long: `Search issues with a JQL query.

Example:
  tether search 'project = ABC AND status = "In Progress"' --max-results 25
  tether search 'assignee = currentUser()' --all`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxResults, err := cmd.Flags().GetInt("max-results")
		if err != nil {
			return err
		}
		startAt, err := cmd.Flags().GetInt("start-at")
		if err != nil {
			return err
		}
		fetchAll, err := cmd.Flags().GetBool("all")
		if err != nil {
			return err
		}

		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Search(context.Background(), args[0], models.SearchOptions{
			MaxResults: maxResults,
			StartAt:    startAt,
			FetchAll:   fetchAll,
		})
		if err != nil {
			return err
		}

		for _, issue := range result.Issues {
			fmt.Printf("%-12s %-14s %s\n", issue.Key, issue.Status, issue.Title)
		}
		fmt.Printf("\n%d of %d issues", len(result.Issues), result.Total)
		if result.HasMore {
			fmt.Print(" (more available, use --all)")
		}
		fmt.Println()

		if client.Offline() {
			fmt.Println("(served from local cache; remote unreachable)")
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("max-results", 0, "page size (client default when 0)")
	searchCmd.Flags().Int("start-at", 0, "zero-based offset of the first result")
	searchCmd.Flags().Bool("all", false, "fetch every page of the result set")
}
