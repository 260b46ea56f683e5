package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/tether/pkg/models"
)

// createCmd creates a new issue, queueing it as a pending change when
// the remote is unreachable.
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new issue",
	Long: `Create a new issue in a project.

Example:
  tether create -p ABC -t Task --title "Fix the widget" -d "It wobbles."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := cmd.Flags().GetString("project")
		if err != nil {
			return err
		}
		issueType, err := cmd.Flags().GetString("type")
		if err != nil {
			return err
		}
		title, err := cmd.Flags().GetString("title")
		if err != nil {
			return err
		}
		description, err := cmd.Flags().GetString("description")
		if err != nil {
			return err
		}
		assignee, err := cmd.Flags().GetString("assignee")
		if err != nil {
			return err
		}
		priority, err := cmd.Flags().GetString("priority")
		if err != nil {
			return err
		}
		labels, err := cmd.Flags().GetStringArray("label")
		if err != nil {
			return err
		}
		components, err := cmd.Flags().GetStringArray("component")
		if err != nil {
			return err
		}

		if project == "" || title == "" {
			return fmt.Errorf("both --project and --title are required")
		}

		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		issue, err := client.CreateIssue(context.Background(), models.CreateIssueInput{
			ProjectKey:  project,
			Type:        issueType,
			Title:       title,
			Description: description,
			Assignee:    assignee,
			Priority:    priority,
			Labels:      labels,
			Components:  components,
		})
		if err != nil {
			return err
		}

		if issue == nil {
			fmt.Println("Remote unreachable; create queued as a pending change")
			return nil
		}
		fmt.Printf("Created %s\n", issue.Key)
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("project", "p", "", "project key (required)")
	createCmd.Flags().StringP("type", "t", "Task", "issue type")
	createCmd.Flags().String("title", "", "issue summary line (required)")
	createCmd.Flags().StringP("description", "d", "", "issue description (plain text)")
	createCmd.Flags().StringP("assignee", "a", "", "assignee account id")
	createCmd.Flags().String("priority", "", "priority name")
	createCmd.Flags().StringArrayP("label", "l", nil, "label (repeatable)")
	createCmd.Flags().StringArrayP("component", "c", nil, "component name (repeatable)")
}
