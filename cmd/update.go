package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/tether/pkg/models"
)

// updateCmd changes fields on an existing issue.
var updateCmd = &cobra.Command{
	Use:   "update ISSUE-KEY",
	Short: "Update fields on an issue",
	Long: `Update fields on an existing issue. Only the flags you pass are
changed; everything else is left untouched.

Example:
  tether update ABC-123 --title "New summary" --priority High`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		input := models.UpdateIssueInput{
			Title:       title,
			Description: description,
			Assignee:    assignee,
			Priority:    priority,
			Labels:      labels,
			Components:  components,
		}
		if title == "" && description == "" && assignee == "" && priority == "" &&
			len(labels) == 0 && len(components) == 0 {
			return fmt.Errorf("nothing to update; pass at least one field flag")
		}

		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.UpdateIssue(context.Background(), args[0], input); err != nil {
			return err
		}

		if client.Offline() {
			fmt.Printf("Remote unreachable; update to %s queued as a pending change\n", args[0])
			return nil
		}
		fmt.Printf("Updated %s\n", args[0])
		return nil
	},
}

func init() {
	updateCmd.Flags().String("title", "", "new summary line")
	updateCmd.Flags().StringP("description", "d", "", "new description (plain text)")
	updateCmd.Flags().StringP("assignee", "a", "", "new assignee account id")
	updateCmd.Flags().String("priority", "", "new priority name")
	updateCmd.Flags().StringArrayP("label", "l", nil, "replacement label set (repeatable)")
	updateCmd.Flags().StringArrayP("component", "c", nil, "replacement component set (repeatable)")
}
