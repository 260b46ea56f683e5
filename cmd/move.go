package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// moveCmd transitions an issue to another workflow status.
var moveCmd = &cobra.Command{
	Use:   "move ISSUE-KEY TRANSITION",
	Short: "Transition an issue to another status",
	Long: `Transition an issue to another workflow status. TRANSITION is
either a transition id or a transition name (matched case-insensitively
against the transitions available on the issue).

Example:
  tether move ABC-123 "In Progress"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.TransitionIssue(context.Background(), args[0], args[1]); err != nil {
			return err
		}

		if client.Offline() {
			fmt.Printf("Remote unreachable; transition of %s queued as a pending change\n", args[0])
			return nil
		}
		fmt.Printf("Moved %s to %q\n", args[0], args[1])
		return nil
	},
}
