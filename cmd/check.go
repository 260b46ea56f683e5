package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// checkCmd probes the remote and reports the resulting mode.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to the JIRA remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.CheckConnectivity(context.Background()); err != nil {
			fmt.Printf("Remote unreachable, operating offline: %v\n", err)
			return nil
		}
		fmt.Println("Remote reachable, operating online")
		return nil
	},
}
