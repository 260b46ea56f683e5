package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// cacheCmd groups local cache maintenance commands.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache counters and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		stats, err := client.CacheStats()
		if err != nil {
			return err
		}
		state, err := client.SyncState()
		if err != nil {
			return err
		}

		fmt.Printf("Cached issues:   %d\n", stats.IssueCount)
		fmt.Printf("Cached searches: %d\n", stats.SearchCount)
		if !stats.OldestCachedAt.IsZero() {
			fmt.Printf("Oldest entry:    %s\n", stats.OldestCachedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Newest entry:    %s\n", stats.NewestCachedAt.Format("2006-01-02 15:04:05"))
		}
		if state.LastSyncAt.IsZero() {
			fmt.Println("Last sync:       never")
		} else {
			fmt.Printf("Last sync:       %s (%s)\n",
				state.LastSyncAt.Format("2006-01-02 15:04:05"), state.LastSyncStatus)
		}
		fmt.Printf("Pending changes: %d\n", len(state.PendingChanges))
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove expired cache records",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		removed, err := client.CleanCache()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired records\n", removed)
		return nil
	},
}

var cachePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List changes queued while offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		clearAfter, err := cmd.Flags().GetBool("clear")
		if err != nil {
			return err
		}

		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		changes, err := client.PendingChanges()
		if err != nil {
			return err
		}

		if len(changes) == 0 {
			fmt.Println("No pending changes")
			return nil
		}
		for i, change := range changes {
			key := change.Key
			if key == "" {
				key = "(new issue)"
			}
			fmt.Printf("%d. %-10s %-12s %s\n", i+1,
				change.Kind, key, change.Timestamp.Format("2006-01-02 15:04:05"))
		}

		if clearAfter {
			if err := client.ClearPendingChanges(); err != nil {
				return err
			}
			fmt.Printf("Cleared %d pending changes\n", len(changes))
		}
		return nil
	},
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh every cached issue from the remote now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFacade()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Sync(context.Background()); err != nil {
			return err
		}
		fmt.Println("Sync complete")
		return nil
	},
}

func init() {
	cachePendingCmd.Flags().Bool("clear", false, "clear the queue after listing it")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
	cacheCmd.AddCommand(cachePendingCmd)
	cacheCmd.AddCommand(cacheSyncCmd)
}
