// Package cmd provides the command-line interface for the tether CLI tool.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/tether/internal/cache"
	"github.com/danielolaszy/tether/internal/config"
	"github.com/danielolaszy/tether/internal/jira"
	"github.com/danielolaszy/tether/internal/tracker"
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Tether works with JIRA issues, online or offline",
	Long: `Tether is a CLI tool for reading and changing JIRA issues through a
local cache. While the remote is reachable, reads and writes go straight
through and refresh the cache; when it is not, reads are served from the
cache and writes are queued as pending changes for later review.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(cacheCmd)
}

// newFacade wires configuration, the REST client and the cache store into
// a tracker facade. Callers own the returned client and must Close it.
func newFacade() (*tracker.Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	store, err := cache.New(cache.Config{
		Path:         cfg.Cache.Path,
		Expiry:       cfg.Cache.Expiry,
		SyncInterval: cfg.Cache.SyncInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache store: %v", err)
	}

	return tracker.New(jira.NewClient(cfg.Jira), store), nil
}
