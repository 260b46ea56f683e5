// Package main is the entry point for the tether CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/tether/cmd"
	"github.com/danielolaszy/tether/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
