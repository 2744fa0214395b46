package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var addInstances bool

// rootCmd runs the long-lived crawl daemon when invoked with no flags,
// matching the teacher's single-binary layout. --add-instances switches
// it into a one-shot seed-intake mode instead (spec.md §4.6).
var rootCmd = &cobra.Command{
	Use:   "fediwatch",
	Short: "Crawls and tracks the liveness of fediverse instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addInstances {
			return runAddInstances(cmd, args)
		}
		return runDaemon(cmd, args)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&addInstances, "add-instances", false,
		"read candidate hostnames from stdin, one per line, and seed them into the store")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fediwatch: %v\n", err)
		os.Exit(1)
	}
}
