// Package main is the entry point for the sitterd CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "time/tzdata" // IANA zones for maintenance.timezone on minimal images
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "sitterd",
		Short:         "Background maintenance and notification scheduler for the pet-sitting app",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(root)
	root.AddCommand(
		versionCmd(),
		startCmd(opts),
		runCmd(opts),
		jobsCmd(opts),
		configCmd(opts),
		serviceCmd(opts),
	)
	return root
}
