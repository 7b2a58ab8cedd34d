package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute is the entry point cobra hands control to; any error returned
// by a subcommand is printed and mapped to a nonzero exit code.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Drive a DOT-graph pipeline to completion with crash-safe checkpointing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}
