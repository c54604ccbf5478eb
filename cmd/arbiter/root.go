package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "arbiter",
		Short: "Confidence-gated action approval engine",
		Long: `Arbiter - Confidence-Gated Action Approval Engine

Arbiter sits between autonomous detection agents and the systems that
carry out security responses. Each proposed action (isolate a host,
block an IP, disable an account) is scored, classified against
configurable confidence thresholds, and either executed immediately,
queued for human review, or recorded for audit only. Every state
transition lands in an append-only audit trail.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Arbiter {{.Version}} - Confidence-Gated Action Approval Engine
`)
}
