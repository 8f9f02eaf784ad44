// Package main is the entry point for the hostwatch CLI.
//
// Hostwatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	hostwatch serve -c config.yaml    # Start the monitor and dashboard
//	hostwatch validate -c config.yaml # Validate configuration
//	hostwatch version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "hostwatch",
	Short: "A lightweight host metrics monitor",
	Long: `Hostwatch polls remote hosts for OS metrics over XML-RPC.

Each monitored host runs the hostwatch-agent binary. The monitor polls
the agents at configurable intervals, persists every metric, evaluates
static thresholds, and serves a real-time dashboard with Server-Sent
Events for live updates.

Quick start:
  1. Run hostwatch-agent on each host to monitor
  2. Create a config file (hostwatch.yaml)
  3. Run: hostwatch serve -c hostwatch.yaml
  4. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  poll_interval: 15s
  storage:
    url: sqlite://hostwatch.db
  agents:
    - name: web-01
      address: 10.0.0.5:9931`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this hostwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hostwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
