// Package main is the entry point for the hostwatch agent.
//
// The agent runs on each monitored host and answers XML-RPC calls from the
// hostwatch monitor: Ping, GetMetrics, GetCPUUsage, GetTemperature,
// GetSecurityStatus and GetStatus.
//
// Usage:
//
//	hostwatch-agent --port 9931
//	hostwatch-agent --host 10.0.0.5 --port 9931 --disk-path /data
//
// Settings can also come from environment variables (HOSTWATCH_AGENT_HOST,
// HOSTWATCH_AGENT_PORT, HOSTWATCH_AGENT_DISK_PATH), loaded from a .env file
// if one is present in the working directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pkeller/hostwatch/internal/agentsrv"
	"github.com/pkeller/hostwatch/internal/sysinfo"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "hostwatch-agent",
	Short: "Metrics agent for hostwatch",
	Long: `The hostwatch agent exposes this host's metrics over XML-RPC.

It answers the methods the hostwatch monitor polls: CPU usage, CPU
temperature, load averages, memory, disk and security heuristics. Run one
agent per monitored host and register its address with the monitor.`,
	RunE: runAgent,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hostwatch-agent %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

// the .env file must be loaded before flag defaults are computed in init
var _ = godotenv.Load()

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().String("host", envOr("HOSTWATCH_AGENT_HOST", "0.0.0.0"), "address to listen on")
	rootCmd.Flags().String("port", envOr("HOSTWATCH_AGENT_PORT", "9931"), "port to listen on")
	rootCmd.Flags().String("disk-path", envOr("HOSTWATCH_AGENT_DISK_PATH", "/"), "mount point measured for disk usage")
}

// envOr returns the environment value for key, or fallback when unset.
// A .env file in the working directory is loaded first, if present.
func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetString("port")
	diskPath, _ := cmd.Flags().GetString("disk-path")
	addr := net.JoinHostPort(host, port)

	probe := sysinfo.NewProbe(diskPath)
	server := agentsrv.NewServer(addr, probe, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	logger.Info("agent started", "addr", addr, "disk_path", diskPath, "version", version)

	<-ctx.Done()
	logger.Info("agent stopped")
	return nil
}
