package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkeller/hostwatch"
	"github.com/pkeller/hostwatch/internal/agentsrv"
	"github.com/pkeller/hostwatch/internal/sysinfo"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// a real agent reading this machine's metrics
	local := agentsrv.NewServer("127.0.0.1:9931", sysinfo.NewProbe("/"), logger)
	if err := local.Start(ctx); err != nil {
		slog.Error("failed to start local agent", "error", err)
		os.Exit(1)
	}

	// a synthetic agent whose CPU ramps up and down (see mock_agent.go),
	// crossing the default thresholds to demonstrate alerts
	mock := agentsrv.NewServer("127.0.0.1:9932", NewMockSource("demo-db"), logger)
	if err := mock.Start(ctx); err != nil {
		slog.Error("failed to start mock agent", "error", err)
		os.Exit(1)
	}

	localhost, _ := hostwatch.NewAgentTarget("this-machine", "127.0.0.1:9931",
		hostwatch.WithLabels("env", "demo", "kind", "real"),
	)
	demoDB, _ := hostwatch.NewAgentTarget("demo-db", "127.0.0.1:9932",
		hostwatch.WithLabels("env", "demo", "kind", "synthetic"),
		hostwatch.WithInterval(5*time.Second),
	)

	m, err := hostwatch.New(
		hostwatch.WithAgents(localhost, demoDB),
		hostwatch.WithPollInterval(5*time.Second),
		hostwatch.WithPort(8080),
		hostwatch.WithTitle("Hostwatch Demo"),
		hostwatch.WithStorageURL("file://demo-metrics.jsonl"),
		hostwatch.WithAlertCallback(func(a hostwatch.Alert) {
			fmt.Printf("  ALERT [%s] %s: %s\n", a.Severity, a.AgentName, a.Message)
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Hostwatch Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Agents:                                             ║")
	fmt.Println("  ║   • this-machine (real metrics, 127.0.0.1:9931)       ║")
	fmt.Println("  ║   • demo-db (synthetic, ramps CPU to fire alerts)     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	if err := m.Start(ctx); err != nil {
		slog.Error("hostwatch error", "error", err)
		os.Exit(1)
	}
}
