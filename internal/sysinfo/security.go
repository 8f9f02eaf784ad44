package sysinfo

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/pkeller/hostwatch/internal/wire"
)

const (
	// authLogTail is how many trailing log lines are inspected per scan.
	authLogTail = 50

	// failedLoginThreshold is the failure count above which a brute-force
	// finding is reported.
	failedLoginThreshold = 10
)

// suspiciousCommands are cmdline fragments that indicate an ad-hoc listener
// or throwaway file server.
var suspiciousCommands = []string{
	"nc -l",
	"netcat -l",
	"ncat -l",
	"python -m SimpleHTTPServer",
}

// suspiciousPorts are well-known backdoor ports.
var suspiciousPorts = map[uint32]struct{}{
	31337: {},
	12345: {},
	54321: {},
}

// SecurityScanner runs heuristic checks for common signs of compromise:
// repeated failed logins, suspicious listener processes and listeners on
// known backdoor ports.
type SecurityScanner struct {
	// authLogPaths are checked in order; the first readable file wins.
	authLogPaths []string
}

// NewSecurityScanner creates a scanner with the standard auth log locations.
func NewSecurityScanner() *SecurityScanner {
	return &SecurityScanner{
		authLogPaths: []string{"/var/log/auth.log", "/var/log/secure"},
	}
}

// Scan runs all checks and returns the findings. A check that cannot run on
// this host (no auth log, no permissions) contributes nothing.
func (s *SecurityScanner) Scan(ctx context.Context) []wire.Threat {
	var threats []wire.Threat
	now := time.Now().UTC()

	if n := s.failedLogins(); n > failedLoginThreshold {
		threats = append(threats, wire.Threat{
			Type:        "failed_logins",
			Severity:    "high",
			Description: fmt.Sprintf("%d failed login attempts in recent auth log entries", n),
			DetectedAt:  now,
		})
	}

	threats = append(threats, s.suspiciousProcesses(ctx, now)...)
	threats = append(threats, s.suspiciousListeners(ctx, now)...)
	return threats
}

// failedLogins counts authentication failures in the tail of the first
// readable auth log.
func (s *SecurityScanner) failedLogins() int {
	for _, path := range s.authLogPaths {
		lines, err := tailLines(path, authLogTail)
		if err != nil {
			continue
		}
		return countFailedLogins(lines)
	}
	return 0
}

func (s *SecurityScanner) suspiciousProcesses(ctx context.Context, now time.Time) []wire.Threat {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil
	}

	var threats []wire.Threat
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		if match := suspiciousCmdline(cmdline); match != "" {
			threats = append(threats, wire.Threat{
				Type:        "suspicious_process",
				Severity:    "medium",
				Description: fmt.Sprintf("process %d matches %q: %s", p.Pid, match, cmdline),
				DetectedAt:  now,
			})
		}
	}
	return threats
}

func (s *SecurityScanner) suspiciousListeners(ctx context.Context, now time.Time) []wire.Threat {
	conns, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil
	}

	seen := make(map[uint32]struct{})
	var threats []wire.Threat
	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		if _, bad := suspiciousPorts[c.Laddr.Port]; !bad {
			continue
		}
		if _, dup := seen[c.Laddr.Port]; dup {
			continue
		}
		seen[c.Laddr.Port] = struct{}{}
		threats = append(threats, wire.Threat{
			Type:        "suspicious_port",
			Severity:    "high",
			Description: fmt.Sprintf("listener on known backdoor port %d", c.Laddr.Port),
			DetectedAt:  now,
		})
	}
	return threats
}

// suspiciousCmdline returns the matched fragment, or "" if the command line
// is clean.
func suspiciousCmdline(cmdline string) string {
	for _, frag := range suspiciousCommands {
		if strings.Contains(cmdline, frag) {
			return frag
		}
	}
	return ""
}

// countFailedLogins counts lines that look like authentication failures.
func countFailedLogins(lines []string) int {
	n := 0
	for _, line := range lines {
		if strings.Contains(line, "Failed password") || strings.Contains(line, "authentication failure") {
			n++
		}
	}
	return n
}

// tailLines returns up to n trailing lines of the file at path.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
