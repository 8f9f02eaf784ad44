package sysinfo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuspiciousCmdline(t *testing.T) {
	tests := []struct {
		cmdline string
		want    string
	}{
		{"nc -l -p 4444", "nc -l"},
		{"/usr/bin/netcat -l 8080", "netcat -l"},
		{"ncat -l --keep-open", "ncat -l"},
		{"python -m SimpleHTTPServer 8000", "python -m SimpleHTTPServer"},
		{"nginx -g daemon off;", ""},
		{"nc example.com 443", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.cmdline, func(t *testing.T) {
			assert.Equal(t, tt.want, suspiciousCmdline(tt.cmdline))
		})
	}
}

func TestCountFailedLogins(t *testing.T) {
	lines := []string{
		"Aug 24 11:58:01 host sshd[123]: Failed password for root from 203.0.113.7",
		"Aug 24 11:58:02 host sshd[123]: Accepted publickey for deploy",
		"Aug 24 11:58:03 host sshd[124]: pam_unix(sshd:auth): authentication failure; rhost=203.0.113.7",
		"Aug 24 11:58:04 host CRON[125]: session opened for user root",
		"Aug 24 11:58:05 host sshd[126]: Failed password for invalid user admin",
	}

	assert.Equal(t, 3, countFailedLogins(lines))
	assert.Equal(t, 0, countFailedLogins(nil))
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")

	var sb strings.Builder
	for i := 1; i <= 80; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	lines, err := tailLines(path, 50)
	require.NoError(t, err)
	require.Len(t, lines, 50)
	assert.Equal(t, "line 31", lines[0])
	assert.Equal(t, "line 80", lines[len(lines)-1])
}

func TestTailLines_ShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	require.NoError(t, os.WriteFile(path, []byte("only\ntwo\n"), 0o644))

	lines, err := tailLines(path, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"only", "two"}, lines)
}

func TestTailLines_MissingFile(t *testing.T) {
	_, err := tailLines(filepath.Join(t.TempDir(), "nope.log"), 50)
	assert.Error(t, err)
}

func TestScan_FailedLogins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")

	var sb strings.Builder
	for i := 0; i < failedLoginThreshold+3; i++ {
		fmt.Fprintf(&sb, "Aug 24 12:00:%02d host sshd[%d]: Failed password for root from 203.0.113.7\n", i, 100+i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	scanner := &SecurityScanner{authLogPaths: []string{path}}
	threats := scanner.Scan(context.Background())

	var found bool
	for _, threat := range threats {
		if threat.Type == "failed_logins" {
			found = true
			assert.Equal(t, "high", threat.Severity)
			assert.Contains(t, threat.Description, fmt.Sprintf("%d failed login", failedLoginThreshold+3))
			assert.False(t, threat.DetectedAt.IsZero())
		}
	}
	assert.True(t, found, "expected a failed_logins finding, got %+v", threats)
}

func TestScan_FailedLoginsBelowThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")

	var sb strings.Builder
	for i := 0; i < failedLoginThreshold; i++ {
		fmt.Fprintf(&sb, "Aug 24 12:00:%02d host sshd[%d]: Failed password for root\n", i, 100+i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	scanner := &SecurityScanner{authLogPaths: []string{path}}
	for _, threat := range scanner.Scan(context.Background()) {
		assert.NotEqual(t, "failed_logins", threat.Type,
			"count at the threshold must not fire (strictly greater required)")
	}
}

func TestScan_FallsBackToSecondLog(t *testing.T) {
	dir := t.TempDir()
	secure := filepath.Join(dir, "secure")

	var sb strings.Builder
	for i := 0; i < failedLoginThreshold+1; i++ {
		fmt.Fprintf(&sb, "Aug 24 12:00:%02d host sshd: authentication failure; rhost=203.0.113.7\n", i)
	}
	require.NoError(t, os.WriteFile(secure, []byte(sb.String()), 0o644))

	scanner := &SecurityScanner{authLogPaths: []string{
		filepath.Join(dir, "auth.log"), // does not exist
		secure,
	}}

	var found bool
	for _, threat := range scanner.Scan(context.Background()) {
		if threat.Type == "failed_logins" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestScan_NoAuthLog(t *testing.T) {
	scanner := &SecurityScanner{authLogPaths: []string{
		filepath.Join(t.TempDir(), "auth.log"),
	}}

	for _, threat := range scanner.Scan(context.Background()) {
		assert.NotEqual(t, "failed_logins", threat.Type)
	}
}
