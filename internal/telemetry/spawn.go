package telemetry

import (
	"os"
	"os/exec"
)

// spawnDetachedAnalytics re-invokes the current binary with the hidden
// __send_analytics subcommand, passing the event payload as its sole
// argument, then detaches so the CLI can exit without waiting on the
// network round-trip.
func spawnDetachedAnalytics(payloadJSON string) {
	exe, err := os.Executable()
	if err != nil {
		return
	}

	cmd := exec.Command(exe, "__send_analytics", payloadJSON) //nolint:gosec // fixed subcommand, payload is our own JSON
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	// Best-effort: a failure to start just means this command's telemetry
	// is dropped, which is always acceptable for analytics.
	_ = cmd.Start()
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}
}
