// Package sessionid provides session ID formatting and transformation functions.
// This package has minimal dependencies to avoid import cycles.
package sessionid

import (
	"time"
)

// CheckpointID generates a date-prefixed checkpoint ID from an agent
// session UUID, so checkpoints and log files sort chronologically on
// disk. The format is: YYYY-MM-DD-<agent-session-uuid>.
func CheckpointID(agentSessionUUID string) string {
	return time.Now().Format("2006-01-02") + "-" + agentSessionUUID
}

// SourceSessionID extracts the agent session UUID from a checkpoint ID.
// The checkpoint ID format is: YYYY-MM-DD-<agent-session-uuid>.
// Returns the original string if it doesn't match the expected format.
func SourceSessionID(checkpointID string) string {
	// Expected format: YYYY-MM-DD-<agent-uuid> (11 chars prefix: "2026-01-23-")
	if len(checkpointID) > 11 && checkpointID[4] == '-' && checkpointID[7] == '-' && checkpointID[10] == '-' {
		return checkpointID[11:]
	}
	// Return as-is if not in expected format (backwards compatibility)
	return checkpointID
}
