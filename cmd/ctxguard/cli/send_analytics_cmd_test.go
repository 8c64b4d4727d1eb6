package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendAnalyticsCmd_HiddenAndBestEffort(t *testing.T) {
	cmd := newSendAnalyticsCmd()
	require.True(t, cmd.Hidden)

	// Malformed payloads are dropped silently, never surfaced as an error —
	// telemetry is always best-effort.
	require.NoError(t, cmd.RunE(cmd, []string{"not valid json"}))
}
