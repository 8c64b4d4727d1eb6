package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoctorCmd_DefaultRunPrintsFindings(t *testing.T) {
	cmd := newDoctorCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.RunE(cmd, nil))
	require.Contains(t, out.String(), "settings")
	require.Contains(t, out.String(), "checkpoint-dir")
	require.Contains(t, out.String(), "lock-files")
}

func TestIsInteractive_FalseForBuffer(t *testing.T) {
	cmd := newDoctorCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.False(t, isInteractive(cmd))
}
