package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormularyCmd_ListsStrategiesAndPrescriptions(t *testing.T) {
	cmd := newFormularyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.RunE(cmd, nil))

	output := out.String()
	require.Contains(t, output, "progress-collapse")
	require.Contains(t, output, "envelope-strip")
	require.Contains(t, output, "gentle")
	require.Contains(t, output, "standard")
	require.Contains(t, output, "aggressive")
	require.Contains(t, output, "advisory savings")
}
