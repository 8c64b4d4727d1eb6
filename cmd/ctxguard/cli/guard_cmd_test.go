package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDaemonArgs_StripsDaemonFlag(t *testing.T) {
	require.Equal(t, []string{"guard", "--threshold", "50"}, daemonArgs([]string{"guard", "--daemon", "--threshold", "50"}))
	require.Equal(t, []string{"guard"}, daemonArgs([]string{"guard", "--daemon=true"}))
	require.Equal(t, []string{"guard"}, daemonArgs([]string{"guard", "--daemon=false"}))
	require.Equal(t, []string{"guard", "--rx", "gentle"}, daemonArgs([]string{"guard", "--rx", "gentle"}))
}

func TestNewGuardCmd_RegistersExpectedFlags(t *testing.T) {
	cmd := newGuardCmd()
	for _, name := range []string{"threshold", "soft-threshold", "threshold-tokens", "interval", "rx", "no-reload", "no-reactive", "daemon"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "expected --%s flag", name)
	}
}
