package cli

import (
	"github.com/ctxguard/ctxguard/internal/telemetry"
	"github.com/spf13/cobra"
)

// newSendAnalyticsCmd builds the hidden subcommand TrackCommandDetached
// re-invokes the binary as, passing the event payload as its sole
// argument so the parent process never blocks on the network round-trip.
func newSendAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "__send_analytics <payload>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			telemetry.SendEvent(args[0])
			return nil
		},
	}
	return cmd
}
