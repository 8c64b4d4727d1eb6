// Package cli wires ctxguard's cobra command tree onto the internal
// record/strategy/diagnose/team/guard packages.
package cli

import (
	"fmt"
	"runtime"

	"github.com/ctxguard/ctxguard/internal/logging"
	"github.com/ctxguard/ctxguard/internal/settings"
	"github.com/ctxguard/ctxguard/internal/telemetry"
	"github.com/ctxguard/ctxguard/internal/versioncheck"
	"github.com/spf13/cobra"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const gettingStarted = `

Getting Started:
  Run 'ctxguard guard' inside a host coding agent session to keep its
  transcript under budget automatically, or 'ctxguard diagnose current'
  to see where the bloat is right now.

`

// NewRootCmd builds the ctxguard command tree.
func NewRootCmd() *cobra.Command {
	logging.SetLogLevelGetter(func() string {
		cfg, err := settings.Load()
		if err != nil || cfg == nil {
			return ""
		}
		return cfg.LogLevel
	})

	cmd := &cobra.Command{
		Use:           "ctxguard",
		Short:         "Keep a long-running coding agent's transcript under budget",
		Long:          "ctxguard watches a host coding agent's session transcript and prunes it before it blows the context window." + gettingStarted,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			sessionID := "cli"
			if cur, err := resolveCurrentSession(); err == nil && cur != "" {
				sessionID = sessionIDForLogging(cur)
			}
			_ = logging.Init(sessionID)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			defer logging.Close()

			cfg, err := settings.Load()
			prescription := settings.DefaultPrescriptionName
			guardEnabled := true
			telemetryOn := false
			if err == nil {
				prescription = cfg.Prescription
				guardEnabled = cfg.Enabled
				telemetryOn = cfg.Telemetry != nil && *cfg.Telemetry
			}

			if telemetryOn {
				telemetry.TrackCommandDetached(cmd, prescription, "auto", guardEnabled, Version)
			}

			versioncheck.CheckAndNotify(cmd, Version)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newCurrentCmd())
	cmd.AddCommand(newDiagnoseCmd())
	cmd.AddCommand(newTreatCmd())
	cmd.AddCommand(newStrategyCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newCheckpointCmd())
	cmd.AddCommand(newGuardCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newFormularyCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSendAnalyticsCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("ctxguard %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// sessionIDForLogging strips a transcript path down to its bare session
// id so the logger's filename matches the checkpoint/lock naming scheme.
func sessionIDForLogging(sessionPathOrID string) string {
	return baseSessionID(sessionPathOrID)
}
