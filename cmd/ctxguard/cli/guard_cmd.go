package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/ctxguard/ctxguard/internal/guard"
	"github.com/ctxguard/ctxguard/internal/logging"
	"github.com/ctxguard/ctxguard/internal/paths"
	"github.com/spf13/cobra"
)

func newGuardCmd() *cobra.Command {
	var thresholdMB float64
	var softThresholdMB float64
	var thresholdTokens int
	var intervalSeconds int
	var prescriptionName string
	var noReload bool
	var noReactive bool
	var daemon bool

	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Watch the current session and keep it under its size/token budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if prescriptionName != "" {
				if err := validatePrescriptionName(prescriptionName); err != nil {
					return err
				}
			}

			sessionPath, err := resolveCurrentSession()
			if err != nil {
				return err
			}
			sessionID := baseSessionID(sessionPath)

			if daemon {
				return runGuardDaemon(cmd)
			}

			app, err := loadApp()
			if err != nil {
				return badArgument("loading settings: %v", err)
			}

			guardCfg := app.settings.Guard
			if thresholdMB > 0 {
				guardCfg.HardThresholdMB = thresholdMB
			}
			if softThresholdMB > 0 {
				guardCfg.SoftThresholdMB = softThresholdMB
			}
			if thresholdTokens > 0 {
				guardCfg.HardThresholdTokens = thresholdTokens
			}
			if intervalSeconds > 0 {
				guardCfg.PollIntervalSeconds = intervalSeconds
			}
			if prescriptionName != "" {
				guardCfg.HardPrescription = prescriptionName
			}
			if noReload {
				f := false
				guardCfg.ReloadEnabled = &f
			}
			if noReactive {
				f := false
				guardCfg.ReactiveEnabled = &f
			}

			checkpointPath, err := paths.AbsPath(paths.CheckpointFile)
			if err != nil {
				checkpointPath = paths.CheckpointFile
			}

			lockPath := guard.LockFilePath(os.TempDir(), sessionID)
			lock, err := guard.AcquireLock(lockPath)
			if err != nil {
				return guardRefused("another guard already watches session %s (%v)", sessionID, err)
			}
			defer func() { _ = lock.Release() }()

			loop := guard.NewLoop(guard.Config{
				SessionPath:    sessionPath,
				CheckpointPath: checkpointPath,
				Guard:          guardCfg,
				Registry:       app.registry,
				OptsFor:        app.optsFor,
				Reloader:       guard.ProcessReloader{},
			})

			fmt.Fprintf(cmd.OutOrStdout(), "guarding %s (hard=%.1fMB soft=%.1fMB interval=%ds)\n",
				sessionPath, guardCfg.HardThresholdMB, guardCfg.SoftThresholdMB, guardCfg.PollIntervalSeconds)

			if err := loop.Run(cmd.Context()); err != nil {
				return fmt.Errorf("guard loop: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&thresholdMB, "threshold", 0, "hard size threshold in MiB (default from settings, 50)")
	cmd.Flags().Float64Var(&softThresholdMB, "soft-threshold", 0, "soft size threshold in MiB (default 60% of hard)")
	cmd.Flags().IntVar(&thresholdTokens, "threshold-tokens", 0, "optional token-based hard threshold")
	cmd.Flags().IntVar(&intervalSeconds, "interval", 0, "poll interval in seconds (default 30)")
	// --rx: spec §6 writes this as "-rx"; see flags.go's validTiers doc.
	cmd.Flags().StringVar(&prescriptionName, "rx", "", "hard-fired prescription: gentle, standard, or aggressive (default standard)")
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "never kill and resume the host-agent process after a hard-fired prune")
	cmd.Flags().BoolVar(&noReactive, "no-reactive", false, "disable the sub-second reactive overflow watcher")
	cmd.Flags().BoolVar(&daemon, "daemon", false, "run detached in the background")
	return cmd
}

// runGuardDaemon re-invokes the current binary's `guard` subcommand
// (stripped of --daemon) as a detached background process, the same
// fire-and-forget pattern telemetry's detached analytics event uses, and
// prints the PID so the operator can track or kill it.
func runGuardDaemon(cmd *cobra.Command) error {
	if isInteractive(cmd) {
		background := true
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Run ctxguard guard in the background?").
				Description("No: stay attached to this terminal instead.").
				Affirmative("Background").
				Negative("Foreground").
				Value(&background),
		))
		if err := form.Run(); err != nil {
			return fmt.Errorf("guard --daemon prompt: %w", err)
		}
		if !background {
			return runGuardForeground(cmd)
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving ctxguard executable: %w", err)
	}

	args := daemonArgs(os.Args[1:])
	child := exec.Command(exe, args...) //nolint:gosec // re-exec of our own binary with our own flags minus --daemon
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stdin, child.Stdout, child.Stderr = nil, nil, nil

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting detached guard: %w", err)
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	logging.Info(cmd.Context(), "started detached guard", "pid", pid)
	fmt.Fprintf(cmd.OutOrStdout(), "guard running in background, pid %d\n", pid)
	return nil
}

// runGuardForeground re-runs the command with --daemon stripped so it
// blocks in the current terminal instead of detaching.
func runGuardForeground(cmd *cobra.Command) error {
	if err := cmd.Flags().Set("daemon", "false"); err != nil {
		return err
	}
	return cmd.RunE(cmd, nil)
}

// daemonArgs returns args with every --daemon flag removed, so the
// detached re-exec doesn't recurse into daemonizing itself again.
func daemonArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--daemon" || a == "--daemon=true" || a == "--daemon=false" {
			continue
		}
		out = append(out, a)
	}
	return out
}
