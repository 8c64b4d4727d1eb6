package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ctxguard/ctxguard/internal/iostore"
	"github.com/ctxguard/ctxguard/internal/paths"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/ctxguard/ctxguard/internal/team"
	"github.com/spf13/cobra"
)

// newReloadCmd builds the one-shot equivalent of a guard-triggered
// HARD_FIRED cycle: prune the current session with team-protect and write
// it back, then hand off to the out-of-scope terminal-spawning helper
// (see spec §1) to actually kill and resume the host-agent process — this
// command only guarantees the transcript is ready for that handoff.
func newReloadCmd() *cobra.Command {
	var prescriptionName string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Prune the current session in place and prepare it for a host-agent resume",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validatePrescriptionName(prescriptionName); err != nil {
				return err
			}

			sessionPath, err := resolveCurrentSession()
			if err != nil {
				return err
			}

			app, err := loadApp()
			if err != nil {
				return badArgument("loading settings: %v", err)
			}
			prescription, err := prescriptionFor(app.registry, prescriptionName)
			if err != nil {
				return err
			}
			prescription.Strategies = app.enabledStrategies(prescription.Strategies)

			records, warnings, err := record.ReadFile(sessionPath)
			if err != nil {
				return badArgument("reading session: %v", err)
			}
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
			}

			state := team.Extract(records)
			pruned, reports, err := team.Protect(app.registry, prescription, records, state, app.optsFor)
			if err != nil {
				return fmt.Errorf("applying %s: %w", prescriptionName, err)
			}

			printTreatSummary(cmd, prescriptionName, records, pruned, reports)

			data, err := record.Serialize(pruned)
			if err != nil {
				return fmt.Errorf("serializing pruned transcript: %w", err)
			}
			backupPath, err := iostore.BackupAndWrite(context.Background(), sessionPath, data, time.Now())
			if err != nil {
				return fmt.Errorf("writing session: %w", err)
			}

			checkpointPath, err := paths.AbsPath(paths.CheckpointFile)
			if err != nil {
				checkpointPath = paths.CheckpointFile
			}
			if _, err := iostore.BackupAndWrite(context.Background(), checkpointPath, []byte(team.RenderCheckpoint(state)), time.Now()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: writing checkpoint: %v\n", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nwrote %s (backup: %s)\n", sessionPath, backupPath)
			fmt.Fprintln(cmd.OutOrStdout(), "transcript pruned; resume your host-agent session to pick up the change")
			return nil
		},
	}

	// --rx: spec §6 writes this as "-rx"; see flags.go's validTiers doc.
	cmd.Flags().StringVar(&prescriptionName, "rx", "standard", "prescription to apply: gentle, standard, or aggressive")
	return cmd
}
