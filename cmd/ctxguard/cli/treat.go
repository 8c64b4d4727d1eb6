package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/iostore"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/ctxguard/ctxguard/internal/strategy"
	"github.com/spf13/cobra"
)

func newTreatCmd() *cobra.Command {
	var prescriptionName string
	var execute bool
	var thinkingMode string

	cmd := &cobra.Command{
		Use:   "treat <session>",
		Short: "Apply a prescription to a session transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			if err := validatePrescriptionName(prescriptionName); err != nil {
				return err
			}
			if err := validateThinkingMode(thinkingMode); err != nil {
				return err
			}

			sessionPath, err := resolveSession(arg)
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
			optsFor := optsForWithThinkingMode(app.optsFor, thinkingMode)

			records, warnings, err := record.ReadFile(sessionPath)
			if err != nil {
				return badArgument("reading session: %v", err)
			}
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
			}

			pruned, reports, err := strategy.Run(app.registry, prescription, records, optsFor)
			if err != nil {
				return fmt.Errorf("applying %s: %w", prescriptionName, err)
			}

			printTreatSummary(cmd, prescriptionName, records, pruned, reports)

			if !execute {
				fmt.Fprintln(cmd.OutOrStdout(), "\ndry run: pass --execute to write these changes")
				return nil
			}

			backupPath, err := iostore.BackupAndWrite(context.Background(), sessionPath, mustSerialize(pruned), time.Now())
			if err != nil {
				return fmt.Errorf("writing session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nwrote %s (backup: %s)\n", sessionPath, backupPath)
			return nil
		},
	}

	// --rx: spec §6 writes this as "-rx"; see flags.go's validTiers doc.
	cmd.Flags().StringVar(&prescriptionName, "rx", "standard", "prescription to apply: gentle, standard, or aggressive")
	cmd.Flags().BoolVar(&execute, "execute", false, "write the pruned transcript instead of previewing it")
	cmd.Flags().StringVar(&thinkingMode, "thinking-mode", "", "override thinking-blocks mode: remove, truncate, or signature-only")
	return cmd
}

func mustSerialize(records []record.Record) []byte {
	data, err := record.Serialize(records)
	if err != nil {
		return nil
	}
	return data
}

func printTreatSummary(cmd *cobra.Command, prescriptionName string, before, after []record.Record, reports []action.Report) {
	out := cmd.OutOrStdout()
	bytesBefore := record.TotalBytes(before)
	bytesAfter := record.TotalBytes(after)
	fmt.Fprintf(out, "prescription: %s\n", prescriptionName)
	fmt.Fprintf(out, "records: %d -> %d\n", len(before), len(after))
	fmt.Fprintf(out, "bytes:   %s -> %s (saved %s)\n", formatBytes(bytesBefore), formatBytes(bytesAfter), formatBytes(bytesBefore-bytesAfter))
	for _, r := range reports {
		fmt.Fprintf(out, "  dropped=%d replaced=%d skipped=%d orphaned=%d\n", r.Dropped, r.Replaced, len(r.Skipped), len(r.Orphaned))
		for name, saved := range r.PerStrategy {
			fmt.Fprintf(out, "    %-24s saved %s\n", name, formatBytes(saved))
		}
	}
}
