package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/iostore"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/spf13/cobra"
)

func newStrategyCmd() *cobra.Command {
	var verbose bool
	var execute bool
	var thinkingMode string

	cmd := &cobra.Command{
		Use:   "strategy <name> <session>",
		Short: "Run a single named strategy against a session transcript",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			arg := ""
			if len(args) == 2 {
				arg = args[1]
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
			if _, ok := app.registry.Get(name); !ok {
				return badArgument("unknown strategy %q", name)
			}
			optsFor := optsForWithThinkingMode(app.optsFor, thinkingMode)

			records, warnings, err := record.ReadFile(sessionPath)
			if err != nil {
				return badArgument("reading session: %v", err)
			}
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
			}

			prescription := action.Prescription{Name: name, Strategies: []string{name}}
			pruned, reports, err := app.strategyRun(prescription, records, optsFor)
			if err != nil {
				return fmt.Errorf("applying %s: %w", name, err)
			}

			printTreatSummary(cmd, name, records, pruned, reports)
			if verbose {
				printVerboseSkips(cmd, reports)
			}

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

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show each skipped/orphaned action in detail")
	cmd.Flags().BoolVar(&execute, "execute", false, "write the pruned transcript instead of previewing it")
	cmd.Flags().StringVar(&thinkingMode, "thinking-mode", "", "override thinking-blocks mode: remove, truncate, or signature-only")
	return cmd
}

func printVerboseSkips(cmd *cobra.Command, reports []action.Report) {
	out := cmd.OutOrStdout()
	for _, r := range reports {
		for _, s := range r.Skipped {
			fmt.Fprintf(out, "  skipped %s (%s): %s\n", s.Action.Kind, s.Action.UUID, s.Reason)
		}
		for _, o := range r.Orphaned {
			fmt.Fprintf(out, "  orphaned %s (missing parent %s)\n", o.RecordUUID, o.MissingParentUUID)
		}
	}
}
