package cli

import (
	"fmt"

	"github.com/ctxguard/ctxguard/internal/diagnose"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/spf13/cobra"
)

func newCurrentCmd() *cobra.Command {
	var diag bool

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Print the current session id, or diagnose it with -d",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionPath, err := resolveCurrentSession()
			if err != nil {
				return err
			}

			if !diag {
				fmt.Fprintln(cmd.OutOrStdout(), baseSessionID(sessionPath))
				return nil
			}

			records, warnings, err := record.ReadFile(sessionPath)
			if err != nil {
				return badArgument("reading session: %v", err)
			}
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
			}

			app, err := loadApp()
			if err != nil {
				return badArgument("loading settings: %v", err)
			}
			report := diagnose.Diagnose(records, app.registry, app.optsFor)
			printDiagnoseReport(cmd, sessionPath, report)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&diag, "diagnose", "d", false, "print a full diagnosis instead of just the session id")
	return cmd
}
