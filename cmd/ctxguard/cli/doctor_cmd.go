package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/ctxguard/ctxguard/internal/doctor"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newDoctorCmd() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Self-check ctxguard's own state: settings, checkpoint dir, stale guard locks",
		Long: `Runs the self-checks ctxguard's own packages can report on without a
running host agent attached: whether settings.json parses, whether the
per-project checkpoint directory exists and is writable, and whether any
guard lock file under the temp directory belongs to a process that is no
longer running. Deeper host-agent-specific checks are out of scope for
this command.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker := doctor.StubChecker{}

			if !fix {
				printFindings(cmd, checker.Check())
				return nil
			}

			if isInteractive(cmd) {
				proceed := true
				form := huh.NewForm(huh.NewGroup(
					huh.NewConfirm().
						Title("Apply fixes for anything doctor can repair?").
						Affirmative("Yes").
						Negative("No").
						Value(&proceed),
				))
				if err := form.Run(); err != nil {
					return fmt.Errorf("doctor --fix prompt: %w", err)
				}
				if !proceed {
					fmt.Fprintln(cmd.OutOrStdout(), "skipped")
					return nil
				}
			}

			printFindings(cmd, checker.Fix())
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "apply fixes for anything doctor can repair")
	return cmd
}

// isInteractive reports whether stdout is a terminal, the same guard the
// teacher's ACCESSIBLE-aware prompts use to skip interactive UI in CI or
// piped output.
func isInteractive(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func printFindings(cmd *cobra.Command, findings []doctor.DoctorFinding) {
	out := cmd.OutOrStdout()
	for _, f := range findings {
		fmt.Fprintf(out, "[%s] %-16s %s\n", f.Severity, f.Check, f.Message)
	}
}
