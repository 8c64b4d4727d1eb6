package cli

import (
	"fmt"
	"os"

	"github.com/ctxguard/ctxguard/internal/paths"
	"github.com/ctxguard/ctxguard/internal/team"
	"github.com/spf13/cobra"
)

func newCheckpointCmd() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Print the path to this project's team-state checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			checkpointPath, err := paths.AbsPath(paths.CheckpointFile)
			if err != nil {
				checkpointPath = paths.CheckpointFile
			}

			data, err := os.ReadFile(checkpointPath) //nolint:gosec // path is project-relative and fixed
			if err != nil {
				if os.IsNotExist(err) {
					if !show {
						fmt.Fprintln(cmd.OutOrStdout(), checkpointPath)
						return nil
					}
					return badArgument("no checkpoint yet at %s; run `ctxguard guard` to start one", checkpointPath)
				}
				return fmt.Errorf("reading checkpoint: %w", err)
			}

			if !show {
				line := checkpointPath
				if sourceSession := team.CheckpointSourceSession(string(data)); sourceSession != "" {
					line = fmt.Sprintf("%s (session %s)", checkpointPath, sourceSession)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "print the checkpoint's contents instead of its path")
	return cmd
}
