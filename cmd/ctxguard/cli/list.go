package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ctxguard/ctxguard/internal/paths"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known host-agent sessions for this project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := paths.ProjectRoot()
			if err != nil {
				root = project
			}
			if project != "" {
				root = project
			}

			sessionsDir, err := paths.HostAgentSessionsDir(root)
			if err != nil {
				return sessionNotFound("resolving session directory: %v", err)
			}

			entries, err := os.ReadDir(sessionsDir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "no sessions found")
					return nil
				}
				return sessionNotFound("listing sessions: %v", err)
			}

			type row struct {
				id      string
				size    int64
				modTime time.Time
			}
			var rows []row
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
					continue
				}
				info, err := e.Info()
				if err != nil {
					continue
				}
				rows = append(rows, row{
					id:      strings.TrimSuffix(e.Name(), ".jsonl"),
					size:    info.Size(),
					modTime: info.ModTime(),
				})
			}
			sort.Slice(rows, func(i, j int) bool { return rows[i].modTime.After(rows[j].modTime) })

			current, _ := paths.ReadCurrentSession()
			for _, r := range rows {
				marker := "  "
				if r.id == current {
					marker = "* "
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s  %8s  %s\n", marker, r.id, formatBytes(int(r.size)), r.modTime.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project path to list sessions for (default: current git repo)")
	return cmd
}

// projectSessionsDir resolves the host agent's sessions directory for the
// current project root, falling back to "." when no root is found.
func projectSessionsDir() (string, error) {
	root, err := paths.ProjectRoot()
	if err != nil {
		root = "."
	}
	return paths.HostAgentSessionsDir(filepath.Clean(root))
}
