package cli

import (
	"fmt"

	"github.com/ctxguard/ctxguard/internal/diagnose"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/spf13/cobra"
)

func newDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose <session>",
		Short: "Report where a session transcript's bytes and tokens are going",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			sessionPath, err := resolveSession(arg)
			if err != nil {
				return err
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
}

// printDiagnoseReport renders a diagnose.Report the way `diagnose` and
// `current -d` both show it.
func printDiagnoseReport(cmd *cobra.Command, sessionPath string, report diagnose.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session: %s\n", sessionPath)
	fmt.Fprintf(out, "records: %d   bytes: %s   tokens: ~%d (%.1f%% of %d)\n",
		report.RecordCount, formatBytes(report.TotalBytes), report.EstimatedTokens,
		report.ContextPercent, diagnose.ContextWindowTokens)

	fmt.Fprintln(out, "\nbytes by kind:")
	for _, k := range sortedKinds(report.BytesByKind) {
		fmt.Fprintf(out, "  %-24s %s\n", k, formatBytes(report.BytesByKind[k]))
	}

	sig := report.Signatures
	fmt.Fprintln(out, "\nbloat signatures:")
	fmt.Fprintf(out, "  progress ticks:          %d\n", sig.ProgressTicks)
	fmt.Fprintf(out, "  file-history snapshots:  %d\n", sig.FileHistorySnapshots)
	fmt.Fprintf(out, "  system-reminder tags:    %d\n", sig.SystemReminderTags)
	fmt.Fprintf(out, "  thinking blocks present: %d\n", sig.ThinkingBlocksPresent)
	fmt.Fprintf(out, "  thinking signatures:     %d\n", sig.ThinkingSignatures)
	fmt.Fprintf(out, "  oversized tool results:  %d\n", sig.OversizedToolResults)
	fmt.Fprintf(out, "  advisory near-duplicates:%d\n", sig.AdvisoryNearDuplicates)

	if len(report.NearDuplicates) > 0 {
		fmt.Fprintln(out, "\nnear-duplicate payloads (advisory, not pruned):")
		for _, nd := range report.NearDuplicates {
			fmt.Fprintf(out, "  [%d] ~ [%d]  %.0f%% similar\n", nd.IndexA, nd.IndexB, nd.SimilarityPercent)
		}
	}

	fmt.Fprintln(out, "\nheaviest records:")
	for _, h := range report.Heaviest {
		fmt.Fprintf(out, "  [%d] %-24s %s  %s\n", h.Index, h.Kind, formatBytes(h.Bytes), h.UUID)
	}

	if len(report.Prescriptions) > 0 {
		fmt.Fprintln(out, "\nprojected savings:")
		for _, p := range report.Prescriptions {
			fmt.Fprintf(out, "  %-10s %s -> %s  (saved %s, %d -> %d records)\n",
				p.Name, formatBytes(p.BytesBefore), formatBytes(p.BytesAfter),
				formatBytes(p.BytesSaved), p.RecordsBefore, p.RecordsAfter)
		}
	}
}

func sortedKinds(byKind map[record.Kind]int) []record.Kind {
	out := make([]record.Kind, 0, len(byKind))
	for k := range byKind {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
