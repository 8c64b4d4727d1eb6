package cli

import (
	"fmt"

	"github.com/ctxguard/ctxguard/internal/strategy"
	"github.com/spf13/cobra"
)

// advisorySavings labels each tier with the documentation-table ranges
// from the source material. These are advisory only — diagnose's
// projected-savings section (the actually-measured figures for a given
// transcript) is authoritative whenever the two disagree.
var advisorySavings = map[string]string{
	"gentle":     "~5-8%",
	"standard":   "~15-20%",
	"aggressive": "~40-55%",
}

func newFormularyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formulary",
		Short: "List every strategy and prescription in the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := strategy.NewRegistry()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Strategies:")
			for _, s := range registry.List() {
				fmt.Fprintf(out, "  %-24s [%-10s] %s\n", s.Name(), s.Tier(), s.Describe())
			}

			fmt.Fprintln(out, "\nPrescriptions:")
			for _, name := range []string{"gentle", "standard", "aggressive"} {
				p, ok := registry.Prescription(name)
				if !ok {
					continue
				}
				fmt.Fprintf(out, "  %-12s %s\n", p.Name, p.Description)
				fmt.Fprintf(out, "               strategies: %v\n", p.Strategies)
				fmt.Fprintf(out, "               advisory savings: %s (measured savings from `diagnose` are authoritative)\n", advisorySavings[name])
			}
			return nil
		},
	}
}
