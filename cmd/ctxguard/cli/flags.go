package cli

import (
	"fmt"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/strategy"
)

// validTiers lists the prescription names --rx accepts everywhere it
// appears. Spec §6 writes the flag as "-rx", but pflag (the teacher's
// flag library) rejects multi-character shorthands outright — a
// Shorthand must be exactly one ASCII rune, so "-rx" can't be registered
// as a true short flag without a hand-rolled parser the teacher never
// uses elsewhere. Every -rx site in this package registers it as the
// long flag --rx instead; that's the CLI surface this module ships.
var validTiers = map[string]bool{"gentle": true, "standard": true, "aggressive": true}

func validatePrescriptionName(name string) error {
	if !validTiers[name] {
		return badArgument("unknown prescription %q: must be one of gentle, standard, aggressive", name)
	}
	return nil
}

// validThinkingModes lists the --thinking-mode values the thinking-blocks
// strategy accepts.
var validThinkingModes = map[string]bool{"remove": true, "truncate": true, "signature-only": true}

func validateThinkingMode(mode string) error {
	if mode == "" || validThinkingModes[mode] {
		return nil
	}
	return badArgument("unknown thinking mode %q: must be one of remove, truncate, signature-only", mode)
}

// optsForWithThinkingMode builds the strategy.Options lookup `treat` and
// `strategy` pass to strategy.Run, overlaying --thinking-mode onto
// whatever settings.StrategyOptions already configured.
func optsForWithThinkingMode(base func(name string) strategy.Options, thinkingMode string) func(name string) strategy.Options {
	if thinkingMode == "" {
		return base
	}
	return func(name string) strategy.Options {
		opts := strategy.Options{}
		if base != nil {
			opts = base(name)
		}
		if name != "thinking-blocks" {
			return opts
		}
		cfg := map[string]any{}
		for k, v := range opts.Config {
			cfg[k] = v
		}
		cfg["mode"] = thinkingMode
		return strategy.Options{Config: cfg}
	}
}

// prescriptionFor resolves a tier/prescription name against registry,
// returning a ConfigError-flavored badArgument when unknown.
func prescriptionFor(registry *strategy.Registry, name string) (action.Prescription, error) {
	p, ok := registry.Prescription(name)
	if !ok {
		return action.Prescription{}, badArgument("unknown prescription %q", name)
	}
	return p, nil
}

func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := int64(n) / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
