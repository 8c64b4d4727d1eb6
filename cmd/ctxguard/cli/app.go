package cli

import (
	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/ctxguard/ctxguard/internal/settings"
	"github.com/ctxguard/ctxguard/internal/strategy"
)

// app bundles the settings and strategy registry every command that reads
// or prunes a transcript needs, loaded once per invocation.
type app struct {
	settings *settings.Settings
	registry *strategy.Registry
}

func loadApp() (*app, error) {
	cfg, err := settings.Load()
	if err != nil {
		return nil, err
	}
	return &app{settings: cfg, registry: strategy.NewRegistry()}, nil
}

// optsFor resolves a strategy's tuning parameters from
// settings.StrategyOptions. It does not check the "enabled" key;
// enabledStrategies filters disabled strategies out.
func (a *app) optsFor(name string) strategy.Options {
	if a.settings.StrategyOptions == nil {
		return strategy.Options{}
	}
	cfg, _ := a.settings.StrategyOptions[name].(map[string]any)
	return strategy.Options{Config: cfg}
}

// enabledStrategies drops any name settings.IsStrategyDisabled rejects, so
// a disabled strategy's Propose is never called at all rather than being
// asked to opt itself out.
func (a *app) enabledStrategies(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !a.settings.IsStrategyDisabled(n) {
			out = append(out, n)
		}
	}
	return out
}

// strategyRun runs prescription via the registry, reusing the same
// applier every mutating command goes through.
func (a *app) strategyRun(prescription action.Prescription, records []record.Record, optsFor func(name string) strategy.Options) ([]record.Record, []action.Report, error) {
	return strategy.Run(a.registry, prescription, records, optsFor)
}
