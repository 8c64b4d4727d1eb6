// Package strategy catalogs the pure-function rewrite strategies ctxguard
// can apply to a transcript, and the registry/prescription machinery that
// composes many independent, composable rewrites into one named
// prescription.
package strategy

import (
	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/record"
)

// Options carries per-strategy configuration sourced from
// settings.Settings.StrategyOptions[name].
type Options struct {
	// Config holds the raw strategy_options map for this strategy, if any.
	Config map[string]any
}

// IntOption reads an integer tuning parameter from Config, falling back to
// def if absent or the wrong type. JSON numbers decode as float64.
func (o Options) IntOption(key string, def int) int {
	if o.Config == nil {
		return def
	}
	if v, ok := o.Config[key].(float64); ok {
		return int(v)
	}
	if v, ok := o.Config[key].(int); ok {
		return v
	}
	return def
}

// StringOption reads a string tuning parameter from Config, falling back
// to def if absent or the wrong type.
func (o Options) StringOption(key string, def string) string {
	if o.Config == nil {
		return def
	}
	if v, ok := o.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Strategy is a pure function over a record sequence: given the current
// records and its own configuration, it proposes a list of actions. A
// strategy never mutates records directly and never needs I/O — the
// guard loop and the `treat`/`diagnose` commands are the only callers that
// touch disk.
type Strategy interface {
	// Name is the strategy's stable identifier, used in settings,
	// prescriptions, and diagnostic output.
	Name() string

	// Tier is the risk tier this strategy belongs to.
	Tier() action.Tier

	// Describe is a one-line human-readable summary shown by
	// `ctxguard formulary`.
	Describe() string

	// Propose inspects records and returns the actions this strategy
	// would apply. Returning no actions means the strategy found nothing
	// to do.
	Propose(records []record.Record, opts Options) []action.Action
}

// Registry holds every known strategy plus the named prescriptions built
// from them.
type Registry struct {
	strategies    map[string]Strategy
	prescriptions map[string]action.Prescription
}

// NewRegistry builds the registry with every built-in strategy and the
// gentle/standard/aggressive prescriptions, a single constructor wiring
// together every concrete Strategy implementation.
func NewRegistry() *Registry {
	r := &Registry{
		strategies:    make(map[string]Strategy),
		prescriptions: make(map[string]action.Prescription),
	}

	for _, s := range allStrategies() {
		r.strategies[s.Name()] = s
	}

	r.registerPrescriptions()
	return r
}

func allStrategies() []Strategy {
	var all []Strategy
	all = append(all, gentleStrategies()...)
	all = append(all, standardStrategies()...)
	all = append(all, aggressiveStrategies()...)
	return all
}

// Get returns the named strategy, or ok=false if unknown.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns every registered strategy, sorted by tier then name.
func (r *Registry) List() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sortStrategies(out)
	return out
}

func sortStrategies(strategies []Strategy) {
	tierRank := map[action.Tier]int{action.TierGentle: 0, action.TierStandard: 1, action.TierAggressive: 2}
	for i := 1; i < len(strategies); i++ {
		for j := i; j > 0; j-- {
			a, b := strategies[j-1], strategies[j]
			if tierRank[a.Tier()] < tierRank[b.Tier()] {
				break
			}
			if tierRank[a.Tier()] == tierRank[b.Tier()] && a.Name() <= b.Name() {
				break
			}
			strategies[j-1], strategies[j] = strategies[j], strategies[j-1]
		}
	}
}

// Prescription returns the named prescription, or ok=false if unknown.
func (r *Registry) Prescription(name string) (action.Prescription, bool) {
	p, ok := r.prescriptions[name]
	return p, ok
}

// Prescriptions returns every named prescription.
func (r *Registry) Prescriptions() []action.Prescription {
	out := make([]action.Prescription, 0, len(r.prescriptions))
	for _, p := range r.prescriptions {
		out = append(out, p)
	}
	return out
}

func (r *Registry) registerPrescriptions() {
	var gentleNames, standardNames, aggressiveNames []string
	for _, s := range gentleStrategies() {
		gentleNames = append(gentleNames, s.Name())
	}
	for _, s := range standardStrategies() {
		standardNames = append(standardNames, s.Name())
	}
	for _, s := range aggressiveStrategies() {
		aggressiveNames = append(aggressiveNames, s.Name())
	}

	r.prescriptions["gentle"] = action.Prescription{
		Name:        "gentle",
		Description: "Strip inert metadata and obvious redundancy only; never removes content a human would notice is gone.",
		Strategies:  gentleNames,
	}
	r.prescriptions["standard"] = action.Prescription{
		Name:        "standard",
		Description: "Gentle plus stale-content and repetition pruning; the default for the guard loop's hard threshold.",
		Strategies:  append(append([]string{}, gentleNames...), standardNames...),
	}
	r.prescriptions["aggressive"] = action.Prescription{
		Name:        "aggressive",
		Description: "Every strategy, including ones that discard thinking blocks and collapse long progress runs; used on hard-threshold emergency prunes.",
		Strategies:  append(append(append([]string{}, gentleNames...), standardNames...), aggressiveNames...),
	}
}

// Run applies every strategy named in prescription, in order, against
// records — each strategy sees the sequence as left by the one before it.
// Strategies whose name is not registered are skipped. Returns the final
// record sequence and one action.Report per strategy that proposed at
// least one action.
func Run(registry *Registry, prescription action.Prescription, records []record.Record, optsFor func(name string) Options) ([]record.Record, []action.Report, error) {
	current := records
	var reports []action.Report

	for _, name := range prescription.Strategies {
		s, ok := registry.Get(name)
		if !ok {
			continue
		}
		opts := Options{}
		if optsFor != nil {
			opts = optsFor(name)
		}
		actions := s.Propose(current, opts)
		if len(actions) == 0 {
			continue
		}
		next, report, err := action.Apply(current, actions)
		if err != nil {
			return nil, nil, err
		}
		current = next
		reports = append(reports, report)
	}

	return current, reports, nil
}
