// Package action defines the declarative action algebra strategies emit —
// Drop, Replace, and ReplaceRange — and the applier that turns a list of
// actions from one or more strategies into a new record sequence, with
// byte/token savings attributed back to the strategy that proposed each
// action, so a prune can always be previewed before it is applied.
package action

import (
	"github.com/ctxguard/ctxguard/internal/record"
)

// Kind is the operation an Action performs on the record sequence.
type Kind string

const (
	// Drop removes a single record entirely.
	Drop Kind = "drop"

	// Replace substitutes a single record with a smaller stand-in record
	// (e.g. a large tool_result replaced with a one-line placeholder).
	Replace Kind = "replace"

	// ReplaceRange substitutes an inclusive, contiguous run of records —
	// identified by their first and last UUID — with a single stand-in
	// record (e.g. collapsing N progress-update tool calls into one
	// summary line).
	ReplaceRange Kind = "replace_range"
)

// Action is one rewrite a strategy proposes. Exactly one of UUID or
// (StartUUID, EndUUID) is set, depending on Kind.
type Action struct {
	Kind Kind

	// UUID identifies the target record for Drop and Replace.
	UUID string

	// StartUUID and EndUUID bound an inclusive run of records for
	// ReplaceRange. Both must refer to records already present in the
	// sequence, with StartUUID appearing at or before EndUUID.
	StartUUID string
	EndUUID   string

	// Replacement is the stand-in record for Replace and ReplaceRange. The
	// strategy proposing it is responsible for carrying over the correct
	// uuid/parentUuid (the original record's for Replace, the first
	// record's in the range for ReplaceRange) — the applier does not
	// rewrite identifiers, only resolves target spans by the UUID already
	// present on this field.
	Replacement *record.Record

	// Strategy names the strategy that proposed this action, for
	// attribution in the applied report.
	Strategy string

	// Reason is a short human-readable justification for the action.
	Reason string
}

// StrategyResult is the output of running one strategy against a record
// sequence: the actions it proposes, plus an estimate of what they save.
// The estimate is advisory; the applier computes the authoritative figure
// once actions from every strategy in a prescription have been merged and
// applied.
type StrategyResult struct {
	Strategy        string
	Tier            Tier
	Actions         []Action
	EstimatedBytes  int
}

// Tier buckets a strategy by how aggressively it rewrites the transcript,
// matching the three risk tiers the strategy catalog is organized into.
type Tier string

const (
	TierGentle     Tier = "gentle"
	TierStandard   Tier = "standard"
	TierAggressive Tier = "aggressive"
)

// Prescription is a named, ordered composition of strategies. Strategies
// run in listed order; later strategies see the record sequence as left by
// earlier ones, so a prescription can layer a gentle pass before a more
// aggressive one without the aggressive pass having to re-detect what the
// gentle pass already removed.
type Prescription struct {
	Name        string
	Description string
	Strategies  []string
}
