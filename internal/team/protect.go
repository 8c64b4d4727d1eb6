package team

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/ctxguard/ctxguard/internal/strategy"
)

// StateSummarySentinel marks the synthetic user+assistant pair Protect
// inserts at the top of a team-protected transcript, so a later prune can
// find and replace the prior pair instead of accumulating a new one every
// cycle.
const StateSummarySentinel = "ctxguard-team-state-summary"

// recordKey returns a stable identity for a record within one Protect call:
// its uuid, or — for the rare malformed-line placeholder that carries
// none — a synthetic key derived from its original position, which never
// collides with a real uuid.
func recordKey(i int, r record.Record) string {
	if r.UUID != "" {
		return r.UUID
	}
	return fmt.Sprintf("#%d", i)
}

// Protect runs prescription over every record NOT in state's
// coordination set, re-merges the result with the untouched coordination
// records in original order, and inserts a fresh state-summary pair at
// the top (replacing any prior one).
func Protect(registry *strategy.Registry, prescription action.Prescription, records []record.Record, state TeamState, optsFor func(name string) strategy.Options) ([]record.Record, []action.Report, error) {
	others := make([]record.Record, 0, len(records))
	otherKeys := make([]string, 0, len(records))
	for i, r := range records {
		if state.CoordinationIndices[i] {
			continue
		}
		others = append(others, r)
		otherKeys = append(otherKeys, recordKey(i, r))
	}

	prunedOthers, reports, err := strategy.Run(registry, prescription, others, optsFor)
	if err != nil {
		return nil, nil, err
	}

	// prunedOthers preserves others' relative order. Replace/ReplaceRange
	// actions carry over the uuid of the original record at the start of
	// their span (the applier's contract, action.go), so every surviving
	// output record's key matches the key of some original "other" record.
	// A dropped or swallowed-into-an-earlier-range original simply has no
	// match and is skipped on re-merge.
	outputByKey := make(map[string]record.Record, len(prunedOthers))
	for j, out := range prunedOthers {
		key := out.UUID
		if key == "" {
			// Only possible if the synthetic replacement itself lacks a
			// uuid, which no strategy in the catalog produces; fall back
			// to positional identity so re-merge degrades gracefully
			// instead of silently dropping the record.
			key = fmt.Sprintf("#out%d", j)
		}
		outputByKey[key] = out
	}

	merged := make([]record.Record, 0, len(records))
	otherIdx := 0
	usedOutputKeys := make(map[string]bool, len(otherKeys))
	for i, r := range records {
		if state.CoordinationIndices[i] {
			merged = append(merged, r)
			continue
		}
		key := otherKeys[otherIdx]
		otherIdx++
		if out, ok := outputByKey[key]; ok && !usedOutputKeys[key] {
			usedOutputKeys[key] = true
			merged = append(merged, out)
		}
		// else: dropped, or swallowed into an earlier range already emitted.
	}

	return InsertStateSummary(merged, state), reports, nil
}

// InsertStateSummary removes any prior sentinel-marked state-summary pair
// from the front of records and inserts a fresh one describing state.
func InsertStateSummary(records []record.Record, state TeamState) []record.Record {
	records = stripExistingSummary(records)

	userRec, assistantRec, ok := buildSummaryPair(state)
	if !ok {
		return records
	}
	out := make([]record.Record, 0, len(records)+2)
	out = append(out, userRec, assistantRec)
	out = append(out, records...)
	return out
}

func stripExistingSummary(records []record.Record) []record.Record {
	i := 0
	for i < len(records) && i < 2 && strings.Contains(string(records[i].Bytes()), StateSummarySentinel) {
		i++
	}
	return records[i:]
}

func buildSummaryPair(state TeamState) (record.Record, record.Record, bool) {
	summary := describeState(state)

	userLine := fmt.Sprintf(
		`{"type":"user","uuid":"%s-prompt","message":{"content":"<!-- %s --> Please resume with the current team state in mind."}}`,
		sentinelUUIDSuffix, StateSummarySentinel,
	)
	assistantLine := fmt.Sprintf(
		`{"type":"assistant","uuid":"%s-ack","parentUuid":"%s-prompt","message":{"content":[{"type":"text","text":%s}]}}`,
		sentinelUUIDSuffix, sentinelUUIDSuffix, jsonString(fmt.Sprintf("<!-- %s -->\n%s", StateSummarySentinel, summary)),
	)

	userRec, err := record.Parse([]byte(userLine))
	if err != nil {
		return record.Record{}, record.Record{}, false
	}
	assistantRec, err := record.Parse([]byte(assistantLine))
	if err != nil {
		return record.Record{}, record.Record{}, false
	}
	return userRec, assistantRec, true
}

const sentinelUUIDSuffix = "ctxguard-team-summary"

func jsonString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func describeState(state TeamState) string {
	var b strings.Builder
	name := state.TeamName
	if name == "" {
		name = "this team"
	}
	fmt.Fprintf(&b, "Team %s has %d sub-agent(s) and %d task(s).\n", name, len(state.SubAgents), len(state.Tasks))
	for _, sub := range state.SortedSubAgents() {
		fmt.Fprintf(&b, "- %s (%s): %s — %s\n", agentIDPrefix(sub.AgentID), sub.Status, sub.Role, sub.Description)
	}
	for _, task := range state.Tasks {
		fmt.Fprintf(&b, "- task %q: %s\n", task.Subject, task.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}
