package strategy

import (
	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/record"
)

func gentleStrategies() []Strategy {
	return []Strategy{
		progressCollapseStrategy{},
		fileHistoryDedupStrategy{},
		metadataStripStrategy{},
	}
}

// progressCollapseStrategy collapses a run of two or more consecutive
// progress-tick records (the host agent's streaming-UI status lines) into
// a single synthetic record carrying the run length and the last observed
// tick text.
type progressCollapseStrategy struct{}

func (progressCollapseStrategy) Name() string      { return "progress-collapse" }
func (progressCollapseStrategy) Tier() action.Tier { return action.TierGentle }
func (progressCollapseStrategy) Describe() string {
	return "Collapses runs of consecutive progress-tick status lines into one summary record."
}

func (s progressCollapseStrategy) Propose(records []record.Record, opts Options) []action.Action {
	return collapseRuns(records, s.Name(), func(r record.Record) bool {
		return r.ClassifyKind() == record.KindProgressTick
	})
}

// fileHistoryDedupStrategy drops earlier file-history-snapshot records
// whose canonicalized payload is identical to a later one, keeping only
// the last occurrence of each distinct snapshot.
type fileHistoryDedupStrategy struct{}

func (fileHistoryDedupStrategy) Name() string      { return "file-history-dedup" }
func (fileHistoryDedupStrategy) Tier() action.Tier { return action.TierGentle }
func (fileHistoryDedupStrategy) Describe() string {
	return "Keeps only the last file-history-snapshot record for each distinct snapshot payload."
}

func (s fileHistoryDedupStrategy) Propose(records []record.Record, opts Options) []action.Action {
	lastIndexByPayload := make(map[string]int)
	for i := range records {
		if records[i].ClassifyKind() != record.KindFileHistorySnapshot {
			continue
		}
		lastIndexByPayload[canonicalizeFileHistoryPayload(records[i])] = i
	}

	var actions []action.Action
	for i := range records {
		if records[i].ClassifyKind() != record.KindFileHistorySnapshot {
			continue
		}
		payload := canonicalizeFileHistoryPayload(records[i])
		if lastIndexByPayload[payload] == i {
			continue
		}
		actions = append(actions, action.Action{
			Kind:     action.Drop,
			UUID:     records[i].UUID,
			Strategy: s.Name(),
			Reason:   "superseded by a later identical file-history snapshot",
		})
	}
	return actions
}

// metadataEnvelopeFields are top-level telemetry fields some host agents
// stamp on every line (distinct from the per-message fields below).
var metadataEnvelopeFields = []string{"costUSD", "durationMs", "durationApiMs", "isApiErrorMessage"}

// metadataMessageFields are telemetry fields nested under "message" that
// report token usage and model stop behavior rather than conversation
// content.
var metadataMessageFields = []string{"usage", "stop_reason", "stop_sequence"}

// metadataStripStrategy drops per-message telemetry — token usage, stop
// reason, and cost fields — that every host-agent record repeats, without
// touching uuid/parentUuid/type or the message content itself.
type metadataStripStrategy struct{}

func (metadataStripStrategy) Name() string      { return "metadata-strip" }
func (metadataStripStrategy) Tier() action.Tier { return action.TierGentle }
func (metadataStripStrategy) Describe() string {
	return "Removes per-message token-usage, stop-reason, and cost telemetry fields."
}

func (s metadataStripStrategy) Propose(records []record.Record, opts Options) []action.Action {
	var actions []action.Action
	for i := range records {
		rec := records[i]
		if rec.UUID == "" {
			continue
		}
		replacement := rec
		changed := false

		if next, ok := withoutTopLevelFields(replacement, metadataEnvelopeFields...); ok {
			replacement = next
			changed = true
		}
		if next, ok := withoutMessageFields(replacement, metadataMessageFields...); ok {
			replacement = next
			changed = true
		}
		if !changed {
			continue
		}
		actions = append(actions, action.Action{
			Kind:        action.Replace,
			UUID:        rec.UUID,
			Replacement: &replacement,
			Strategy:    s.Name(),
			Reason:      "stripped per-message token/cost/stop-reason telemetry",
		})
	}
	return actions
}

// collapseRuns is shared by every strategy that replaces a contiguous run
// of two-or-more matching records with one synthetic summary record
// (progress-collapse, background-poll-collapse). A run of exactly one
// matching record is left untouched.
func collapseRuns(records []record.Record, strategyName string, matches func(record.Record) bool) []action.Action {
	return collapseRunsMin(records, strategyName, 2, matches)
}

// collapseRunsMin is collapseRuns with a configurable minimum run length —
// http-spam requires three consecutive matches before it collapses a run,
// everything else requires two.
func collapseRunsMin(records []record.Record, strategyName string, minRun int, matches func(record.Record) bool) []action.Action {
	var actions []action.Action
	i := 0
	for i < len(records) {
		if !matches(records[i]) {
			i++
			continue
		}
		start := i
		lastText := records[i].TextContent()
		for i < len(records) && matches(records[i]) {
			lastText = records[i].TextContent()
			i++
		}
		end := i - 1
		count := end - start + 1
		if count < minRun {
			continue
		}
		collapsed, ok := buildCollapsedRecord(records[start], strategyName, count, lastText)
		if !ok {
			continue
		}
		actions = append(actions, action.Action{
			Kind:        action.ReplaceRange,
			StartUUID:   records[start].UUID,
			EndUUID:     records[end].UUID,
			Replacement: &collapsed,
			Strategy:    strategyName,
			Reason:      "collapsed a run of matching records",
		})
	}
	return actions
}
