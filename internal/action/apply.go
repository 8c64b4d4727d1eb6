package action

import (
	"fmt"
	"sort"

	"github.com/ctxguard/ctxguard/internal/record"
)

// protectedKinds can never be dropped or replaced by any strategy: losing a
// summary record breaks the host agent's own compaction history, and
// losing a queue-operation record breaks replay of queued user messages.
var protectedKinds = map[record.Kind]bool{
	record.KindSummary:        true,
	record.KindQueueOperation: true,
}

// Skip describes an action the applier refused to perform, and why.
type Skip struct {
	Action Action
	Reason string
}

// OrphanDiagnostic notes a surviving record whose parent was removed. This
// is diagnostic only — host agents tolerate a missing parentUuid by
// treating the record as a new root — but a strategy author or `strategy
// --verbose` run wants to see it.
type OrphanDiagnostic struct {
	RecordUUID       string
	MissingParentUUID string
}

// Report summarizes one Apply call: what changed, what was skipped, and
// the bytes attributable to each strategy that contributed an action.
type Report struct {
	BytesBefore int
	BytesAfter  int
	BytesSaved  int

	Dropped   int
	Replaced  int
	Skipped   []Skip
	Orphaned  []OrphanDiagnostic

	// PerStrategy attributes bytes saved to the strategy name recorded on
	// each applied action.
	PerStrategy map[string]int
}

// span is an applier-internal resolved action: a contiguous [start,end]
// index range in the original sequence, plus what replaces it (nil means
// drop entirely).
type span struct {
	start, end  int
	replacement *record.Record
	source      Action
}

// Apply resolves actions against records, producing the rewritten
// sequence and a report of what happened. Actions that target a protected
// record, an unknown UUID, or overlap with an earlier action (by original
// sequence position) are skipped rather than erroring — a single bad
// action from a misbehaving strategy should not abort an entire prune.
func Apply(records []record.Record, actions []Action) ([]record.Record, Report, error) {
	report := Report{
		BytesBefore: sumBytes(records),
		PerStrategy: make(map[string]int),
	}

	byUUID := make(map[string]int, len(records))
	for i := range records {
		if records[i].UUID != "" {
			byUUID[records[i].UUID] = i
		}
	}

	spans := make([]span, 0, len(actions))
	for _, a := range actions {
		s, skip, err := resolveSpan(records, byUUID, a)
		if err != nil {
			return nil, Report{}, err
		}
		if skip != nil {
			report.Skipped = append(report.Skipped, *skip)
			continue
		}
		spans = append(spans, *s)
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	claimed := make([]bool, len(records))
	accepted := make([]span, 0, len(spans))
	for _, s := range spans {
		conflict := false
		for i := s.start; i <= s.end; i++ {
			if claimed[i] {
				conflict = true
				break
			}
		}
		if conflict {
			report.Skipped = append(report.Skipped, Skip{Action: s.source, Reason: "overlaps an already-applied action"})
			continue
		}
		for i := s.start; i <= s.end; i++ {
			claimed[i] = true
		}
		accepted = append(accepted, s)
	}

	out := make([]record.Record, 0, len(records))
	spanByStart := make(map[int]span, len(accepted))
	for _, s := range accepted {
		spanByStart[s.start] = s
	}

	for i := 0; i < len(records); {
		if !claimed[i] {
			out = append(out, records[i])
			i++
			continue
		}
		s, ok := spanByStart[i]
		if !ok {
			// Part of a span but not its start; already consumed.
			i++
			continue
		}
		removed := sumBytes(records[s.start : s.end+1])
		if s.replacement != nil {
			out = append(out, *s.replacement)
			report.Replaced++
			report.PerStrategy[s.source.Strategy] += removed - s.replacement.ByteLen()
		} else {
			report.Dropped++
			report.PerStrategy[s.source.Strategy] += removed
		}
		i = s.end + 1
	}

	report.Orphaned = findOrphans(out)
	report.BytesAfter = sumBytes(out)
	report.BytesSaved = report.BytesBefore - report.BytesAfter

	return out, report, nil
}

func resolveSpan(records []record.Record, byUUID map[string]int, a Action) (*span, *Skip, error) {
	switch a.Kind {
	case Drop:
		idx, ok := byUUID[a.UUID]
		if !ok {
			return nil, &Skip{Action: a, Reason: "unknown uuid"}, nil
		}
		if protectedKinds[recordKind(records[idx])] {
			return nil, &Skip{Action: a, Reason: "record kind is protected from removal"}, nil
		}
		return &span{start: idx, end: idx, source: a}, nil, nil

	case Replace:
		idx, ok := byUUID[a.UUID]
		if !ok {
			return nil, &Skip{Action: a, Reason: "unknown uuid"}, nil
		}
		if protectedKinds[recordKind(records[idx])] {
			return nil, &Skip{Action: a, Reason: "record kind is protected from removal"}, nil
		}
		if a.Replacement == nil {
			return nil, &Skip{Action: a, Reason: "replace action missing replacement record"}, nil
		}
		return &span{start: idx, end: idx, replacement: a.Replacement, source: a}, nil, nil

	case ReplaceRange:
		startIdx, ok := byUUID[a.StartUUID]
		if !ok {
			return nil, &Skip{Action: a, Reason: "unknown start uuid"}, nil
		}
		endIdx, ok := byUUID[a.EndUUID]
		if !ok {
			return nil, &Skip{Action: a, Reason: "unknown end uuid"}, nil
		}
		if endIdx < startIdx {
			return nil, &Skip{Action: a, Reason: "end precedes start"}, nil
		}
		for i := startIdx; i <= endIdx; i++ {
			if protectedKinds[recordKind(records[i])] {
				return nil, &Skip{Action: a, Reason: "range contains a protected record"}, nil
			}
		}
		if a.Replacement == nil {
			return nil, &Skip{Action: a, Reason: "replace_range action missing replacement record"}, nil
		}
		return &span{start: startIdx, end: endIdx, replacement: a.Replacement, source: a}, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

func recordKind(r record.Record) record.Kind {
	return r.ClassifyKind()
}

func sumBytes(records []record.Record) int {
	total := 0
	for _, r := range records {
		total += r.ByteLen()
	}
	return total
}

func findOrphans(records []record.Record) []OrphanDiagnostic {
	present := make(map[string]bool, len(records))
	for _, r := range records {
		if r.UUID != "" {
			present[r.UUID] = true
		}
	}

	var orphans []OrphanDiagnostic
	for _, r := range records {
		if r.ParentUUID == "" {
			continue
		}
		if !present[r.ParentUUID] {
			orphans = append(orphans, OrphanDiagnostic{RecordUUID: r.UUID, MissingParentUUID: r.ParentUUID})
		}
	}
	return orphans
}
