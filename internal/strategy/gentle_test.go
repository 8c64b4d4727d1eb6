package strategy

import (
	"testing"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/record"
)

func mustParseAll(t *testing.T, lines ...string) []record.Record {
	t.Helper()
	var out []record.Record
	for _, l := range lines {
		rec, err := record.Parse([]byte(l))
		if err != nil {
			t.Fatalf("unexpected error parsing %q: %v", l, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestProgressCollapseStrategy(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"user","uuid":"u1","message":{"content":"do the thing"}}`,
		`{"type":"system","uuid":"p1","message":{"content":"Running…"}}`,
		`{"type":"system","uuid":"p2","message":{"content":"Running…"}}`,
		`{"type":"system","uuid":"p3","message":{"content":"Working…"}}`,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"text","text":"done"}]}}`,
	)

	actions := progressCollapseStrategy{}.Propose(records, Options{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	a := actions[0]
	if a.Kind != action.ReplaceRange || a.StartUUID != "p1" || a.EndUUID != "p3" {
		t.Errorf("unexpected action: %+v", a)
	}
}

func TestProgressCollapseStrategy_SingleTickUntouched(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"user","uuid":"u1","message":{"content":"do the thing"}}`,
		`{"type":"system","uuid":"p1","message":{"content":"Running…"}}`,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"text","text":"done"}]}}`,
	)

	actions := progressCollapseStrategy{}.Propose(records, Options{})
	if len(actions) != 0 {
		t.Errorf("expected no actions for a lone tick, got %d", len(actions))
	}
}

func TestFileHistoryDedupStrategy(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"file-history-snapshot","uuid":"f1","message":{"content":"snapshot-A"}}`,
		`{"type":"user","uuid":"u1","message":{"content":"edit"}}`,
		`{"type":"file-history-snapshot","uuid":"f2","message":{"content":"snapshot-B"}}`,
		`{"type":"file-history-snapshot","uuid":"f3","message":{"content":"snapshot-A"}}`,
	)

	actions := fileHistoryDedupStrategy{}.Propose(records, Options{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Kind != action.Drop || actions[0].UUID != "f1" {
		t.Errorf("expected drop of f1 (superseded by f3), got %+v", actions[0])
	}
}

func TestMetadataStripStrategy(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"assistant","uuid":"a1","costUSD":0.02,"message":{"content":[{"type":"text","text":"done"}],"usage":{"input_tokens":10,"output_tokens":5},"stop_reason":"end_turn"}}`,
	)

	actions := metadataStripStrategy{}.Propose(records, Options{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	a := actions[0]
	if a.Kind != action.Replace || a.UUID != "a1" || a.Replacement == nil {
		t.Fatalf("unexpected action: %+v", a)
	}
	if string(a.Replacement.Bytes()) == string(records[0].Bytes()) {
		t.Errorf("replacement is identical to original, expected telemetry stripped")
	}
}

func TestMetadataStripStrategy_NoOp(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"text","text":"done"}]}}`,
	)

	actions := metadataStripStrategy{}.Propose(records, Options{})
	if len(actions) != 0 {
		t.Errorf("expected no actions, got %d", len(actions))
	}
}
