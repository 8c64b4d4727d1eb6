package strategy

import (
	"strings"
	"testing"

	"github.com/ctxguard/ctxguard/internal/action"
)

func TestThinkingBlocksStrategy_Remove(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"thinking","text":"let me consider this","signature":"sig"},{"type":"text","text":"done"}]}}`,
	)

	actions := thinkingBlocksStrategy{}.Propose(records, Options{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Replacement == nil {
		t.Fatal("expected a replacement record")
	}
	if strings.Contains(string(actions[0].Replacement.Bytes()), "consider this") {
		t.Errorf("expected thinking text removed, got %s", actions[0].Replacement.Bytes())
	}
}

func TestThinkingBlocksStrategy_Truncate(t *testing.T) {
	longText := strings.Repeat("x", 500)
	records := mustParseAll(t,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"thinking","text":"`+longText+`"}]}}`,
	)

	opts := Options{Config: map[string]any{"mode": ThinkingModeTruncate}}
	actions := thinkingBlocksStrategy{}.Propose(records, opts)
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if len(actions[0].Replacement.Bytes()) >= len(records[0].Bytes()) {
		t.Errorf("expected truncated replacement to be smaller than original")
	}
}

func TestToolOutputTrimStrategy(t *testing.T) {
	bigOutput := strings.Repeat(`line\n`, 200)
	records := mustParseAll(t,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"`+bigOutput+`"}]}}`,
	)

	actions := toolOutputTrimStrategy{}.Propose(records, Options{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Kind != action.Replace || actions[0].UUID != "u1" {
		t.Errorf("unexpected action: %+v", actions[0])
	}
}

func TestToolOutputTrimStrategy_SmallUntouched(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}`,
	)

	actions := toolOutputTrimStrategy{}.Propose(records, Options{})
	if len(actions) != 0 {
		t.Errorf("expected no actions for small output, got %d", len(actions))
	}
}

func TestStaleReadsStrategy(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"tool_use","tool_use_id":"t1","name":"Read","input":{"file_path":"/tmp/a.go"}}]}}`,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"old contents"}]}}`,
		`{"type":"assistant","uuid":"a2","message":{"content":[{"type":"tool_use","tool_use_id":"t2","name":"Edit","input":{"file_path":"/tmp/a.go"}}]}}`,
		`{"type":"user","uuid":"u2","message":{"content":[{"type":"tool_result","tool_use_id":"t2","content":"edited"}]}}`,
		`{"type":"assistant","uuid":"a3","message":{"content":[{"type":"tool_use","tool_use_id":"t3","name":"Read","input":{"file_path":"/tmp/a.go"}}]}}`,
		`{"type":"user","uuid":"u3","message":{"content":[{"type":"tool_result","tool_use_id":"t3","content":"new contents"}]}}`,
	)

	actions := staleReadsStrategy{}.Propose(records, Options{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Kind != action.Drop || actions[0].UUID != "u1" {
		t.Errorf("expected drop of the superseded read u1, got %+v", actions[0])
	}
}

func TestStaleReadsStrategy_NoEditLeavesReadAlone(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"tool_use","tool_use_id":"t1","name":"Read","input":{"file_path":"/tmp/a.go"}}]}}`,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"contents"}]}}`,
	)

	actions := staleReadsStrategy{}.Propose(records, Options{})
	if len(actions) != 0 {
		t.Errorf("expected no actions, got %d", len(actions))
	}
}

func TestSystemReminderDedupStrategy(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"text","text":"<system-reminder>todo list empty</system-reminder>"}]}}`,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"text","text":"ack"}]}}`,
		`{"type":"user","uuid":"u2","message":{"content":[{"type":"text","text":"<system-reminder>todo list empty</system-reminder>"}]}}`,
	)

	actions := systemReminderDedupStrategy{}.Propose(records, Options{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Kind != action.Drop || actions[0].UUID != "u2" {
		t.Errorf("expected u2 (now-empty record) dropped, got %+v", actions[0])
	}
}

func TestSystemReminderDedupStrategy_MixedContentReplacedNotDropped(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"user","uuid":"u1","message":{"content":[{"type":"text","text":"<system-reminder>todo list empty</system-reminder>"}]}}`,
		`{"type":"user","uuid":"u2","message":{"content":[{"type":"text","text":"<system-reminder>todo list empty</system-reminder>"},{"type":"text","text":"please continue"}]}}`,
	)

	actions := systemReminderDedupStrategy{}.Propose(records, Options{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Kind != action.Replace || actions[0].UUID != "u2" {
		t.Errorf("expected u2 replaced (reminder stripped, prompt kept), got %+v", actions[0])
	}
}
