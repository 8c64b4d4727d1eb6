package team

import (
	"testing"

	"github.com/ctxguard/ctxguard/internal/record"
)

func mustParse(t *testing.T, line string) record.Record {
	t.Helper()
	r, err := record.Parse([]byte(line))
	if err != nil {
		t.Fatalf("parsing %q: %v", line, err)
	}
	return r
}

func TestExtract_SubAgentSpawnAndCompletion(t *testing.T) {
	records := []record.Record{
		mustParse(t, `{"type":"user","uuid":"u1","message":{"content":"kick off the team"}}`),
		mustParse(t, `{"type":"assistant","uuid":"a1","message":{"content":[{"type":"tool_use","tool_use_id":"t1","name":"Task","input":{"description":"investigate flaky tests","prompt":"find them","subagent_type":"researcher"}}]}}`),
		mustParse(t, `{"type":"user","uuid":"u2","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"agentId: agent-123\nstarted"}]}}`),
		mustParse(t, `{"type":"user","uuid":"u3","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"agentId: agent-123\ndone investigating"}]}}`),
	}

	state := Extract(records)

	if len(state.SubAgents) != 1 {
		t.Fatalf("expected 1 sub-agent, got %d", len(state.SubAgents))
	}
	sub, ok := state.SubAgents["agent-123"]
	if !ok {
		t.Fatalf("expected sub-agent keyed by agent-123, got keys %v", keys(state.SubAgents))
	}
	if sub.Role != "researcher" || sub.Description != "investigate flaky tests" {
		t.Errorf("unexpected sub-agent fields: %+v", sub)
	}
	if sub.Status != "completed" {
		t.Errorf("expected status completed, got %s", sub.Status)
	}
	if sub.LatestResultText == "" {
		t.Error("expected a latest result text")
	}

	for _, idx := range []int{1, 2, 3} {
		if !state.CoordinationIndices[idx] {
			t.Errorf("expected index %d to be a coordination index", idx)
		}
	}
	if state.CoordinationIndices[0] {
		t.Error("expected the initial user turn to NOT be a coordination index")
	}
}

func keys(m map[string]*SubAgent) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestExtract_TaskCreateAndUpdate(t *testing.T) {
	records := []record.Record{
		mustParse(t, `{"type":"assistant","uuid":"a1","message":{"content":[{"type":"tool_use","tool_use_id":"t1","name":"TaskCreate","input":{"id":"task-1","subject":"write the report","owner":""}}]}}`),
		mustParse(t, `{"type":"assistant","uuid":"a2","message":{"content":[{"type":"tool_use","tool_use_id":"t2","name":"TaskUpdate","input":{"taskId":"task-1","status":"completed","owner":"agent-123"}}]}}`),
	}

	state := Extract(records)

	if len(state.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(state.Tasks))
	}
	task := state.Tasks[0]
	if task.Subject != "write the report" || task.Status != "completed" || task.Owner != "agent-123" {
		t.Errorf("unexpected task: %+v", task)
	}
	if !state.CoordinationIndices[0] || !state.CoordinationIndices[1] {
		t.Error("expected both TaskCreate and TaskUpdate calls to be coordination indices")
	}
}

func TestMerge_ConfigAuthoritativeFields(t *testing.T) {
	state := newTeamState()
	state.SubAgents["agent-123"] = &SubAgent{AgentID: "agent-123", Status: "completed"}

	cfg := &Config{
		TeamName:      "alpha-team",
		LeadAgentID:   "lead-1",
		LeadSessionID: "session-xyz",
		Members: map[string]ConfigMember{
			"agent-123": {Model: "opus", WorkingDirectory: "/work/alpha", Role: "researcher"},
		},
	}

	merged := Merge(state, cfg)

	if merged.TeamName != "alpha-team" || merged.LeadAgentID != "lead-1" || merged.LeadSessionID != "session-xyz" {
		t.Errorf("unexpected merged team identity: %+v", merged)
	}
	sub := merged.SubAgents["agent-123"]
	if sub.Model != "opus" || sub.WorkingDirectory != "/work/alpha" || sub.Role != "researcher" {
		t.Errorf("unexpected merged sub-agent: %+v", sub)
	}
	if sub.Status != "completed" {
		t.Error("expected transcript-derived status to survive the merge untouched")
	}
}

func TestMerge_NilConfigIsNoOp(t *testing.T) {
	state := newTeamState()
	state.TeamName = "untouched"
	merged := Merge(state, nil)
	if merged.TeamName != "untouched" {
		t.Errorf("expected nil config to leave state unchanged, got %+v", merged)
	}
}
