// Package team extracts a TeamState from a transcript's sub-agent
// coordination calls, merges it with the on-disk team config file, renders
// the human-readable checkpoint, and implements team-protect pruning. A
// "Task" tool_use/tool_result pair announces a spawned sub-agent's id in
// its result text; every other coordination tool (TaskCreate, TaskUpdate,
// SendMessage, TeamCreate) is recognized the same way, by tool name.
package team

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/ctxguard/ctxguard/internal/record"
)

// Tool names the extractor recognizes as team-coordination calls.
const (
	toolTask        = "Task"       // spawns a sub-agent
	toolTaskCreate  = "TaskCreate" // creates a shared task-list entry
	toolTaskUpdate  = "TaskUpdate" // updates a shared task-list entry
	toolSendMessage = "SendMessage"
	toolTeamCreate  = "TeamCreate"
)

// SubAgent is one member of the team, assembled from its Task spawn call
// and its completion tool_result.
type SubAgent struct {
	AgentID          string
	Role             string
	Description      string
	Prompt           string
	Status           string
	LatestResultText string
	Model            string
	WorkingDirectory string
}

// Task is one entry on the shared task list.
type Task struct {
	ID      string
	Subject string
	Status  string
	Owner   string
}

// TeamState is the extracted/merged picture of a team's composition and
// progress at a point in the transcript.
type TeamState struct {
	TeamName      string
	LeadAgentID   string
	LeadSessionID string
	SubAgents     map[string]*SubAgent
	Tasks         []Task

	// CoordinationIndices holds the record index of every call the
	// extractor classified as team coordination: sub-agent spawns, task
	// create/update, team create/send-message, and task notifications.
	CoordinationIndices map[int]bool
}

func newTeamState() TeamState {
	return TeamState{
		SubAgents:           make(map[string]*SubAgent),
		CoordinationIndices: make(map[int]bool),
	}
}

// taskToolInput is the subset of a Task tool_use's input the extractor
// needs to populate a SubAgent's static fields.
type taskToolInput struct {
	Description  string `json:"description"`
	Prompt       string `json:"prompt"`
	SubagentType string `json:"subagent_type"`
	Model        string `json:"model"`
	WorkingDir   string `json:"cwd"`
}

type taskCreateInput struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Owner   string `json:"owner"`
}

type taskUpdateInput struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Owner   string `json:"owner"`
	Subject string `json:"subject"`
}

// Extract scans records for sub-agent coordination calls and returns the
// transcript-authoritative portion of a TeamState. Team name, lead
// identifiers, and per-member model/workdir/role are filled in later by
// Merge from the on-disk team config, which is authoritative for those
// fields.
func Extract(records []record.Record) TeamState {
	state := newTeamState()
	toolUseIDToAgent := make(map[string]string)
	tasksByID := make(map[string]int) // task id -> index into state.Tasks

	for i := range records {
		r := records[i]

		if r.ClassifyKind() == record.KindTaskNotification {
			state.CoordinationIndices[i] = true
			continue
		}

		if r.Type == "assistant" {
			for _, b := range r.ToolUseBlocks() {
				switch b.Name {
				case toolTask:
					state.CoordinationIndices[i] = true
					agentID := spawnSubAgent(&state, b)
					if agentID != "" {
						toolUseIDToAgent[b.ToolUseID] = agentID
					}
				case toolTaskCreate:
					state.CoordinationIndices[i] = true
					applyTaskCreate(&state, tasksByID, b)
				case toolTaskUpdate:
					state.CoordinationIndices[i] = true
					applyTaskUpdate(&state, tasksByID, b)
				case toolSendMessage, toolTeamCreate:
					state.CoordinationIndices[i] = true
				}
			}
		}

		if r.Type == "user" {
			for _, b := range r.ContentBlocks() {
				if b.Type != "tool_result" {
					continue
				}
				agentID, isSpawnResult := resolveSpawnResult(toolUseIDToAgent, b)
				if !isSpawnResult {
					continue
				}
				state.CoordinationIndices[i] = true
				applySpawnCompletion(&state, agentID, b)
			}
		}
	}

	return state
}

func spawnSubAgent(state *TeamState, b record.MessageContentBlock) string {
	var in taskToolInput
	_ = json.Unmarshal(b.Input, &in)

	agentID := b.ToolUseID // provisional key until the completion reveals the real agent id
	state.SubAgents[agentID] = &SubAgent{
		AgentID:          agentID,
		Role:             in.SubagentType,
		Description:      in.Description,
		Prompt:           in.Prompt,
		Status:           "spawned",
		Model:            in.Model,
		WorkingDirectory: in.WorkingDir,
	}
	return agentID
}

func resolveSpawnResult(toolUseIDToAgent map[string]string, b record.MessageContentBlock) (string, bool) {
	agentID, ok := toolUseIDToAgent[b.ToolUseID]
	return agentID, ok
}

func applySpawnCompletion(state *TeamState, provisionalKey string, b record.MessageContentBlock) {
	sub, ok := state.SubAgents[provisionalKey]
	if !ok {
		return
	}
	text := resultText(b)
	sub.Status = "completed"
	sub.LatestResultText = firstLine(text)

	if realID := extractAgentID(text); realID != "" && realID != provisionalKey {
		delete(state.SubAgents, provisionalKey)
		sub.AgentID = realID
		state.SubAgents[realID] = sub
	}
}

// extractAgentID looks for "agentId: <id>" in a Task tool_result's text,
// the sentinel the host agent's Task tool emits on completion.
func extractAgentID(text string) string {
	const prefix = "agentId: "
	idx := strings.Index(text, prefix)
	if idx == -1 {
		return ""
	}
	rest := text[idx+len(prefix):]
	end := strings.IndexAny(rest, "\n\r ")
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

func resultText(b record.MessageContentBlock) string {
	if len(b.Content) == 0 {
		return b.Text
	}
	var asString string
	if err := json.Unmarshal(b.Content, &asString); err == nil {
		return asString
	}
	var blocks []record.MessageContentBlock
	if err := json.Unmarshal(b.Content, &blocks); err == nil {
		var parts []string
		for _, tb := range blocks {
			if tb.Type == "text" && tb.Text != "" {
				parts = append(parts, tb.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\n\r"); i != -1 {
		return s[:i]
	}
	return s
}

func applyTaskCreate(state *TeamState, tasksByID map[string]int, b record.MessageContentBlock) {
	var in taskCreateInput
	if err := json.Unmarshal(b.Input, &in); err != nil || in.ID == "" {
		return
	}
	if idx, ok := tasksByID[in.ID]; ok {
		state.Tasks[idx].Subject = in.Subject
		state.Tasks[idx].Owner = in.Owner
		return
	}
	tasksByID[in.ID] = len(state.Tasks)
	state.Tasks = append(state.Tasks, Task{ID: in.ID, Subject: in.Subject, Status: "pending", Owner: in.Owner})
}

func applyTaskUpdate(state *TeamState, tasksByID map[string]int, b record.MessageContentBlock) {
	var in taskUpdateInput
	if err := json.Unmarshal(b.Input, &in); err != nil || in.TaskID == "" {
		return
	}
	idx, ok := tasksByID[in.TaskID]
	if !ok {
		return
	}
	if in.Status != "" {
		state.Tasks[idx].Status = in.Status
	}
	if in.Owner != "" {
		state.Tasks[idx].Owner = in.Owner
	}
	if in.Subject != "" {
		state.Tasks[idx].Subject = in.Subject
	}
}

// SortedSubAgents returns the team's sub-agents ordered by agent id, for
// deterministic checkpoint rendering.
func (t TeamState) SortedSubAgents() []*SubAgent {
	out := make([]*SubAgent, 0, len(t.SubAgents))
	for _, s := range t.SubAgents {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
