package record

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// TokenUsage totals the input/output/cache token accounting across a
// transcript (or a slice of one), deduplicated per underlying model
// message id: a streamed response produces multiple transcript rows
// sharing one message.id, and only the row with the highest OutputTokens
// reflects the final state.
type TokenUsage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	APICallCount        int

	// SubagentTokens aggregates usage attributed to Task-spawned subagents,
	// when calculated via CalculateTotalTokenUsage.
	SubagentTokens *TokenUsage
}

// Total returns the sum of all non-subagent token categories.
func (u *TokenUsage) Total() int {
	if u == nil {
		return 0
	}
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// CalculateTokenUsage computes deduplicated token usage across records.
func CalculateTokenUsage(records []Record) *TokenUsage {
	type seen struct {
		usage        Usage
		outputTokens int
	}
	byMessageID := make(map[string]seen)

	for i := range records {
		if records[i].Type != "assistant" {
			continue
		}
		id := records[i].MessageID()
		if id == "" {
			continue
		}
		usage := records[i].MessageUsage()
		if usage == nil {
			continue
		}
		existing, ok := byMessageID[id]
		if !ok || usage.OutputTokens > existing.outputTokens {
			byMessageID[id] = seen{usage: *usage, outputTokens: usage.OutputTokens}
		}
	}

	out := &TokenUsage{APICallCount: len(byMessageID)}
	for _, s := range byMessageID {
		out.InputTokens += s.usage.InputTokens
		out.OutputTokens += s.usage.OutputTokens
		out.CacheCreationTokens += s.usage.CacheCreationInputTokens
		out.CacheReadTokens += s.usage.CacheReadInputTokens
	}
	return out
}

// ExtractSpawnedAgentIDs finds subagent IDs reported in Task tool results.
// When a Task tool completes, its tool_result content embeds "agentId: <id>"
// so the parent transcript can be joined with the subagent's own transcript
// file. Returns a map of agentID -> the tool_use_id that spawned it.
func ExtractSpawnedAgentIDs(records []Record) map[string]string {
	agentIDs := make(map[string]string)

	for i := range records {
		if records[i].Type != "user" {
			continue
		}
		for _, block := range records[i].ContentBlocks() {
			if block.Type != blockTypeToolResult {
				continue
			}
			text := toolResultText(block.Content)
			if id := extractAgentIDFromText(text); id != "" {
				agentIDs[id] = block.ToolUseID
			}
		}
	}
	return agentIDs
}

func toolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString
	}

	var blocks []MessageContentBlock
	if err := json.Unmarshal(content, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == blockTypeText {
				sb.WriteString(b.Text)
				sb.WriteByte('\n')
			}
		}
		return sb.String()
	}
	return ""
}

func extractAgentIDFromText(text string) string {
	const prefix = "agentId: "
	idx := strings.Index(text, prefix)
	if idx == -1 {
		return ""
	}
	start := idx + len(prefix)
	end := start
	for end < len(text) && isAlphanumeric(text[end]) {
		end++
	}
	if end > start {
		return text[start:end]
	}
	return ""
}

func isAlphanumeric(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// CalculateTotalTokenUsage computes usage for a transcript plus every
// subagent transcript it spawned, reading subagent files from subagentsDir
// (the host agent's convention is agent-<id>.jsonl).
func CalculateTotalTokenUsage(records []Record, subagentsDir string) (*TokenUsage, error) {
	mainUsage := CalculateTokenUsage(records)

	agentIDs := ExtractSpawnedAgentIDs(records)
	if len(agentIDs) == 0 {
		return mainUsage, nil
	}

	subagentUsage := &TokenUsage{}
	for agentID := range agentIDs {
		agentPath := filepath.Join(subagentsDir, fmt.Sprintf("agent-%s.jsonl", agentID))
		agentRecords, _, err := ReadFile(agentPath)
		if err != nil {
			// Subagent transcript may not exist yet or have been cleaned up.
			continue
		}
		agentUsage := CalculateTokenUsage(agentRecords)
		subagentUsage.InputTokens += agentUsage.InputTokens
		subagentUsage.CacheCreationTokens += agentUsage.CacheCreationTokens
		subagentUsage.CacheReadTokens += agentUsage.CacheReadTokens
		subagentUsage.OutputTokens += agentUsage.OutputTokens
		subagentUsage.APICallCount += agentUsage.APICallCount
	}

	if subagentUsage.APICallCount > 0 {
		mainUsage.SubagentTokens = subagentUsage
	}
	return mainUsage, nil
}
