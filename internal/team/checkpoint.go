package team

import (
	"fmt"
	"strings"

	"github.com/ctxguard/ctxguard/internal/sessionid"
)

// checkpointIDPrefix marks the rendered checkpoint's date-prefixed ID
// line, so CheckpointSourceSession can find and parse it back out.
const checkpointIDPrefix = "Checkpoint ID: "

// agentIDPrefixLen is how many characters of a sub-agent's id the
// checkpoint shows — enough to disambiguate without the visual noise of a
// full UUID.
const agentIDPrefixLen = 8

// RenderCheckpoint renders state as a human-readable checkpoint: team
// name, subagent roster (id prefix, role, description, status, first
// line of result), shared task list with statuses. Plain text only — no
// ANSI escapes — so it's always safe to display in a terminal.
func RenderCheckpoint(state TeamState) string {
	var b strings.Builder

	name := state.TeamName
	if name == "" {
		name = "(unnamed team)"
	}
	fmt.Fprintf(&b, "Team: %s\n", name)
	if state.LeadAgentID != "" {
		fmt.Fprintf(&b, "Lead agent: %s\n", agentIDPrefix(state.LeadAgentID))
	}
	if state.LeadSessionID != "" {
		fmt.Fprintf(&b, "Lead session: %s\n", state.LeadSessionID)
		fmt.Fprintf(&b, "%s%s\n", checkpointIDPrefix, sessionid.CheckpointID(state.LeadSessionID))
	}
	b.WriteString("\n")

	b.WriteString("Sub-agents:\n")
	subAgents := state.SortedSubAgents()
	if len(subAgents) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, sub := range subAgents {
		fmt.Fprintf(&b, "  - %s [%s] %s — %s\n", agentIDPrefix(sub.AgentID), sub.Status, sub.Role, sub.Description)
		if sub.LatestResultText != "" {
			fmt.Fprintf(&b, "    last result: %s\n", sub.LatestResultText)
		}
	}
	b.WriteString("\n")

	b.WriteString("Tasks:\n")
	if len(state.Tasks) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, task := range state.Tasks {
		owner := task.Owner
		if owner == "" {
			owner = "unassigned"
		}
		fmt.Fprintf(&b, "  - [%s] %s (owner: %s)\n", task.Status, task.Subject, owner)
	}

	return stripANSI(b.String())
}

// CheckpointSourceSession extracts the lead session id from a rendered
// checkpoint's date-prefixed "Checkpoint ID:" line (the inverse of
// RenderCheckpoint's sessionid.CheckpointID call). Returns "" if
// checkpointText carries no such line.
func CheckpointSourceSession(checkpointText string) string {
	for _, line := range strings.Split(checkpointText, "\n") {
		if id, ok := strings.CutPrefix(line, checkpointIDPrefix); ok {
			return sessionid.SourceSessionID(strings.TrimSpace(id))
		}
	}
	return ""
}

func agentIDPrefix(id string) string {
	if len(id) <= agentIDPrefixLen {
		return id
	}
	return id[:agentIDPrefixLen]
}

// stripANSI removes any CSI escape sequence, belt-and-suspenders against a
// sub-agent description or result line that happens to contain one.
func stripANSI(s string) string {
	const esc = '\x1b'
	if !strings.ContainsRune(s, esc) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inEscape := false
	for _, r := range s {
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		if r == esc {
			inEscape = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
