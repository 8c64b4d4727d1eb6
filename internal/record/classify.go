package record

import (
	"encoding/json"
	"regexp"
	"strings"
)

// toolResultTypes and other block type constants used across classifiers.
const (
	blockTypeToolUse    = "tool_use"
	blockTypeToolResult = "tool_result"
	blockTypeThinking   = "thinking"
	blockTypeText       = "text"
)

// progressTickPattern matches the short, high-frequency status lines a
// host agent's streaming UI writes to the transcript while a long-running
// tool call is in flight ("Running…", "Thinking…", a spinner glyph
// followed by a short verb phrase). These carry no information once the
// tool call itself has completed and is recorded.
var progressTickPattern = regexp.MustCompile(`^[\s]*[⎿●○·]?\s*(Running|Thinking|Waiting|Working|Polling|Processing)[\w\s]{0,40}(\.{1,3}|…)\s*$`)

// httpSpamPattern matches the host agent's HTTP-request log sentinel —
// lines it emits while proxying or instrumenting outbound requests.
var httpSpamPattern = regexp.MustCompile(`^(GET|POST|PUT|PATCH|DELETE|HEAD)\s+https?://\S+`)

// backgroundPollPattern matches status-query records the host agent emits
// while checking on a backgrounded process (shell job, subagent) with no
// new information from the user.
var backgroundPollPattern = regexp.MustCompile(`(?i)^(checking status|polling|still running|no new output|background (task|shell|process) status)\b`)

// errorSignaturePattern extracts a normalized error signature from a
// record's text so repeated identical failures can be recognized as the
// same error across retries.
var errorSignaturePattern = regexp.MustCompile(`(?i)^(error|failed|exception)[:\s]+(.+)$`)

// ClassifyKind derives a Kind for a record, beyond the raw "type" field:
// user/assistant records get refined into tool-use, tool-result, and
// system-reminder sub-kinds based on their content blocks, and several
// top-level "type" sentinels used by host agents for structural bookkeeping
// (file-history snapshots, progress ticks, task notifications) get their
// own Kind — the distinctions the strategy catalog prunes independently (a
// tool_result-only user turn is prunable in ways a genuine human turn never
// is).
func (r *Record) ClassifyKind() Kind {
	switch r.Type {
	case "user":
		if r.IsSidechain {
			return KindUser
		}
		blocks := r.ContentBlocks()
		if len(blocks) == 0 {
			return KindUser
		}
		allToolResults := true
		for _, b := range blocks {
			if b.Type != blockTypeToolResult {
				allToolResults = false
				break
			}
		}
		if allToolResults {
			return KindToolResult
		}
		if isSystemReminderOnly(blocks) {
			return KindSystemReminder
		}
		if progressTickPattern.MatchString(r.TextContent()) {
			return KindProgressTick
		}
		return KindUser
	case "assistant":
		blocks := r.ContentBlocks()
		if len(blocks) > 0 {
			allToolUse := true
			for _, b := range blocks {
				if b.Type != blockTypeToolUse {
					allToolUse = false
					break
				}
			}
			if allToolUse {
				return KindToolUse
			}
		}
		if progressTickPattern.MatchString(r.TextContent()) {
			return KindProgressTick
		}
		return KindAssistant
	case "system":
		text := r.TextContent()
		if progressTickPattern.MatchString(text) || httpSpamPattern.MatchString(text) {
			return KindProgressTick
		}
		return KindSystem
	case "summary":
		return KindSummary
	case "queue_operation", "queue-operation":
		return KindQueueOperation
	case "file-history-snapshot", "file_history_snapshot":
		return KindFileHistorySnapshot
	case "progress_tick", "progress-tick", "progress":
		return KindProgressTick
	case "task_notification", "task-notification":
		return KindTaskNotification
	default:
		return KindUnknown
	}
}

// isSystemReminderOnly reports whether every text block in blocks is wholly
// wrapped in a <system-reminder> tag, the host agent's mechanism for
// injecting ambient context (open files, todo state) into the transcript
// without it being a real human turn.
func isSystemReminderOnly(blocks []MessageContentBlock) bool {
	sawText := false
	for _, b := range blocks {
		if b.Type != blockTypeText {
			continue
		}
		sawText = true
		trimmed := strings.TrimSpace(b.Text)
		if !strings.HasPrefix(trimmed, "<system-reminder>") || !strings.HasSuffix(trimmed, "</system-reminder>") {
			return false
		}
	}
	return sawText
}

// IsHTTPSpam reports whether the record's text matches the host agent's
// HTTP-request log sentinel (strategy 8, http-spam).
func (r *Record) IsHTTPSpam() bool {
	return httpSpamPattern.MatchString(r.TextContent())
}

// IsBackgroundPoll reports whether the record's text matches a
// polling/status-query sentinel with no intervening user turn (strategy
// 10, background-poll-collapse).
func (r *Record) IsBackgroundPoll() bool {
	return backgroundPollPattern.MatchString(r.TextContent())
}

// ErrorSignature returns a normalized error signature for the record's
// text, or "" if the text doesn't look like an error/failure report
// (strategy 9, error-retry-collapse).
func (r *Record) ErrorSignature() string {
	m := errorSignaturePattern.FindStringSubmatch(strings.TrimSpace(r.TextContent()))
	if m == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(m[2]))
}

// ToolUseBlocks returns the tool_use content blocks of an assistant record.
func (r *Record) ToolUseBlocks() []MessageContentBlock {
	var out []MessageContentBlock
	for _, b := range r.ContentBlocks() {
		if b.Type == blockTypeToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ThinkingBlocks returns the thinking content blocks of an assistant record.
func (r *Record) ThinkingBlocks() []MessageContentBlock {
	var out []MessageContentBlock
	for _, b := range r.ContentBlocks() {
		if b.Type == blockTypeThinking {
			out = append(out, b)
		}
	}
	return out
}

// fileModificationTools lists tool names whose "input" carries a file or
// notebook path that was written to disk.
var fileModificationTools = []string{"Write", "Edit", "NotebookEdit", "MultiEdit"}

type filePathInput struct {
	FilePath     string `json:"file_path,omitempty"`
	NotebookPath string `json:"notebook_path,omitempty"`
}

// ExtractModifiedFiles returns every file path touched by a
// file-modification tool call across records, in first-seen order.
func ExtractModifiedFiles(records []Record) []string {
	seen := make(map[string]bool)
	var files []string

	for i := range records {
		if records[i].Type != "assistant" {
			continue
		}
		for _, block := range records[i].ToolUseBlocks() {
			if !isFileModificationTool(block.Name) {
				continue
			}
			var input filePathInput
			if err := json.Unmarshal(block.Input, &input); err != nil {
				continue
			}
			file := input.FilePath
			if file == "" {
				file = input.NotebookPath
			}
			if file != "" && !seen[file] {
				seen[file] = true
				files = append(files, file)
			}
		}
	}
	return files
}

func isFileModificationTool(name string) bool {
	for _, t := range fileModificationTools {
		if t == name {
			return true
		}
	}
	return false
}

// ExtractLastUserPrompt returns the text of the last genuine (non-tool-result,
// non-system-reminder) user turn in records.
func ExtractLastUserPrompt(records []Record) string {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Type != "user" {
			continue
		}
		if records[i].ClassifyKind() != KindUser {
			continue
		}
		if text := records[i].TextContent(); text != "" {
			return text
		}
	}
	return ""
}

// TruncateAtUUID returns records up to and including the one with the given
// UUID. If uuid is empty or not found, records is returned unchanged.
func TruncateAtUUID(records []Record, uuid string) []Record {
	if uuid == "" {
		return records
	}
	for i := range records {
		if records[i].UUID == uuid {
			return records[:i+1]
		}
	}
	return records
}

// IndexByUUID builds a uuid -> slice-index lookup, used by the action
// applier to validate Drop/Replace targets before mutating anything.
func IndexByUUID(records []Record) map[string]int {
	idx := make(map[string]int, len(records))
	for i := range records {
		if records[i].UUID != "" {
			idx[records[i].UUID] = i
		}
	}
	return idx
}

// Children returns a parentUUID -> child-UUIDs adjacency map for the
// record DAG, used to detect orphaning when a parent record is dropped.
func Children(records []Record) map[string][]string {
	out := make(map[string][]string)
	for i := range records {
		if records[i].ParentUUID == "" {
			continue
		}
		out[records[i].ParentUUID] = append(out[records[i].ParentUUID], records[i].UUID)
	}
	return out
}
