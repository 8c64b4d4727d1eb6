package strategy

import (
	"strings"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/record"
)

func standardStrategies() []Strategy {
	return []Strategy{
		thinkingBlocksStrategy{},
		toolOutputTrimStrategy{},
		staleReadsStrategy{},
		systemReminderDedupStrategy{},
	}
}

// Thinking-block rewrite modes (strategy 4 config key "mode").
const (
	ThinkingModeRemove        = "remove"
	ThinkingModeTruncate      = "truncate"
	ThinkingModeSignatureOnly = "signature-only"

	thinkingTruncateChars = 200
)

// thinkingBlocksStrategy rewrites an assistant record's thinking content
// blocks per the configured mode: remove deletes the block and its
// signature, truncate keeps the first 200 characters and drops the
// signature, signature-only drops just the signature field.
type thinkingBlocksStrategy struct{}

func (thinkingBlocksStrategy) Name() string      { return "thinking-blocks" }
func (thinkingBlocksStrategy) Tier() action.Tier { return action.TierStandard }
func (thinkingBlocksStrategy) Describe() string {
	return "Removes, truncates, or strips the signature from assistant thinking blocks."
}

func (s thinkingBlocksStrategy) Propose(records []record.Record, opts Options) []action.Action {
	mode := opts.StringOption("mode", ThinkingModeRemove)

	var actions []action.Action
	for i := range records {
		rec := records[i]
		if rec.Type != "assistant" {
			continue
		}
		blocks := rec.ContentBlocks()
		hasThinking := false
		for _, b := range blocks {
			if b.Type == "thinking" {
				hasThinking = true
				break
			}
		}
		if !hasThinking {
			continue
		}

		changed := false
		newBlocks := make([]map[string]any, 0, len(blocks))
		for _, b := range blocks {
			if b.Type != "thinking" {
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			changed = true
			switch mode {
			case ThinkingModeRemove:
				// block dropped entirely
			case ThinkingModeTruncate:
				text := b.Text
				if len(text) > thinkingTruncateChars {
					text = text[:thinkingTruncateChars]
				}
				newBlocks = append(newBlocks, map[string]any{"type": "thinking", "text": text})
			case ThinkingModeSignatureOnly:
				newBlocks = append(newBlocks, map[string]any{"type": "thinking", "text": b.Text})
			default:
				// Unknown mode: behave like remove rather than leaving the
				// signature (the expensive part) in place.
			}
		}
		if !changed {
			continue
		}
		replacement, ok := withReplacedMessageContent(rec, newBlocks)
		if !ok {
			continue
		}
		actions = append(actions, action.Action{
			Kind:        action.Replace,
			UUID:        rec.UUID,
			Replacement: &replacement,
			Strategy:    s.Name(),
			Reason:      "rewrote thinking block per configured mode (" + mode + ")",
		})
	}
	return actions
}

const (
	toolOutputTrimMaxBytes  = 8 * 1024
	toolOutputTrimMaxLines  = 100
	toolOutputTrimHeadLines = 50
	toolOutputTrimTailLines = 20
)

// toolOutputTrimStrategy replaces an oversized tool_result block's content
// with a head/tail-preserving elision, keeping enough of each end that a
// human skimming the transcript still sees the shape of what ran. Trigger:
// payload over 8KiB or 100 lines.
type toolOutputTrimStrategy struct{}

func (toolOutputTrimStrategy) Name() string      { return "tool-output-trim" }
func (toolOutputTrimStrategy) Tier() action.Tier { return action.TierStandard }
func (toolOutputTrimStrategy) Describe() string {
	return "Trims tool_result output over 8KiB/100 lines to its first 50 and last 20 lines."
}

func (s toolOutputTrimStrategy) Propose(records []record.Record, opts Options) []action.Action {
	maxBytes := opts.IntOption("max_bytes", toolOutputTrimMaxBytes)
	maxLines := opts.IntOption("max_lines", toolOutputTrimMaxLines)
	headLines := opts.IntOption("head_lines", toolOutputTrimHeadLines)
	tailLines := opts.IntOption("tail_lines", toolOutputTrimTailLines)

	var actions []action.Action
	for i := range records {
		rec := records[i]
		blocks := rec.ContentBlocks()
		if len(blocks) == 0 {
			continue
		}

		changed := false
		newBlocks := make([]map[string]any, 0, len(blocks))
		for _, b := range blocks {
			if b.Type != "tool_result" {
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			text := contentText(b.Content)
			if !exceedsSizeOrLines(text, maxBytes, maxLines) {
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			trimmed, ok := trimLines(text, headLines, tailLines)
			if !ok {
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			block := map[string]any{
				"type":              "tool_result",
				"content":           trimmed,
				"ctxguardOrigBytes": len(text),
			}
			if b.ToolUseID != "" {
				block["tool_use_id"] = b.ToolUseID
			}
			newBlocks = append(newBlocks, block)
			changed = true
		}
		if !changed {
			continue
		}
		replacement, ok := withReplacedMessageContent(rec, newBlocks)
		if !ok {
			continue
		}
		actions = append(actions, action.Action{
			Kind:        action.Replace,
			UUID:        rec.UUID,
			Replacement: &replacement,
			Strategy:    s.Name(),
			Reason:      "trimmed oversized tool_result to head/tail",
		})
	}
	return actions
}

// readToolNames lists tool_use names whose result reproduces file content
// already on disk — the payload stale-reads targets.
var readToolNames = map[string]bool{"Read": true, "NotebookRead": true}

// writeToolNames lists tool_use names that mutate a file on disk, making
// any earlier read of the same path stale. Shared with
// record.ExtractModifiedFiles' fileModificationTools list in spirit, kept
// local here since the exact set this strategy cares about (no
// MultiEdit-only nuance) is this package's own concern.
var writeToolNames = map[string]bool{"Write": true, "Edit": true, "MultiEdit": true, "NotebookEdit": true}

type pendingToolCall struct {
	name string
	path string
}

// staleReadsStrategy drops an earlier file-read tool_result once a later
// edit tool call targets the same path before any subsequent read of it.
// Path identity is the exact string the tool call carries, trimmed of
// whitespace.
type staleReadsStrategy struct{}

func (staleReadsStrategy) Name() string      { return "stale-reads" }
func (staleReadsStrategy) Tier() action.Tier { return action.TierStandard }
func (staleReadsStrategy) Describe() string {
	return "Drops a file read whose content is superseded by a later edit to the same path."
}

func (s staleReadsStrategy) Propose(records []record.Record, opts Options) []action.Action {
	pending := make(map[string]pendingToolCall) // tool_use_id -> call
	lastReadRecord := make(map[string]int)       // path -> record index holding the read's result

	var actions []action.Action

	for i := range records {
		rec := records[i]

		if rec.Type == "assistant" {
			for _, b := range rec.ToolUseBlocks() {
				path := toolCallPath(b)
				if path == "" {
					continue
				}
				if readToolNames[b.Name] || writeToolNames[b.Name] {
					pending[b.ToolUseID] = pendingToolCall{name: b.Name, path: path}
				}
			}
			continue
		}

		if rec.Type != "user" {
			continue
		}
		for _, b := range rec.ContentBlocks() {
			if b.Type != "tool_result" || b.ToolUseID == "" {
				continue
			}
			call, ok := pending[b.ToolUseID]
			if !ok {
				continue
			}
			delete(pending, b.ToolUseID)

			switch {
			case readToolNames[call.name]:
				lastReadRecord[call.path] = i
			case writeToolNames[call.name]:
				if idx, ok := lastReadRecord[call.path]; ok {
					actions = append(actions, action.Action{
						Kind:     action.Drop,
						UUID:     records[idx].UUID,
						Strategy: s.Name(),
						Reason:   "file was re-read, then edited before any other read",
					})
					delete(lastReadRecord, call.path)
				}
			}
		}
	}
	return actions
}

type toolCallInput struct {
	FilePath     string `json:"file_path,omitempty"`
	NotebookPath string `json:"notebook_path,omitempty"`
}

func toolCallPath(b record.MessageContentBlock) string {
	if !readToolNames[b.Name] && !writeToolNames[b.Name] {
		return ""
	}
	var input toolCallInput
	if err := jsonUnmarshalInput(b, &input); err != nil {
		return ""
	}
	if input.FilePath != "" {
		return strings.TrimSpace(input.FilePath)
	}
	return strings.TrimSpace(input.NotebookPath)
}

// systemReminderDedupStrategy drops a duplicate <system-reminder>-wrapped
// text block wherever it recurs (not only in immediately adjacent turns),
// keeping the first occurrence; a record left with no content blocks after
// dedup is dropped entirely.
type systemReminderDedupStrategy struct{}

func (systemReminderDedupStrategy) Name() string      { return "system-reminder-dedup" }
func (systemReminderDedupStrategy) Tier() action.Tier { return action.TierStandard }
func (systemReminderDedupStrategy) Describe() string {
	return "Drops repeated occurrences of an identical system-reminder text block, keeping the first."
}

func (s systemReminderDedupStrategy) Propose(records []record.Record, opts Options) []action.Action {
	seen := make(map[string]bool)
	var actions []action.Action

	for i := range records {
		rec := records[i]
		blocks := rec.ContentBlocks()
		if len(blocks) == 0 {
			continue
		}

		changed := false
		newBlocks := make([]map[string]any, 0, len(blocks))
		for _, b := range blocks {
			reminder, isReminder := reminderText(b)
			if isReminder {
				if seen[reminder] {
					changed = true
					continue
				}
				seen[reminder] = true
			}
			newBlocks = append(newBlocks, blockToMap(b))
		}
		if !changed {
			continue
		}
		if len(newBlocks) == 0 {
			actions = append(actions, action.Action{
				Kind:     action.Drop,
				UUID:     rec.UUID,
				Strategy: s.Name(),
				Reason:   "record emptied by system-reminder dedup",
			})
			continue
		}
		replacement, ok := withReplacedMessageContent(rec, newBlocks)
		if !ok {
			continue
		}
		actions = append(actions, action.Action{
			Kind:        action.Replace,
			UUID:        rec.UUID,
			Replacement: &replacement,
			Strategy:    s.Name(),
			Reason:      "dropped a repeated system-reminder block",
		})
	}
	return actions
}

func reminderText(b record.MessageContentBlock) (string, bool) {
	if b.Type != "text" {
		return "", false
	}
	trimmed := strings.TrimSpace(b.Text)
	if strings.HasPrefix(trimmed, "<system-reminder>") && strings.HasSuffix(trimmed, "</system-reminder>") {
		return trimmed, true
	}
	return "", false
}
