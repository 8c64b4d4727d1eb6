// Package record models a single line of a host coding agent's JSONL
// transcript and the operations a strategy needs to classify, inspect, or
// rewrite it.
package record

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a record for strategy matching. Classification is based
// on the "type" field and, for user/assistant turns, the shape of the
// nested content blocks.
type Kind string

const (
	KindUser                Kind = "user"
	KindAssistant           Kind = "assistant"
	KindSystem              Kind = "system"
	KindSummary             Kind = "summary"
	KindQueueOperation      Kind = "queue_operation"
	KindToolUse             Kind = "tool_use"
	KindToolResult          Kind = "tool_result"
	KindSystemReminder      Kind = "system_reminder"
	KindFileHistorySnapshot Kind = "file_history_snapshot"
	KindProgressTick        Kind = "progress_tick"
	KindTaskNotification    Kind = "task_notification"
	KindUnknown             Kind = "unknown"
)

// Record is one line of a transcript. Raw holds the exact bytes (minus the
// trailing newline) as originally read, so that fields the model doesn't
// understand survive a read-modify-write cycle unchanged. UUID and
// ParentUUID anchor the record in the transcript's parent-pointer DAG and
// must never be mutated by a strategy.
type Record struct {
	Raw        json.RawMessage
	Type       string
	UUID       string
	ParentUUID string
	IsSidechain bool

	// decoded caches a lazily-parsed view of Raw's "message" field.
	decoded *envelope
}

// envelope is the subset of a transcript line's shape that strategies query
// across both Claude Code and Gemini CLI style transcripts.
type envelope struct {
	Message json.RawMessage `json:"message"`
}

type lineHeader struct {
	Type        string `json:"type"`
	UUID        string `json:"uuid"`
	ParentUUID  string `json:"parentUuid"`
	IsSidechain bool   `json:"isSidechain"`
}

// Parse decodes a single transcript line into a Record. Lines that cannot
// be parsed as JSON are returned as an error, not silently dropped: unlike
// a bulk read over a whole file, a single out-of-band Parse call needs to
// surface the failure so the caller can decide whether to treat the file
// as truncated.
func Parse(line []byte) (Record, error) {
	var hdr lineHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return Record{}, fmt.Errorf("parsing transcript line: %w", err)
	}

	cp := make(json.RawMessage, len(line))
	copy(cp, line)

	return Record{
		Raw:         cp,
		Type:        hdr.Type,
		UUID:        hdr.UUID,
		ParentUUID:  hdr.ParentUUID,
		IsSidechain: hdr.IsSidechain,
	}, nil
}

// Bytes returns the record's exact on-disk representation (without a
// trailing newline).
func (r Record) Bytes() []byte {
	return []byte(r.Raw)
}

func (r *Record) envelope() *envelope {
	if r.decoded != nil {
		return r.decoded
	}
	var e envelope
	_ = json.Unmarshal(r.Raw, &e)
	r.decoded = &e
	return r.decoded
}

// MessageContentBlock is one block of an assistant message's content array
// (text, tool_use, thinking, etc.) or a user message's tool_result array.
type MessageContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type messageWithContent struct {
	ID      string          `json:"id,omitempty"`
	Content json.RawMessage `json:"content"`
	Usage   *Usage          `json:"usage,omitempty"`
}

// Usage is the per-message token accounting reported by the host agent's
// underlying model API.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// MessageID returns the underlying model message id, when present
// (assistant records only; used to deduplicate streamed usage rows).
func (r *Record) MessageID() string {
	var m messageWithContent
	if err := json.Unmarshal(r.envelope().Message, &m); err != nil {
		return ""
	}
	return m.ID
}

// MessageUsage returns the token usage reported on this record's message,
// or nil if the record has none.
func (r *Record) MessageUsage() *Usage {
	var m messageWithContent
	if err := json.Unmarshal(r.envelope().Message, &m); err != nil {
		return nil
	}
	return m.Usage
}

// ContentBlocks returns the message's content blocks, normalizing both the
// plain-string and array-of-blocks shapes the host agent uses for user and
// assistant turns.
func (r *Record) ContentBlocks() []MessageContentBlock {
	var m messageWithContent
	if err := json.Unmarshal(r.envelope().Message, &m); err != nil {
		return nil
	}
	if len(m.Content) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []MessageContentBlock{{Type: "text", Text: asString}}
	}

	var blocks []MessageContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil
	}
	return blocks
}

// TextContent concatenates all "text" blocks in the record's message,
// separated by blank lines.
func (r *Record) TextContent() string {
	var texts []string
	for _, b := range r.ContentBlocks() {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return joinNonEmpty(texts)
}

func joinNonEmpty(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

// ByteLen reports the on-disk size of this record including its trailing
// newline, the unit strategies and the applier use to compute savings.
func (r Record) ByteLen() int {
	return len(r.Raw) + 1
}
