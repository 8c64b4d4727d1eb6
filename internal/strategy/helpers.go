package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ctxguard/ctxguard/internal/record"
)

// withoutTopLevelFields re-marshals a record's raw JSON with the named
// top-level fields removed, preserving every other field (including ones
// this model doesn't know about) untouched. Returns ok=false if no named
// field was actually present, so callers can skip a no-op action.
func withoutTopLevelFields(rec record.Record, fields ...string) (record.Record, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Bytes(), &raw); err != nil {
		return record.Record{}, false
	}

	removedAny := false
	for _, f := range fields {
		if _, ok := raw[f]; ok {
			delete(raw, f)
			removedAny = true
		}
	}
	if !removedAny {
		return record.Record{}, false
	}

	return reparse(raw)
}

// withoutMessageFields removes the named fields from a record's nested
// message envelope (e.g. "usage", "stop_reason"), used by metadata-strip
// to drop per-turn telemetry without touching message.content.
func withoutMessageFields(rec record.Record, fields ...string) (record.Record, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Bytes(), &raw); err != nil {
		return record.Record{}, false
	}
	msgRaw, ok := raw["message"]
	if !ok {
		return record.Record{}, false
	}
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(msgRaw, &msg); err != nil {
		return record.Record{}, false
	}

	removedAny := false
	for _, f := range fields {
		if _, ok := msg[f]; ok {
			delete(msg, f)
			removedAny = true
		}
	}
	if !removedAny {
		return record.Record{}, false
	}

	newMsgData, err := json.Marshal(msg)
	if err != nil {
		return record.Record{}, false
	}
	raw["message"] = newMsgData

	return reparse(raw)
}

// withReplacedMessageContent re-marshals a record with its message.content
// field replaced, preserving every other field on both the record and its
// message envelope.
func withReplacedMessageContent(rec record.Record, content any) (record.Record, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Bytes(), &raw); err != nil {
		return record.Record{}, false
	}
	msgRaw, ok := raw["message"]
	if !ok {
		return record.Record{}, false
	}

	var msg map[string]json.RawMessage
	if err := json.Unmarshal(msgRaw, &msg); err != nil {
		return record.Record{}, false
	}

	contentData, err := json.Marshal(content)
	if err != nil {
		return record.Record{}, false
	}
	msg["content"] = contentData

	newMsgData, err := json.Marshal(msg)
	if err != nil {
		return record.Record{}, false
	}
	raw["message"] = newMsgData

	return reparse(raw)
}

// withTopLevelField sets a top-level field to an arbitrary value,
// preserving everything else.
func withTopLevelField(rec record.Record, field string, value any) (record.Record, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Bytes(), &raw); err != nil {
		return record.Record{}, false
	}
	data, err := json.Marshal(value)
	if err != nil {
		return record.Record{}, false
	}
	raw[field] = data
	return reparse(raw)
}

func reparse(raw map[string]json.RawMessage) (record.Record, bool) {
	data, err := json.Marshal(raw)
	if err != nil {
		return record.Record{}, false
	}
	out, err := record.Parse(data)
	if err != nil {
		return record.Record{}, false
	}
	return out, true
}

func ptr[T any](v T) *T { return &v }

// jsonUnmarshalInput decodes a tool_use block's raw "input" field into dst.
func jsonUnmarshalInput(b record.MessageContentBlock, dst any) error {
	if len(b.Input) == 0 {
		return nil
	}
	return json.Unmarshal(b.Input, dst)
}

// blockToMap reconstructs a generic JSON object for a content block,
// carrying over only the fields that were actually set, so re-marshaling an
// untouched block doesn't introduce empty keys that weren't in the source.
func blockToMap(b record.MessageContentBlock) map[string]any {
	m := map[string]any{"type": b.Type}
	if b.Text != "" {
		m["text"] = b.Text
	}
	if b.Name != "" {
		m["name"] = b.Name
	}
	if len(b.Input) > 0 {
		var v any
		if err := json.Unmarshal(b.Input, &v); err == nil {
			m["input"] = v
		}
	}
	if b.ToolUseID != "" {
		m["tool_use_id"] = b.ToolUseID
	}
	if len(b.Content) > 0 {
		var v any
		if err := json.Unmarshal(b.Content, &v); err == nil {
			m["content"] = v
		}
	}
	return m
}

// contentText extracts the plain text a tool_result's content field carries,
// whether it is a bare JSON string or an array of {"type":"text",...} blocks.
func contentText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString
	}
	var blocks []record.MessageContentBlock
	if err := json.Unmarshal(content, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return joinStrings(parts)
	}
	return ""
}

func joinStrings(parts []string) string {
	return strings.Join(parts, "\n")
}

// trimLines keeps the first headLines and last tailLines of text, replacing
// the middle with an elision marker noting the original byte count. Text
// with too few lines to trim is returned unchanged.
func trimLines(text string, headLines, tailLines int) (string, bool) {
	lines := strings.Split(text, "\n")
	if len(lines) <= headLines+tailLines {
		return text, false
	}
	head := lines[:headLines]
	tail := lines[len(lines)-tailLines:]
	marker := fmt.Sprintf("… [ctxguard elided %d bytes, %d lines] …", len(text), len(lines)-headLines-tailLines)
	out := strings.Join(head, "\n") + "\n" + marker + "\n" + strings.Join(tail, "\n")
	return out, true
}

// exceedsSizeOrLines reports whether text is larger than maxBytes or has
// more than maxLines lines — the tool-output-trim trigger condition.
func exceedsSizeOrLines(text string, maxBytes, maxLines int) bool {
	if len(text) > maxBytes {
		return true
	}
	return strings.Count(text, "\n")+1 > maxLines
}

// sha256Hex returns the hex-encoded SHA-256 digest of data, used by
// document-dedup to detect byte-identical document payloads.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalizeFileHistoryPayload extracts the comparable payload of a
// file-history-snapshot record — the whole record minus volatile
// bookkeeping fields (uuid, parentUuid, timestamp, cwd) — so two snapshots
// of the same file state
// compare equal regardless of when each was taken.
func canonicalizeFileHistoryPayload(rec record.Record) string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Bytes(), &raw); err != nil {
		return string(rec.Bytes())
	}
	for _, volatile := range []string{"uuid", "parentUuid", "timestamp", "cwd"} {
		delete(raw, volatile)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return string(rec.Bytes())
	}
	return string(data)
}

// buildCollapsedRecord synthesizes the single record that replaces a
// contiguous run of same-signature records. Its uuid/parentUuid equal the
// first original record's, matching the ReplaceRange invariant that a
// collapsed run keeps its parent chain intact.
func buildCollapsedRecord(first record.Record, strategyName string, count int, lastText string) (record.Record, bool) {
	payload := map[string]any{
		"type":       "system",
		"uuid":       first.UUID,
		"parentUuid": first.ParentUUID,
		"ctxguardCollapsed": map[string]any{
			"strategy": strategyName,
			"count":    count,
			"lastText": lastText,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return record.Record{}, false
	}
	out, err := record.Parse(data)
	if err != nil {
		return record.Record{}, false
	}
	return out, true
}
