package record

import "testing"

func TestClassifyKind(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{
			name: "genuine user turn",
			line: `{"type":"user","uuid":"u1","message":{"content":"please fix the bug"}}`,
			want: KindUser,
		},
		{
			name: "tool result only",
			line: `{"type":"user","uuid":"u2","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}`,
			want: KindToolResult,
		},
		{
			name: "system reminder only",
			line: `{"type":"user","uuid":"u3","message":{"content":[{"type":"text","text":"<system-reminder>todo list empty</system-reminder>"}]}}`,
			want: KindSystemReminder,
		},
		{
			name: "assistant turn",
			line: `{"type":"assistant","uuid":"a1","message":{"content":[{"type":"text","text":"done"}]}}`,
			want: KindAssistant,
		},
		{
			name: "summary",
			line: `{"type":"summary","uuid":"s1"}`,
			want: KindSummary,
		},
		{
			name: "queue operation",
			line: `{"type":"queue_operation","uuid":"q1"}`,
			want: KindQueueOperation,
		},
		{
			name: "file history snapshot",
			line: `{"type":"file-history-snapshot","uuid":"f1"}`,
			want: KindFileHistorySnapshot,
		},
		{
			name: "task notification",
			line: `{"type":"task_notification","uuid":"t1"}`,
			want: KindTaskNotification,
		},
		{
			name: "assistant tool-use only",
			line: `{"type":"assistant","uuid":"a2","message":{"content":[{"type":"tool_use","name":"Read","input":{}}]}}`,
			want: KindToolUse,
		},
		{
			name: "system progress tick",
			line: `{"type":"system","uuid":"s2","message":{"content":"Running…"}}`,
			want: KindProgressTick,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Parse([]byte(tt.line))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := rec.ClassifyKind(); got != tt.want {
				t.Errorf("ClassifyKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsHTTPSpam(t *testing.T) {
	rec, err := Parse([]byte(`{"type":"system","uuid":"s1","message":{"content":"GET https://api.example.com/v1/status"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.IsHTTPSpam() {
		t.Errorf("expected IsHTTPSpam() = true")
	}
}

func TestErrorSignature(t *testing.T) {
	rec, err := Parse([]byte(`{"type":"user","uuid":"u1","message":{"content":"Error: connection refused"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.ErrorSignature(); got != "connection refused" {
		t.Errorf("ErrorSignature() = %q, want %q", got, "connection refused")
	}
}

func TestExtractModifiedFiles(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"tool_use","name":"Write","input":{"file_path":"/tmp/a.go"}}]}}`,
		`{"type":"assistant","uuid":"a2","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"/tmp/b.go"}}]}}`,
		`{"type":"assistant","uuid":"a3","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/tmp/a.go"}}]}}`,
	)

	got := ExtractModifiedFiles(records)
	want := []string{"/tmp/a.go"}
	if len(got) != len(want) || got[0] != want[0] {
		t.Errorf("ExtractModifiedFiles() = %v, want %v", got, want)
	}
}

func TestExtractLastUserPrompt(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"user","uuid":"u1","message":{"content":"first prompt"}}`,
		`{"type":"assistant","uuid":"a1","message":{"content":[{"type":"text","text":"ack"}]}}`,
		`{"type":"user","uuid":"u2","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}`,
		`{"type":"user","uuid":"u3","message":{"content":"second prompt"}}`,
	)

	if got := ExtractLastUserPrompt(records); got != "second prompt" {
		t.Errorf("ExtractLastUserPrompt() = %q, want %q", got, "second prompt")
	}
}

func TestTruncateAtUUID(t *testing.T) {
	records := mustParseAll(t,
		`{"type":"user","uuid":"u1"}`,
		`{"type":"assistant","uuid":"a1"}`,
		`{"type":"user","uuid":"u2"}`,
	)

	got := TruncateAtUUID(records, "a1")
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[len(got)-1].UUID != "a1" {
		t.Errorf("last record UUID = %q, want a1", got[len(got)-1].UUID)
	}
}

func TestTruncateAtUUID_NotFound(t *testing.T) {
	records := mustParseAll(t, `{"type":"user","uuid":"u1"}`)
	got := TruncateAtUUID(records, "missing")
	if len(got) != 1 {
		t.Errorf("expected records unchanged, got %d", len(got))
	}
}

func mustParseAll(t *testing.T, lines ...string) []Record {
	t.Helper()
	var out []Record
	for _, l := range lines {
		rec, err := Parse([]byte(l))
		if err != nil {
			t.Fatalf("unexpected error parsing %q: %v", l, err)
		}
		out = append(out, rec)
	}
	return out
}
