package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadAll_ValidJSONL(t *testing.T) {
	content := strings.NewReader(`{"type":"user","uuid":"u1","message":{"content":"hello"}}
{"type":"assistant","uuid":"a1","message":{"content":[{"type":"text","text":"hi"}]}}
`)

	records, warnings, err := ReadAll(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Type != "user" || records[0].UUID != "u1" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
}

func TestReadAll_MalformedLinePreservedAsUnknown(t *testing.T) {
	content := strings.NewReader(`{"type":"user","uuid":"u1"}
not valid json
{"type":"assistant","uuid":"a1"}
`)

	records, warnings, err := ReadAll(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records (malformed line kept as placeholder), got %d", len(records))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if warnings[0].LineNumber != 2 {
		t.Errorf("warning line number = %d, want 2", warnings[0].LineNumber)
	}
	if records[1].ClassifyKind() != KindUnknown {
		t.Errorf("placeholder record kind = %v, want unknown", records[1].ClassifyKind())
	}
	if string(records[1].Bytes()) != "not valid json" {
		t.Errorf("placeholder record bytes = %q, want original line text", records[1].Bytes())
	}
}

func TestReadAll_EmptyContent(t *testing.T) {
	records, warnings, err := ReadAll(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected 0 records, got %d", len(records))
	}
	if len(warnings) != 0 {
		t.Errorf("expected 0 warnings, got %d", len(warnings))
	}
}

func TestReadAll_NoTrailingNewline(t *testing.T) {
	records, _, err := ReadAll(strings.NewReader(`{"type":"user","uuid":"u1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestReadFile_WriteFile_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "transcript.jsonl")

	original := strings.Join([]string{
		`{"type":"user","uuid":"u1","message":{"content":"hello"}}`,
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","message":{"content":[{"type":"text","text":"hi"}]}}`,
	}, "\n") + "\n"

	if err := os.WriteFile(path, []byte(original), 0o600); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	records, _, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	outPath := filepath.Join(tmpDir, "out.jsonl")
	if err := WriteFile(outPath, records); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	roundTripped, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read back file: %v", err)
	}
	if string(roundTripped) != original {
		t.Errorf("round trip mismatch:\ngot:  %q\nwant: %q", roundTripped, original)
	}
}

func TestTotalBytes(t *testing.T) {
	records, _, err := ReadAll(strings.NewReader(`{"type":"user","uuid":"u1"}
{"type":"assistant","uuid":"a1"}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := len(`{"type":"user","uuid":"u1"}`) + 1 + len(`{"type":"assistant","uuid":"a1"}`) + 1
	if got := TotalBytes(records); got != want {
		t.Errorf("TotalBytes() = %d, want %d", got, want)
	}
}
