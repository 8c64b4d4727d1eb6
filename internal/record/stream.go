package record

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// ReadWarning reports a line that failed to parse as JSON. The line is not
// dropped: a placeholder record of kind unknown retains the exact original
// bytes so that a later atomic rewrite never silently loses data ctxguard
// couldn't understand.
type ReadWarning struct {
	LineNumber int
	Err        error
}

func (w ReadWarning) Error() string {
	return fmt.Sprintf("line %d: %v", w.LineNumber, w.Err)
}

// ReadFile streams and parses every line of a transcript file.
func ReadFile(path string) ([]Record, []ReadWarning, error) {
	f, err := os.Open(path) //nolint:gosec // path is the caller's own transcript location
	if err != nil {
		return nil, nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadAll(f)
}

// ReadAll streams and parses every line from r. A bufio.Reader reading up
// to '\n' is used instead of bufio.Scanner: transcripts routinely carry
// single lines far larger than any fixed scanner buffer (embedded
// documents, unbounded tool output), and this reader has no such ceiling.
func ReadAll(r io.Reader) ([]Record, []ReadWarning, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var records []Record
	var warnings []ReadWarning
	lineNo := 0

	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			trimmed := bytes.TrimRight(line, "\r\n")
			if len(bytes.TrimSpace(trimmed)) > 0 {
				rec, parseErr := Parse(trimmed)
				if parseErr != nil {
					warnings = append(warnings, ReadWarning{LineNumber: lineNo, Err: parseErr})
					rec = placeholderRecord(trimmed)
				}
				records = append(records, rec)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading transcript: %w", err)
		}
	}

	return records, warnings, nil
}

// placeholderRecord wraps a line that could not be parsed as JSON so it
// round-trips byte-for-byte through a read/rewrite cycle.
func placeholderRecord(line []byte) Record {
	cp := make([]byte, len(line))
	copy(cp, line)
	return Record{Raw: cp}
}

// WriteFile serializes records back to JSONL and writes them to path. The
// caller is responsible for atomicity (see internal/iostore for the
// backup-then-rename pattern used by every destructive write).
func WriteFile(path string, records []Record) error {
	data, err := Serialize(records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil { //nolint:gosec // transcripts are user-owned session data
		return fmt.Errorf("writing transcript: %w", err)
	}
	return nil
}

// Serialize renders records back to JSONL bytes, one line per record plus
// a trailing newline, using each record's stored Raw bytes — nothing is
// re-marshaled, so unknown fields survive untouched.
func Serialize(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range records {
		buf.Write(rec.Bytes())
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// TotalBytes sums ByteLen across records — the baseline a strategy's
// savings are measured against.
func TotalBytes(records []Record) int {
	total := 0
	for _, r := range records {
		total += r.ByteLen()
	}
	return total
}
