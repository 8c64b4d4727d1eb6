package iostore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	if err := os.WriteFile(path, []byte("original"), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	backupPath, err := Backup(context.Background(), path, time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backupPath == "" {
		t.Fatal("expected a non-empty backup path")
	}
	if !strings.HasSuffix(backupPath, ".bak") {
		t.Errorf("expected backup path to end in .bak, got %s", backupPath)
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(data) != "original" {
		t.Errorf("backup content = %q, want %q", data, "original")
	}

	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading original: %v", err)
	}
	if string(original) != "original" {
		t.Errorf("backup should leave the original untouched, got %q", original)
	}
}

func TestBackup_MissingFileIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nope.jsonl")

	backupPath, err := Backup(context.Background(), path, time.Now().UTC())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backupPath != "" {
		t.Errorf("expected no backup path for a missing file, got %s", backupPath)
	}
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	if err := AtomicWrite(context.Background(), path, []byte("fresh")); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	if string(data) != "fresh" {
		t.Errorf("content = %q, want %q", data, "fresh")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("expected no leftover temp file, found %s", e.Name())
		}
	}
}

func TestAtomicWrite_NewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.jsonl")

	if err := AtomicWrite(context.Background(), path, []byte("hello")); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want %q", data, "hello")
	}
}

func TestBackupAndWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	backupPath, err := BackupAndWrite(context.Background(), path, []byte("v2"), time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BackupAndWrite: %v", err)
	}
	if backupPath == "" {
		t.Fatal("expected a backup path")
	}

	backupData, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(backupData) != "v1" {
		t.Errorf("backup content = %q, want %q", backupData, "v1")
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading current: %v", err)
	}
	if string(current) != "v2" {
		t.Errorf("current content = %q, want %q", current, "v2")
	}
}
