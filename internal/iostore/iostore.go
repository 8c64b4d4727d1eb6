// Package iostore provides the on-disk write path every ctxguard mutation
// goes through: a timestamped backup of the file being overwritten, then an
// atomic write of the new content via a sibling temp file, fsync, and
// rename. Nothing in ctxguard writes a transcript or checkpoint directly
// with os.WriteFile.
package iostore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ctxguard/ctxguard/internal/logging"
)

// BackupTimeFormat is the timestamp layout stamped into backup file names.
const BackupTimeFormat = "20060102T150405"

// Backup copies path to a sibling "<path>.<timestamp>.bak" file and returns
// its path. If path does not exist, Backup is a no-op and returns "".
func Backup(ctx context.Context, path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled, not request-derived
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s for backup: %w", path, err)
	}

	backupPath := fmt.Sprintf("%s.%s.bak", path, now.UTC().Format(BackupTimeFormat))
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", fmt.Errorf("writing backup %s: %w", backupPath, err)
	}
	logging.Debug(ctx, "wrote backup", slog.String("path", backupPath), slog.Int("bytes", len(data)))
	return backupPath, nil
}

// AtomicWrite writes content to path by first writing it to a sibling temp
// file (named "<path>.tmp-<pid>-<uuid>" so concurrent writers never
// collide), fsyncing it, and renaming it over path. If the rename fails the
// temp file is left in place (and its path logged) rather than deleted,
// since at that point it may be the only copy of content that isn't lost;
// the original file at path is left untouched either way.
func AtomicWrite(ctx context.Context, path string, content []byte) error {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf("%s.tmp-%d-%s", filepath.Base(path), os.Getpid(), uuid.NewString()))

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating temp file %s: %w", tmpPath, err)
	}

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsyncing temp file %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		logging.Error(ctx, "atomic rename failed, leaving temp file for recovery",
			slog.String("temp_path", tmpPath), slog.String("target_path", path), slog.String("error", err.Error()))
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// BackupAndWrite is the combined operation every mutating command performs:
// back up the existing file (if any), then atomically write new content
// over it.
func BackupAndWrite(ctx context.Context, path string, content []byte, now time.Time) (backupPath string, err error) {
	backupPath, err = Backup(ctx, path, now)
	if err != nil {
		return "", err
	}
	if err := AtomicWrite(ctx, path, content); err != nil {
		return backupPath, err
	}
	return backupPath, nil
}
