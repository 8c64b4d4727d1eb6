// Package doctor implements the self-checks ctxguard's own packages can
// report on: lock-file staleness, checkpoint-directory writability, and
// settings-file parse errors. Deeper host-agent-specific checks (the ones
// the `doctor` subcommand's out-of-scope terminal/process inspection would
// cover) stay external per spec §1; this package only defines the
// Checker interface and a stub implementation covering what ctxguard's
// own state layout can self-report.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctxguard/ctxguard/internal/guard"
	"github.com/ctxguard/ctxguard/internal/paths"
	"github.com/ctxguard/ctxguard/internal/settings"
)

// Severity buckets a DoctorFinding by how urgently it needs attention.
type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// DoctorFinding is one self-check result.
type DoctorFinding struct {
	Check    string
	Severity Severity
	Message  string
	// Fixable reports whether Fix can resolve this finding without
	// operator input. Findings that are merely informational (SeverityOK)
	// are never fixable.
	Fixable bool
}

// Checker runs a set of self-checks and reports their findings.
type Checker interface {
	Check() []DoctorFinding
}

// StubChecker is the self-check implementation ctxguard ships: lock-file
// staleness, checkpoint-directory writability, and settings-file parse
// errors. It has no dependency on a running host agent, so it works the
// same whether or not one is attached to the current session.
type StubChecker struct {
	// ProjectRoot overrides paths.ProjectRoot for tests; empty means use
	// the real project root resolution.
	ProjectRoot string
}

// Check runs every self-check in a fixed order and returns their
// findings, one per check.
func (c StubChecker) Check() []DoctorFinding {
	return []DoctorFinding{
		c.checkSettings(),
		c.checkCheckpointDir(),
		c.checkLockFiles(),
	}
}

func (c StubChecker) root() string {
	if c.ProjectRoot != "" {
		return c.ProjectRoot
	}
	return paths.ProjectRootOr(".")
}

func (c StubChecker) checkSettings() DoctorFinding {
	if _, err := settings.Load(); err != nil {
		return DoctorFinding{
			Check:    "settings",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s or its local override failed to parse: %v", settings.SettingsFile, err),
			Fixable:  false,
		}
	}
	return DoctorFinding{
		Check:    "settings",
		Severity: SeverityOK,
		Message:  "settings.json parses cleanly",
	}
}

func (c StubChecker) checkpointDir() string {
	return filepath.Join(c.root(), paths.StateDir)
}

func (c StubChecker) checkCheckpointDir() DoctorFinding {
	dir := c.checkpointDir()
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return DoctorFinding{
			Check:    "checkpoint-dir",
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("%s does not exist yet; `ctxguard guard` creates it on first cycle", dir),
			Fixable:  true,
		}
	case err != nil:
		return DoctorFinding{
			Check:    "checkpoint-dir",
			Severity: SeverityError,
			Message:  fmt.Sprintf("stat %s: %v", dir, err),
		}
	case !info.IsDir():
		return DoctorFinding{
			Check:    "checkpoint-dir",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s exists but is not a directory", dir),
		}
	}

	probe := filepath.Join(dir, ".doctor-write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return DoctorFinding{
			Check:    "checkpoint-dir",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	_ = os.Remove(probe)
	return DoctorFinding{
		Check:    "checkpoint-dir",
		Severity: SeverityOK,
		Message:  fmt.Sprintf("%s is writable", dir),
	}
}

func (c StubChecker) checkLockFiles() DoctorFinding {
	tempDir := os.TempDir()
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return DoctorFinding{
			Check:    "lock-files",
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("could not scan %s for stale guard locks: %v", tempDir, err),
		}
	}

	var stale []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isGuardLockName(name) {
			continue
		}
		full := filepath.Join(tempDir, name)
		if guard.IsLockStale(full) {
			stale = append(stale, full)
		}
	}

	if len(stale) == 0 {
		return DoctorFinding{
			Check:    "lock-files",
			Severity: SeverityOK,
			Message:  "no stale guard lock files found",
		}
	}
	return DoctorFinding{
		Check:    "lock-files",
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("%d stale guard lock file(s) found (owning process no longer running)", len(stale)),
		Fixable:  true,
	}
}

func isGuardLockName(name string) bool {
	const prefix, suffix = "ctxguard-guard-", ".lock"
	if len(name) < len(prefix)+len(suffix) {
		return false
	}
	return name[:len(prefix)] == prefix && name[len(name)-len(suffix):] == suffix
}

// Fix applies fixes for every Fixable finding Check reported: it creates
// the checkpoint directory if missing and removes stale guard lock files.
// Non-fixable findings (settings parse errors) are left untouched and
// reported back unchanged.
func (c StubChecker) Fix() []DoctorFinding {
	findings := c.Check()
	for i, f := range findings {
		if !f.Fixable {
			continue
		}
		switch f.Check {
		case "checkpoint-dir":
			if err := os.MkdirAll(c.checkpointDir(), 0o750); err == nil {
				findings[i] = DoctorFinding{Check: f.Check, Severity: SeverityOK, Message: fmt.Sprintf("created %s", c.checkpointDir())}
			}
		case "lock-files":
			c.removeStaleLocks()
			findings[i] = c.checkLockFiles()
		}
	}
	return findings
}

func (c StubChecker) removeStaleLocks() {
	tempDir := os.TempDir()
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isGuardLockName(e.Name()) {
			continue
		}
		full := filepath.Join(tempDir, e.Name())
		if guard.IsLockStale(full) {
			_ = os.Remove(full)
		}
	}
}
