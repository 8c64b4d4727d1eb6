package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctxguard/ctxguard/internal/settings"
	"github.com/ctxguard/ctxguard/internal/strategy"
)

func writeProgressTranscript(t *testing.T, path string, tickCount int) {
	t.Helper()
	var b strings.Builder
	b.WriteString(`{"type":"user","uuid":"u0","message":{"content":"start the task please and keep going"}}` + "\n")
	for i := 0; i < tickCount; i++ {
		fmt.Fprintf(&b, `{"type":"system","uuid":"tick-%d","message":{"content":"Running…"}}`+"\n", i)
	}
	b.WriteString(`{"type":"assistant","uuid":"a0","message":{"content":[{"type":"text","text":"done"}]}}` + "\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}

func testConfig(t *testing.T, sessionPath string, guardCfg settings.GuardConfig) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		SessionPath:    sessionPath,
		CheckpointPath: filepath.Join(dir, "checkpoint.txt"),
		Guard:          guardCfg,
		Registry:       strategy.NewRegistry(),
		OptsFor:        func(string) strategy.Options { return strategy.Options{} },
		Now:            func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) },
	}
}

func TestRunOnce_IdleBelowBothThresholds(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.jsonl")
	writeProgressTranscript(t, sessionPath, 2)

	cfg := testConfig(t, sessionPath, settings.GuardConfig{
		HardThresholdMB: 50,
		SoftThresholdMB: 30,
	})
	loop := NewLoop(cfg)

	result := loop.RunOnce(context.Background(), false)
	require.Equal(t, PhaseIdle, result.Phase)

	checkpointData, err := os.ReadFile(cfg.CheckpointPath)
	require.NoError(t, err)
	require.Contains(t, string(checkpointData), "Team:")
}

func TestRunOnce_TeamCachePopulatedAndReadableAcrossCycles(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.jsonl")
	writeProgressTranscript(t, sessionPath, 2)

	cfg := testConfig(t, sessionPath, settings.GuardConfig{
		HardThresholdMB: 50,
		SoftThresholdMB: 30,
	})
	cache, err := NewTeamCache(4)
	require.NoError(t, err)
	cfg.TeamCache = cache
	loop := NewLoop(cfg)

	_, ok := cache.Get(sessionPath)
	require.False(t, ok, "cache should be empty before the first cycle")

	loop.RunOnce(context.Background(), false)
	first, ok := cache.Get(sessionPath)
	require.True(t, ok, "first cycle should populate the shared cache")

	// A second cycle reads the cached state from the first cycle (for the
	// delta log) before overwriting it with the newly extracted state.
	loop.RunOnce(context.Background(), false)
	second, ok := cache.Get(sessionPath)
	require.True(t, ok)
	require.Equal(t, len(first.SubAgents), len(second.SubAgents))
}

func TestRunOnce_SoftFiredAppliesGentleAndShrinks(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.jsonl")
	writeProgressTranscript(t, sessionPath, 200)

	before, err := os.Stat(sessionPath)
	require.NoError(t, err)

	cfg := testConfig(t, sessionPath, settings.GuardConfig{
		HardThresholdMB: 50,
		SoftThresholdMB: 0.001, // ~1048 bytes: the 200-tick transcript trips soft, not hard
		SoftPrescription: "gentle",
	})
	loop := NewLoop(cfg)

	result := loop.RunOnce(context.Background(), false)
	require.Equal(t, PhaseSoftFired, result.Phase)
	require.Equal(t, "gentle", result.Prescription)
	require.NotEmpty(t, result.BackupPath)

	backupData, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	require.EqualValues(t, before.Size(), len(backupData))

	after, err := os.Stat(sessionPath)
	require.NoError(t, err)
	require.Less(t, after.Size(), before.Size(), "gentle prune should collapse the 200-tick run")
}

func TestRunOnce_HardFiredAppliesHardPrescriptionAndReloads(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.jsonl")
	writeProgressTranscript(t, sessionPath, 50)

	cfg := testConfig(t, sessionPath, settings.GuardConfig{
		HardThresholdMB:  0.001,
		SoftThresholdMB:  0.0005,
		HardPrescription: "standard",
	})
	cfg.HostAgentPID = 999999 // not a real process; NoOpReloader must not blow up
	loop := NewLoop(cfg)

	result := loop.RunOnce(context.Background(), false)
	require.Equal(t, PhaseHardFired, result.Phase)
	require.Equal(t, "standard", result.Prescription)
	require.NotEmpty(t, result.BackupPath)
	require.Empty(t, result.Note, "post-prune size should drop well below the hard threshold")
}

func TestRunOnce_HardFired_StillOverThresholdSkipsReloadWithNote(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.jsonl")
	writeProgressTranscript(t, sessionPath, 50)

	cfg := testConfig(t, sessionPath, settings.GuardConfig{
		// So small that even the fully-collapsed transcript still exceeds it.
		HardThresholdMB:  0.00001,
		SoftThresholdMB:  0.000005,
		HardPrescription: "standard",
	})
	loop := NewLoop(cfg)

	result := loop.RunOnce(context.Background(), false)
	require.Equal(t, PhaseHardFired, result.Phase)
	require.False(t, result.Reloaded)
	require.Contains(t, result.Note, "still exceeds hard threshold")
}

func TestRunOnce_BreakerTripsAfterRepeatedHardFires(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.jsonl")

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cfg := testConfig(t, sessionPath, settings.GuardConfig{
		HardThresholdMB:      0.001,
		SoftThresholdMB:      0.0005,
		HardPrescription:     "standard",
		BreakerMaxEvents:     3,
		BreakerWindowSeconds: 300,
	})
	cfg.Now = func() time.Time { return now }
	loop := NewLoop(cfg)

	var lastResult CycleResult
	for i := 0; i < 4; i++ {
		writeProgressTranscript(t, sessionPath, 50) // regrow past hard threshold each cycle
		lastResult = loop.RunOnce(context.Background(), false)
		now = now.Add(30 * time.Second)
		cfg.Now = func() time.Time { return now }
		loop.cfg.Now = cfg.Now
	}

	require.Equal(t, PhaseBreakerTripped, lastResult.Phase)
	require.True(t, lastResult.BreakerTripped)
	require.True(t, loop.breaker.Tripped())
}

func TestEscalatedPrescription(t *testing.T) {
	require.Equal(t, "gentle", escalatedPrescription(1))
	require.Equal(t, "standard", escalatedPrescription(2))
	require.Equal(t, "aggressive", escalatedPrescription(3))
	require.Equal(t, "aggressive", escalatedPrescription(10))
}

func TestLoop_StopEndsRun(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.jsonl")
	writeProgressTranscript(t, sessionPath, 1)

	cfg := testConfig(t, sessionPath, settings.GuardConfig{
		HardThresholdMB:     50,
		SoftThresholdMB:     30,
		PollIntervalSeconds: 1,
		ReactiveEnabled:     boolPtr(false),
	})
	loop := NewLoop(cfg)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	loop.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func boolPtr(b bool) *bool { return &b }
