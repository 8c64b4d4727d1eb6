package guard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctxguard/ctxguard/internal/settings"
	"github.com/ctxguard/ctxguard/internal/strategy"
)

func TestNewSupervisor_RequiresAtLeastOneSession(t *testing.T) {
	_, err := NewSupervisor(nil, 0)
	require.Error(t, err)
}

func TestSupervisor_SharesTeamCacheAcrossLoops(t *testing.T) {
	dir := t.TempDir()
	sessionA := filepath.Join(dir, "a.jsonl")
	sessionB := filepath.Join(dir, "b.jsonl")
	writeProgressTranscript(t, sessionA, 1)
	writeProgressTranscript(t, sessionB, 1)

	registry := strategy.NewRegistry()
	optsFor := func(string) strategy.Options { return strategy.Options{} }
	guardCfg := settings.GuardConfig{HardThresholdMB: 50, SoftThresholdMB: 30}
	now := func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }

	configs := []Config{
		{SessionPath: sessionA, Guard: guardCfg, Registry: registry, OptsFor: optsFor, Now: now},
		{SessionPath: sessionB, Guard: guardCfg, Registry: registry, OptsFor: optsFor, Now: now},
	}

	sup, err := NewSupervisor(configs, 8)
	require.NoError(t, err)
	require.Len(t, sup.Loops(), 2)

	sharedCache := sup.Loops()[0].cfg.TeamCache
	require.Same(t, sharedCache, sup.Loops()[1].cfg.TeamCache)

	sup.Loops()[0].RunOnce(context.Background(), false)
	sup.Loops()[1].RunOnce(context.Background(), false)

	_, okA := sharedCache.Get(sessionA)
	_, okB := sharedCache.Get(sessionB)
	require.True(t, okA)
	require.True(t, okB)
}

func TestSupervisor_StopEndsRun(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.jsonl")
	writeProgressTranscript(t, sessionPath, 1)

	guardCfg := settings.GuardConfig{HardThresholdMB: 50, SoftThresholdMB: 30, PollIntervalSeconds: 1, ReactiveEnabled: boolPtr(false)}
	sup, err := NewSupervisor([]Config{
		{SessionPath: sessionPath, Guard: guardCfg, Registry: strategy.NewRegistry(), OptsFor: func(string) strategy.Options { return strategy.Options{} }},
	}, 0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	sup.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
