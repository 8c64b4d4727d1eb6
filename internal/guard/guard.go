// Package guard implements the long-lived guard loop: continuous state
// extraction, two-tier threshold pruning, and the reactive overflow
// watcher that keeps a running transcript under its configured budget. It
// builds on this module's ambient pieces — slog logging, errgroup
// supervision, atomic writes. See DESIGN.md.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/diagnose"
	"github.com/ctxguard/ctxguard/internal/iostore"
	"github.com/ctxguard/ctxguard/internal/logging"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/ctxguard/ctxguard/internal/settings"
	"github.com/ctxguard/ctxguard/internal/strategy"
	"github.com/ctxguard/ctxguard/internal/team"
)

// Phase names the state a guard cycle lands in after a tick.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseSoftFired      Phase = "soft_fired"
	PhaseHardFired      Phase = "hard_fired"
	PhaseBreakerTripped Phase = "breaker_tripped"
)

// TeamCache is a bounded, shared-across-sessions cache of each guarded
// session's most recently extracted TeamState, keyed by session path. A
// single Loop only ever touches its own key, so the cache is not useful
// at the per-Loop level — it exists for a Supervisor watching many
// sessions at once (see supervisor.go) and is sized so memory does not
// grow unboundedly with session count.
type TeamCache = lru.Cache[string, team.TeamState]

// DefaultTeamCacheSize is the Supervisor default for TeamCache capacity.
const DefaultTeamCacheSize = 64

// NewTeamCache constructs a TeamCache with the given capacity.
func NewTeamCache(size int) (*TeamCache, error) {
	if size <= 0 {
		size = DefaultTeamCacheSize
	}
	return lru.New[string, team.TeamState](size)
}

// Config configures one Loop: the session file it guards, where its
// checkpoint and lock files live, the strategy registry, the team config
// lookup, and the thresholds from settings.GuardConfig.
type Config struct {
	SessionPath    string
	CheckpointPath string
	TeamsRoot      string
	TeamName       string

	Guard    settings.GuardConfig
	Registry *strategy.Registry
	OptsFor  func(name string) strategy.Options

	// Reloader performs the kill-and-resume step of a HARD_FIRED cycle.
	// Defaults to NoOpReloader if nil.
	Reloader     Reloader
	HostAgentPID int
	ResumeCmd    []string

	// Now returns the current time; overridable for deterministic tests.
	Now func() time.Time

	// TeamCache, if set, receives this session's extracted TeamState after
	// every cycle. Shared across a Supervisor's Loops; nil in a
	// single-session Loop is fine, it just means no cross-session cache.
	TeamCache *TeamCache
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// CycleResult reports what one guard cycle did, for logging and tests.
type CycleResult struct {
	Phase           Phase
	SizeBytes       int64
	EstimatedTokens int
	Prescription    string
	Reports         []action.Report
	BackupPath      string
	Reloaded        bool
	BreakerTripped  bool
	Note            string
}

// Loop runs the guard state machine for a single session file. The poll
// thread and the reactive watcher thread both call into cycle methods
// while holding mu: one mutex serializes every mutation of the session
// file and the TeamState cache.
type Loop struct {
	cfg     Config
	breaker *Breaker

	mu sync.Mutex

	// checkpointDirty is set by the reactive thread to ask the poll
	// thread for an out-of-band checkpoint write on its next tick,
	// except immediately after a reactive prune, where the reactive
	// thread writes the checkpoint itself under the lock.
	checkpointDirty bool

	// shutdown is closed by Stop so both loops observe it cooperatively
	// between ticks/records; a caught signal in the CLI layer cancels
	// Run's context instead.
	shutdown chan struct{}
	stopOnce sync.Once
}

// NewLoop builds a Loop from cfg, filling in defaults for an unset
// Reloader and breaker window/count.
func NewLoop(cfg Config) *Loop {
	if cfg.Reloader == nil {
		cfg.Reloader = NoOpReloader{}
	}
	breakerWindow := time.Duration(cfg.Guard.BreakerWindowSeconds) * time.Second
	return &Loop{
		cfg:      cfg,
		breaker:  NewBreaker(cfg.Guard.BreakerMaxEvents, breakerWindow),
		shutdown: make(chan struct{}),
	}
}

// Stop signals both the poll and reactive loops to exit after their
// current tick. Idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.shutdown) })
}

// Run starts the poll thread and, if enabled, the reactive watcher
// thread, supervising both through an errgroup so either's fatal error
// cancels the other. Run blocks until ctx is canceled, Stop is called,
// or a thread returns a fatal error; on any exit path it writes one
// final checkpoint.
func (l *Loop) Run(ctx context.Context) error {
	ctx = logging.WithComponent(ctx, "guard")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.pollLoop(gctx) })
	if l.cfg.Guard.ReactiveIsEnabled() {
		g.Go(func() error { return l.reactiveLoop(gctx) })
	}

	err := g.Wait()
	l.writeFinalCheckpoint(ctx)
	return err
}

func (l *Loop) pollInterval() time.Duration {
	if l.cfg.Guard.PollIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(l.cfg.Guard.PollIntervalSeconds) * time.Second
}

func (l *Loop) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(l.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.shutdown:
			return nil
		case <-ticker.C:
			result := l.RunOnce(ctx, false)
			logCycle(ctx, result)
		}
	}
}

// writeFinalCheckpoint is the best-effort final checkpoint written on
// shutdown; it never returns an error the caller must act on.
func (l *Loop) writeFinalCheckpoint(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, _, err := record.ReadFile(l.cfg.SessionPath)
	if err != nil {
		logging.Warn(ctx, "final checkpoint: reading session failed", slog.String("error", err.Error()))
		return
	}
	state := l.extractTeamStateLocked(ctx, records)
	if err := l.writeCheckpointLocked(ctx, state); err != nil {
		logging.Warn(ctx, "final checkpoint write failed", slog.String("error", err.Error()))
	}
}

// RunOnce performs exactly one guard cycle: read size/tokens, extract
// and checkpoint team state, then apply whichever of soft-fired,
// hard-fired, or breaker-tripped the current thresholds select. reactive
// is true when called from the reactive watcher, which selects an
// escalated prescription.
func (l *Loop) RunOnce(ctx context.Context, reactive bool) CycleResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.cfg.SessionPath)
	if err != nil {
		logging.Warn(ctx, "guard cycle: stat failed", slog.String("error", err.Error()))
		return CycleResult{Phase: PhaseIdle, Note: err.Error()}
	}
	size := info.Size()

	records, warnings, err := record.ReadFile(l.cfg.SessionPath)
	if err != nil {
		logging.Warn(ctx, "guard cycle: read failed", slog.String("error", err.Error()))
		return CycleResult{Phase: PhaseIdle, SizeBytes: size, Note: err.Error()}
	}
	for _, w := range warnings {
		logging.Warn(ctx, "guard cycle: malformed transcript line", slog.Int("line", w.LineNumber), slog.String("error", w.Err.Error()))
	}

	state := l.extractTeamStateLocked(ctx, records)
	if err := l.writeCheckpointLocked(ctx, state); err != nil {
		logging.Warn(ctx, "guard cycle: checkpoint write failed", slog.String("error", err.Error()))
	}
	l.checkpointDirty = false

	tokens := sumTokens(records)

	hardTokens := l.cfg.Guard.HardThresholdTokens
	hardBytes := l.cfg.Guard.HardThresholdBytes()
	softBytes := l.cfg.Guard.SoftThresholdBytes()

	hardTrip := size >= hardBytes || (hardTokens > 0 && tokens >= hardTokens)
	softTrip := size >= softBytes

	switch {
	case hardTrip:
		return l.hardFiredLocked(ctx, records, state, size, tokens, reactive)
	case softTrip:
		return l.softFiredLocked(ctx, records, state, size, tokens)
	default:
		return CycleResult{Phase: PhaseIdle, SizeBytes: size, EstimatedTokens: tokens}
	}
}

func (l *Loop) extractTeamStateLocked(ctx context.Context, records []record.Record) team.TeamState {
	state := team.Extract(records)
	if l.cfg.TeamName != "" && l.cfg.TeamsRoot != "" {
		cfg, err := team.LoadConfig(l.cfg.TeamsRoot, l.cfg.TeamName)
		if err == nil {
			state = team.Merge(state, cfg)
		}
	}
	if l.cfg.TeamCache != nil {
		if prev, ok := l.cfg.TeamCache.Get(l.cfg.SessionPath); ok {
			logTeamStateDelta(ctx, prev, state)
		}
		l.cfg.TeamCache.Add(l.cfg.SessionPath, state)
	}
	return state
}

// logTeamStateDelta logs what changed in a session's TeamState since the
// last cycle that populated the shared TeamCache — a Supervisor watching
// many sessions uses this to surface roster/task churn without re-reading
// every session's full transcript.
func logTeamStateDelta(ctx context.Context, prev, next team.TeamState) {
	subAgentDelta := len(next.SubAgents) - len(prev.SubAgents)
	taskDelta := len(next.Tasks) - len(prev.Tasks)
	if subAgentDelta == 0 && taskDelta == 0 {
		return
	}
	logging.Debug(ctx, "team state changed since last cached cycle",
		slog.Int("sub_agent_delta", subAgentDelta),
		slog.Int("task_delta", taskDelta),
		slog.Int("sub_agents", len(next.SubAgents)),
		slog.Int("tasks", len(next.Tasks)),
	)
}

func (l *Loop) writeCheckpointLocked(ctx context.Context, state team.TeamState) error {
	if l.cfg.CheckpointPath == "" {
		return nil
	}
	content := team.RenderCheckpoint(state)
	_, err := iostore.BackupAndWrite(ctx, l.cfg.CheckpointPath, []byte(content), l.cfg.now())
	return err
}

func (l *Loop) softFiredLocked(ctx context.Context, records []record.Record, state team.TeamState, size int64, tokens int) CycleResult {
	name := l.cfg.Guard.SoftPrescription
	if name == "" {
		name = "gentle"
	}
	prescription, ok := l.cfg.Registry.Prescription(name)
	if !ok {
		prescription, _ = l.cfg.Registry.Prescription("gentle")
		name = "gentle"
	}

	pruned, reports, err := team.Protect(l.cfg.Registry, prescription, records, state, l.cfg.OptsFor)
	if err != nil {
		logging.Warn(ctx, "soft-fired prune failed", slog.String("error", err.Error()))
		return CycleResult{Phase: PhaseIdle, SizeBytes: size, EstimatedTokens: tokens}
	}

	backupPath, err := l.writeSessionLocked(ctx, pruned)
	if err != nil {
		logging.Warn(ctx, "soft-fired write failed", slog.String("error", err.Error()))
		return CycleResult{Phase: PhaseIdle, SizeBytes: size, EstimatedTokens: tokens}
	}

	logging.Info(ctx, "soft-fired prune applied", slog.String("prescription", name), slog.Int("records_before", len(records)), slog.Int("records_after", len(pruned)))
	return CycleResult{Phase: PhaseSoftFired, SizeBytes: size, EstimatedTokens: tokens, Prescription: name, Reports: reports, BackupPath: backupPath}
}

// escalatedPrescription picks gentle/standard/aggressive for the Nth
// reactive recovery within the breaker window: gentle on the first
// reactive recovery, standard on the second, aggressive on the third
// and beyond.
func escalatedPrescription(eventOrdinal int) string {
	switch {
	case eventOrdinal <= 1:
		return "gentle"
	case eventOrdinal == 2:
		return "standard"
	default:
		return "aggressive"
	}
}

func (l *Loop) hardFiredLocked(ctx context.Context, records []record.Record, state team.TeamState, size int64, tokens int, reactive bool) CycleResult {
	now := l.cfg.now()

	name := l.cfg.Guard.HardPrescription
	if name == "" {
		name = "standard"
	}
	if reactive {
		name = escalatedPrescription(l.breaker.EventCount(now) + 1)
	}

	tripped := l.breaker.RecordEvent(now)
	if tripped {
		logging.Warn(ctx, "breaker tripped: refusing further automatic prunes", slog.Int("events", l.breaker.EventCount(now)))
		return CycleResult{Phase: PhaseBreakerTripped, SizeBytes: size, EstimatedTokens: tokens, BreakerTripped: true, Note: "breaker tripped: guard is observe-only until restarted"}
	}

	prescription, ok := l.cfg.Registry.Prescription(name)
	if !ok {
		prescription, _ = l.cfg.Registry.Prescription("standard")
		name = "standard"
	}

	pruned, reports, err := team.Protect(l.cfg.Registry, prescription, records, state, l.cfg.OptsFor)
	if err != nil {
		logging.Warn(ctx, "hard-fired prune failed", slog.String("error", err.Error()))
		return CycleResult{Phase: PhaseIdle, SizeBytes: size, EstimatedTokens: tokens}
	}

	backupPath, err := l.writeSessionLocked(ctx, pruned)
	if err != nil {
		logging.Warn(ctx, "hard-fired write failed", slog.String("error", err.Error()))
		return CycleResult{Phase: PhaseIdle, SizeBytes: size, EstimatedTokens: tokens}
	}

	result := CycleResult{Phase: PhaseHardFired, SizeBytes: size, EstimatedTokens: tokens, Prescription: name, Reports: reports, BackupPath: backupPath}

	postTokens := sumTokens(pruned)
	postSize := int64(record.TotalBytes(pruned))
	if postSize >= l.cfg.Guard.HardThresholdBytes() {
		result.Note = "post-prune size still exceeds hard threshold; reload skipped"
		logging.Warn(ctx, result.Note, slog.Int64("post_size", postSize))
		return result
	}

	if l.cfg.Guard.ReloadIsEnabled() && l.cfg.HostAgentPID > 0 {
		if err := l.cfg.Reloader.KillAndResume(l.cfg.HostAgentPID, l.cfg.ResumeCmd); err != nil {
			logging.Warn(ctx, "reload failed", slog.String("error", err.Error()))
		} else {
			result.Reloaded = true
		}
	}

	logging.Info(ctx, "hard-fired prune applied",
		slog.String("prescription", name),
		slog.Int("records_before", len(records)),
		slog.Int("records_after", len(pruned)),
		slog.Int("post_tokens", postTokens),
		slog.Bool("reloaded", result.Reloaded),
	)
	return result
}

func (l *Loop) writeSessionLocked(ctx context.Context, records []record.Record) (string, error) {
	data, err := record.Serialize(records)
	if err != nil {
		return "", fmt.Errorf("serializing pruned transcript: %w", err)
	}
	return iostore.BackupAndWrite(ctx, l.cfg.SessionPath, data, l.cfg.now())
}

func sumTokens(records []record.Record) int {
	total := 0
	for i := range records {
		total += diagnose.EstimateTokens(records[i])
	}
	return total
}

func logCycle(ctx context.Context, result CycleResult) {
	if result.Phase == PhaseIdle && result.Note == "" {
		logging.Debug(ctx, "guard cycle idle", slog.Int64("size_bytes", result.SizeBytes), slog.Int("estimated_tokens", result.EstimatedTokens))
		return
	}
	logging.Info(ctx, "guard cycle", slog.String("phase", string(result.Phase)), slog.Int64("size_bytes", result.SizeBytes), slog.String("prescription", result.Prescription), slog.String("note", result.Note))
}
