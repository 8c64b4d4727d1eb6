package guard

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ctxguard/ctxguard/internal/logging"
)

// reactivePollFallback is the stat-polling cadence used when fsnotify is
// unavailable on the session file's filesystem.
const reactivePollFallback = 200 * time.Millisecond

// smallFileFactor defines the "well below soft threshold" fast path: a
// session whose size is under this fraction of the soft threshold causes
// the reactive watcher to return immediately on every wake-up without
// reading the file at all.
const smallFileFactor = 0.5

// reactiveState tracks what the reactive watcher has observed between
// wake-ups. It is only ever touched from the reactive goroutine, so it
// needs no locking of its own; the shared Loop.mu is taken only for the
// moments that actually read/write the session file or checkpoint.
type reactiveState struct {
	lastSize int64
}

func (l *Loop) reactiveLoop(ctx context.Context) error {
	ctx = logging.WithComponent(ctx, "guard.reactive")
	st := &reactiveState{}

	watcher, watchErr := fsnotify.NewWatcher()
	if watchErr != nil {
		logging.Warn(ctx, "fsnotify unavailable, falling back to stat polling", slog.String("error", watchErr.Error()))
		return l.reactivePollLoop(ctx, st)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(l.cfg.SessionPath); err != nil {
		logging.Warn(ctx, "fsnotify watch failed, falling back to stat polling", slog.String("error", err.Error()))
		return l.reactivePollLoop(ctx, st)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.shutdown:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return l.reactivePollLoop(ctx, st)
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				l.reactiveWake(ctx, st)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return l.reactivePollLoop(ctx, st)
			}
			// ENOSPC (inotify instance limit) and similar: fall back to
			// polling for this session rather than treating it as fatal.
			logging.Warn(ctx, "fsnotify error, falling back to stat polling", slog.String("error", err.Error()))
			return l.reactivePollLoop(ctx, st)
		}
	}
}

func (l *Loop) reactivePollLoop(ctx context.Context, st *reactiveState) error {
	ticker := time.NewTicker(reactivePollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.shutdown:
			return nil
		case <-ticker.C:
			l.reactiveWake(ctx, st)
		}
	}
}

// reactiveWake is one reactive-watcher observation. It implements the
// small-file fast path, the hard-threshold crossing detector, and the
// checkpoint-dirty handoff to the poll thread.
func (l *Loop) reactiveWake(ctx context.Context, st *reactiveState) {
	info, err := os.Stat(l.cfg.SessionPath)
	if err != nil {
		return
	}
	size := info.Size()

	soft := l.cfg.Guard.SoftThresholdBytes()
	if soft > 0 && float64(size) < float64(soft)*smallFileFactor {
		st.lastSize = size
		return
	}

	hard := l.cfg.Guard.HardThresholdBytes()
	crossedHard := st.lastSize < hard && size >= hard
	st.lastSize = size

	if !crossedHard {
		// Not a hard-threshold jump: ask the poll thread to refresh the
		// checkpoint on its next tick rather than doing I/O here.
		l.mu.Lock()
		l.checkpointDirty = true
		l.mu.Unlock()
		return
	}

	logging.Info(ctx, "reactive watcher observed hard-threshold crossing", slog.Int64("size_bytes", size))
	result := l.RunOnce(ctx, true)
	logCycle(ctx, result)
}
