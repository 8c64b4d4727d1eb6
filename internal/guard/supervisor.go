package guard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Supervisor runs one Loop per session a caller hands it, sharing a single
// bounded TeamCache across them. Session discovery itself — which files
// exist, which one is "current" — is left to the caller; Supervisor only
// orchestrates Loops for session paths it is given.
type Supervisor struct {
	loops []*Loop
}

// NewSupervisor builds one Loop per entry in configs, wiring a shared
// TeamCache (sized cacheSize, or DefaultTeamCacheSize if non-positive)
// into every Loop whose Config did not already set one explicitly.
func NewSupervisor(configs []Config, cacheSize int) (*Supervisor, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("guard: at least one session config is required")
	}

	cache, err := NewTeamCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}

	loops := make([]*Loop, 0, len(configs))
	for _, cfg := range configs {
		if cfg.TeamCache == nil {
			cfg.TeamCache = cache
		}
		loops = append(loops, NewLoop(cfg))
	}
	return &Supervisor{loops: loops}, nil
}

// Run starts every guarded session's Loop and blocks until ctx is
// canceled, Stop is called, or any Loop returns a fatal error — at which
// point every other Loop is canceled too.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range s.loops {
		loop := l
		g.Go(func() error { return loop.Run(gctx) })
	}
	return g.Wait()
}

// Stop signals every supervised Loop to exit after its current tick.
func (s *Supervisor) Stop() {
	for _, l := range s.loops {
		l.Stop()
	}
}

// Loops returns the supervised loops, in the order passed to
// NewSupervisor.
func (s *Supervisor) Loops() []*Loop {
	return s.loops
}
