// File: internal/gate/gate.go
// Package gate bounds how many runs may execute simultaneously. The loop
// only registers and unregisters its run identifier; admission control lives
// here, outside the loop's core.
package gate

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Gate admits at most N simultaneous runs.
type Gate struct {
	sem    *semaphore.Weighted
	logger *zap.Logger

	mu         sync.Mutex
	registered map[string]struct{}
}

// New builds a gate admitting up to max concurrent runs.
func New(max int64, logger *zap.Logger) *Gate {
	return &Gate{
		sem:        semaphore.NewWeighted(max),
		logger:     logger.Named("gate"),
		registered: make(map[string]struct{}),
	}
}

// Register blocks until the run is admitted or the context is done.
func (g *Gate) Register(ctx context.Context, runID string) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.mu.Lock()
	g.registered[runID] = struct{}{}
	g.mu.Unlock()
	g.logger.Debug("Run admitted", zap.String("run_id", runID))
	return nil
}

// Unregister releases the run's slot. Safe to call for runs that never
// registered; the release only happens once per admission.
func (g *Gate) Unregister(runID string) {
	g.mu.Lock()
	_, ok := g.registered[runID]
	if ok {
		delete(g.registered, runID)
	}
	g.mu.Unlock()
	if !ok {
		return
	}
	g.sem.Release(1)
	g.logger.Debug("Run released", zap.String("run_id", runID))
}

// Active returns how many runs currently hold a slot.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.registered)
}
