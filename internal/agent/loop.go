// File: internal/agent/loop.go
// The agent execution loop: a state machine driving one exploratory run from
// backend initialization through iterative observe/act exchanges with the
// remote agent, to a terminal result. One Loop instance serves exactly one
// run and exclusively owns its backend.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/argoseyes/uxprobe/internal/backend"
	"github.com/argoseyes/uxprobe/internal/config"
)

// State represents the loop's current phase.
type State string

const (
	StateIdle         State = "IDLE"         // Created, not yet started.
	StateInitializing State = "INITIALIZING" // The execution backend is being brought up.
	StateNavigating   State = "NAVIGATING"   // The target site is loading.
	StateIterating    State = "ITERATING"    // Observe/act exchanges are in progress.
	StateCompleted    State = "COMPLETED"    // The agent declared the goal achieved.
	StateFailed       State = "FAILED"       // A fatal error or exhausted budget ended the run.
)

const (
	systemPrompt = "You are an automated UX tester operating a real web browser through the " +
		"tools provided. You see the page through screenshots. Work step by step toward the " +
		"goal you are given, using at most one tool call per reply. When the goal is achieved, " +
		"or you conclude it cannot be, reply with your assessment in plain text and do not " +
		"call any tool."

	situationalPrompt = "Above is the current state of the page after your last action. " +
		"Continue toward the goal, or reply without a tool call if it is complete."

	teardownTimeout = 30 * time.Second
)

// interIterationDelay paces consecutive agent exchanges. Variable so tests can
// collapse it.
var interIterationDelay = 1 * time.Second

// Gatekeeper admits runs into the bounded concurrency slot pool.
type Gatekeeper interface {
	Register(ctx context.Context, runID string) error
	Unregister(runID string)
}

// Loop executes one run. Construct with NewLoop and call Run exactly once.
type Loop struct {
	backend   backend.Backend
	exchanger Exchanger
	gate      Gatekeeper
	display   config.DisplayConfig
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

// NewLoop wires a loop for a single run.
func NewLoop(b backend.Backend, ex Exchanger, gate Gatekeeper, display config.DisplayConfig, logger *zap.Logger) *Loop {
	return &Loop{
		backend:   b,
		exchanger: ex,
		gate:      gate,
		display:   display,
		logger:    logger.Named("loop"),
		state:     StateIdle,
	}
}

// State returns the loop's current phase.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// updateState transitions the loop, enforcing that terminal states are never
// exited.
func (l *Loop) updateState(next State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == next {
		return
	}
	if l.state == StateCompleted || l.state == StateFailed {
		l.logger.Warn("Ignoring transition out of a terminal state",
			zap.String("current_state", string(l.state)),
			zap.String("attempted_state", string(next)))
		return
	}
	l.logger.Debug("Loop state transition",
		zap.String("from", string(l.state)), zap.String("to", string(next)))
	l.state = next
}

// Run drives the run to completion and returns its result. The backend is
// always torn down before returning, on every exit path, with a fresh context
// so teardown survives run-deadline expiry. The result carries whatever log
// and screenshot trail accumulated, even on failure.
func (l *Loop) Run(ctx context.Context, run *Run) Result {
	start := time.Now()
	run.startedAt = start

	if err := l.gate.Register(ctx, run.ID); err != nil {
		return l.finish(run, start, 0, fmt.Errorf("run admission: %w", err))
	}
	defer l.gate.Unregister(run.ID)

	runCtx, cancel := context.WithTimeout(ctx, run.Timeout)
	defer cancel()

	defer func() {
		teardownCtx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer tcancel()
		defer func() {
			if r := recover(); r != nil {
				terr := &TeardownError{Backend: l.backend.Name(), Err: fmt.Errorf("panic: %v", r)}
				l.logger.Error("Teardown failed", zap.String("run_id", run.ID), zap.Error(terr))
			}
		}()
		l.backend.Cleanup(teardownCtx)
	}()

	iterations, err := l.execute(runCtx, run)

	// Triage order matters: a caller cancellation is reported as-is, and only
	// an expiry of the run's own deadline becomes a RunTimeout.
	if err != nil && ctx.Err() == nil && runCtx.Err() == context.DeadlineExceeded {
		err = &RunTimeout{Elapsed: time.Since(start).Round(time.Millisecond).String()}
	}

	// On failure, snapshot the final visual state before teardown. Uses a
	// fresh context because the run's own deadline may already be dead.
	if err != nil && iterations > 0 {
		snapCtx, snapCancel := context.WithTimeout(context.Background(), 10*time.Second)
		l.captureTrail(snapCtx, run, "Final state")
		snapCancel()
	}
	return l.finish(run, start, iterations, err)
}

// finish records the terminal result on the run and the loop.
func (l *Loop) finish(run *Run, start time.Time, iterations int, err error) Result {
	if err != nil {
		l.updateState(StateFailed)
		run.Logf("Run failed: %v", err)
		l.logger.Error("Run failed",
			zap.String("run_id", run.ID),
			zap.Int("iterations", iterations),
			zap.Error(err),
		)
	} else {
		l.updateState(StateCompleted)
		l.logger.Info("Run completed",
			zap.String("run_id", run.ID),
			zap.Int("iterations", iterations),
			zap.Duration("duration", time.Since(start)),
		)
	}
	run.Result = Result{
		Success:    err == nil,
		Iterations: iterations,
		Duration:   time.Since(start),
		Err:        err,
	}
	return run.Result
}

// execute performs initialization, navigation and the iteration loop, and
// returns how many iterations ran before the terminal condition.
func (l *Loop) execute(ctx context.Context, run *Run) (int, error) {
	l.updateState(StateInitializing)
	run.Logf("Initializing %s backend", l.backend.Name())
	if err := l.backend.Initialize(ctx); err != nil {
		return 0, &InitializationError{Backend: l.backend.Name(), Err: err}
	}
	l.captureTrail(ctx, run, "Initial state")

	l.updateState(StateNavigating)
	if err := l.backend.Navigate(ctx, run.TargetURL); err != nil {
		return 0, &NavigationError{URL: run.TargetURL, Err: err}
	}
	run.Logf("Navigated to %s", run.TargetURL)
	l.captureTrail(ctx, run, "Navigated to "+run.TargetURL)

	l.updateState(StateIterating)
	tools := ToolsFor(l.backend, l.display.Width, l.display.Height)
	var conversation []Message

	for iteration := 1; iteration <= run.MaxIterations; iteration++ {
		if iteration == 1 {
			shot, err := l.backend.Screenshot(ctx)
			if err != nil {
				return iteration, fmt.Errorf("capture initial screenshot: %w", err)
			}
			conversation = append(conversation, Message{
				Role:    RoleUser,
				Content: []ContentBlock{TextBlock(l.initialPrompt(run)), ImageBlock(shot)},
			})
		}

		resp, err := l.exchanger.Exchange(ctx, &ExchangeRequest{
			System:   systemPrompt,
			Messages: conversation,
			Tools:    tools,
		})
		if err != nil {
			return iteration, fmt.Errorf("agent exchange (iteration %d): %w", iteration, err)
		}
		conversation = append(conversation, Message{Role: RoleAssistant, Content: resp.Content})

		inv := resp.FirstToolUse()
		if inv == nil {
			run.Logf("Agent signaled completion: %s", resp.TextContent())
			l.logger.Info("Agent declared the goal complete",
				zap.String("run_id", run.ID), zap.Int("iteration", iteration))
			return iteration, nil
		}

		resultText, isErr := dispatchTool(ctx, l.backend, run, inv, l.logger)

		shot, err := l.backend.Screenshot(ctx)
		if err != nil {
			return iteration, fmt.Errorf("capture screenshot after iteration %d: %w", iteration, err)
		}
		conversation = append(conversation, Message{
			Role: RoleUser,
			Content: []ContentBlock{
				ToolResultBlock(inv.ID, []ContentBlock{
					TextBlock(resultText),
					ImageBlock(shot),
					TextBlock(situationalPrompt),
				}, isErr),
			},
		})

		if iteration < run.MaxIterations {
			select {
			case <-time.After(interIterationDelay):
			case <-ctx.Done():
				return iteration, ctx.Err()
			}
		}
	}
	return run.MaxIterations, ErrIterationBudgetExhausted
}

// captureTrail records a labeled screenshot when capture is enabled. Trail
// capture is best effort and never fails the run.
func (l *Loop) captureTrail(ctx context.Context, run *Run, label string) {
	if !run.CaptureScreenshots {
		return
	}
	shot, err := l.backend.Screenshot(ctx)
	if err != nil {
		l.logger.Warn("Trail screenshot failed",
			zap.String("run_id", run.ID), zap.String("label", label), zap.Error(err))
		return
	}
	run.AddScreenshot(label, shot)
}

// initialPrompt renders the first user turn's text.
func (l *Loop) initialPrompt(run *Run) string {
	return fmt.Sprintf(
		"The browser is showing %s. Your goal:\n\n%s\n\nThe first screenshot of the page follows.",
		run.TargetURL, run.Instruction)
}
