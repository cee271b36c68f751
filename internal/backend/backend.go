// File: internal/backend/backend.go
// Package backend defines the uniform actuation contract shared by the
// container-backed and process-backed execution environments, plus the two
// adapters implementing it. The agent loop is backend-agnostic: it only ever
// speaks this interface.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Settle delays applied after UI-mutating actions, before returning to the
// caller. The agent's next screenshot must show the completed visual effect,
// not an intermediate frame.
const (
	ClickSettleDelay  = 1 * time.Second
	KeySettleDelay    = 1 * time.Second
	TypeSettleDelay   = 500 * time.Millisecond
	ScrollSettleDelay = 300 * time.Millisecond
)

// ErrShellUnsupported is returned by RunShell on backends that expose no
// shell surface. Callers should check SupportsShell first.
var ErrShellUnsupported = errors.New("shell execution is not supported by this backend")

// Backend is the uniform actuation contract. An instance is bound to exactly
// one run: Initialize must succeed before any actuation call, and Cleanup
// must be idempotent and always invoked, on every exit path.
type Backend interface {
	// Initialize brings the environment to its ready state.
	Initialize(ctx context.Context) error

	// Navigate loads the target URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Screenshot returns the current display as base64 PNG, without a
	// data-URI prefix. Both adapters return the same encoding.
	Screenshot(ctx context.Context) (string, error)

	// Click moves the pointer to (x, y) and performs a single primary click.
	Click(ctx context.Context, x, y int) error

	// Type enters literal text as if typed.
	Type(ctx context.Context, text string) error

	// Key presses a single named key. Symbols use the X keysym vocabulary;
	// adapters translate to their native vocabulary where needed.
	Key(ctx context.Context, symbol string) error

	// Scroll scrolls at (x, y) by a signed amount derived from direction and
	// magnitude.
	Scroll(ctx context.Context, x, y int, direction string, amount int) error

	// RunShell executes an arbitrary command inside the environment.
	// Returns ErrShellUnsupported where no shell surface exists.
	RunShell(ctx context.Context, command string) (string, error)

	// SupportsShell reports whether RunShell is available, so callers can
	// query capability instead of probing for errors.
	SupportsShell() bool

	// Cleanup tears the environment down. Safe to call repeatedly.
	Cleanup(ctx context.Context)

	// Name identifies the adapter for logs and error messages.
	Name() string
}

// validateCoordinates rejects points outside the configured display. Inputs
// come from an untrusted remote agent and are never trusted blindly.
func validateCoordinates(x, y, width, height int) error {
	if x < 0 || y < 0 || x >= width || y >= height {
		return fmt.Errorf("coordinates (%d, %d) outside display bounds %dx%d", x, y, width, height)
	}
	return nil
}

// scrollDelta converts a direction and magnitude into a signed pixel delta.
// Positive y scrolls the page content up (wheel down).
func scrollDelta(direction string, amount int) (dx, dy int, err error) {
	if amount <= 0 {
		amount = 400
	}
	switch direction {
	case "down":
		return 0, amount, nil
	case "up":
		return 0, -amount, nil
	case "right":
		return amount, 0, nil
	case "left":
		return -amount, 0, nil
	default:
		return 0, 0, fmt.Errorf("invalid scroll direction %q (supported: up, down, left, right)", direction)
	}
}

// settle pauses for the given delay, honoring context cancellation.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
