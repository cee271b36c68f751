// File: internal/backend/docker.go
package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/argoseyes/uxprobe/internal/config"
	"github.com/argoseyes/uxprobe/internal/container"
)

// defaultScrollClicks is the wheel-click count used when the agent supplies
// no magnitude.
const defaultScrollClicks = 3

// screenshotPath is the in-environment temp file for display captures.
const screenshotPath = "/tmp/uxprobe-screenshot.png"

// Environment is the slice of the container manager the adapter drives.
// Narrowed so tests can substitute a fake without a Docker daemon.
type Environment interface {
	Initialize(ctx context.Context) error
	Exec(ctx context.Context, command string) (string, error)
	GetFile(ctx context.Context, path string) (string, error)
	IsRunning(ctx context.Context) bool
	Cleanup(ctx context.Context)
}

// DockerBackend realizes the actuation contract against an isolated container
// with a virtual display. Input events go through xdotool, captures through
// scrot, both invoked over the environment's exec channel.
type DockerBackend struct {
	env     Environment
	display config.DisplayConfig
	browser config.BrowserConfig
	logger  *zap.Logger

	cleanupOnce sync.Once
}

var _ Backend = (*DockerBackend)(nil)

// NewDockerBackend wires the adapter to an execution environment.
func NewDockerBackend(env Environment, display config.DisplayConfig, browser config.BrowserConfig, logger *zap.Logger) *DockerBackend {
	return &DockerBackend{
		env:     env,
		display: display,
		browser: browser,
		logger:  logger.Named("docker_backend"),
	}
}

func (b *DockerBackend) Name() string { return "docker" }

func (b *DockerBackend) SupportsShell() bool { return true }

// Initialize provisions the environment and confirms display readiness.
func (b *DockerBackend) Initialize(ctx context.Context) error {
	return b.env.Initialize(ctx)
}

// Navigate points the in-environment browser at the URL, then waits for the
// page to settle.
func (b *DockerBackend) Navigate(ctx context.Context, url string) error {
	cmd := fmt.Sprintf("firefox-esr %s >/dev/null 2>&1 &", container.ShellQuote(url))
	if _, err := b.env.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("browser launch for %q failed: %w", url, err)
	}
	wait := b.browser.PostLoadWait
	return settle(ctx, wait)
}

// Screenshot captures the display with the in-environment utility, retrieves
// the file as base64, and removes the temporary file.
func (b *DockerBackend) Screenshot(ctx context.Context) (string, error) {
	if _, err := b.env.Exec(ctx, fmt.Sprintf("scrot -o %s", screenshotPath)); err != nil {
		return "", fmt.Errorf("display capture failed: %w", err)
	}
	encoded, err := b.env.GetFile(ctx, screenshotPath)
	if err != nil {
		return "", err
	}
	if _, err := b.env.Exec(ctx, fmt.Sprintf("rm -f %s", screenshotPath)); err != nil {
		b.logger.Debug("Failed to remove screenshot temp file", zap.Error(err))
	}
	return strings.TrimSpace(encoded), nil
}

// Click moves the pointer and performs a single primary click.
func (b *DockerBackend) Click(ctx context.Context, x, y int) error {
	if err := validateCoordinates(x, y, b.display.Width, b.display.Height); err != nil {
		return err
	}
	cmd := fmt.Sprintf("xdotool mousemove %d %d click 1", x, y)
	if _, err := b.env.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("click at (%d, %d) failed: %w", x, y, err)
	}
	return settle(ctx, ClickSettleDelay)
}

// Type enters literal text. The text originates from an untrusted remote
// agent and is shell-escaped before it reaches the input-simulation utility.
func (b *DockerBackend) Type(ctx context.Context, text string) error {
	cmd := fmt.Sprintf("xdotool type --delay 75 -- %s", container.ShellQuote(text))
	if _, err := b.env.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("typing failed: %w", err)
	}
	return settle(ctx, TypeSettleDelay)
}

// Key presses a named key. Browser-vocabulary names are translated to X
// keysyms; unmapped symbols pass through unchanged.
func (b *DockerBackend) Key(ctx context.Context, symbol string) error {
	keysym := ToXKeysym(symbol)
	cmd := fmt.Sprintf("xdotool key -- %s", container.ShellQuote(keysym))
	if _, err := b.env.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("key press %q failed: %w", symbol, err)
	}
	return settle(ctx, KeySettleDelay)
}

// Scroll positions the pointer and spins the wheel. Magnitude is in wheel
// clicks for this adapter.
func (b *DockerBackend) Scroll(ctx context.Context, x, y int, direction string, amount int) error {
	if err := validateCoordinates(x, y, b.display.Width, b.display.Height); err != nil {
		return err
	}
	if amount <= 0 {
		amount = defaultScrollClicks
	}
	var button int
	switch direction {
	case "up":
		button = 4
	case "down":
		button = 5
	case "left":
		button = 6
	case "right":
		button = 7
	default:
		return fmt.Errorf("invalid scroll direction %q (supported: up, down, left, right)", direction)
	}
	cmd := fmt.Sprintf("xdotool mousemove %d %d click --repeat %d %d", x, y, amount, button)
	if _, err := b.env.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("scroll %s failed: %w", direction, err)
	}
	return settle(ctx, ScrollSettleDelay)
}

// RunShell executes an arbitrary command inside the environment.
func (b *DockerBackend) RunShell(ctx context.Context, command string) (string, error) {
	out, err := b.env.Exec(ctx, command)
	if err != nil {
		return "", fmt.Errorf("shell command failed: %w", err)
	}
	return out, nil
}

// Cleanup tears the environment down. Idempotent.
func (b *DockerBackend) Cleanup(ctx context.Context) {
	b.cleanupOnce.Do(func() {
		b.env.Cleanup(ctx)
	})
}
