// File: internal/backend/docker_test.go
package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/argoseyes/uxprobe/internal/config"
)

// fakeEnvironment records every command sent over the exec channel.
type fakeEnvironment struct {
	commands []string
	execOut  string
	execErr  error

	fileData string
	fileErr  error

	initialized int
	cleanups    int
}

func (f *fakeEnvironment) Initialize(ctx context.Context) error {
	f.initialized++
	return nil
}

func (f *fakeEnvironment) Exec(ctx context.Context, command string) (string, error) {
	f.commands = append(f.commands, command)
	return f.execOut, f.execErr
}

func (f *fakeEnvironment) GetFile(ctx context.Context, path string) (string, error) {
	return f.fileData, f.fileErr
}

func (f *fakeEnvironment) IsRunning(ctx context.Context) bool { return true }

func (f *fakeEnvironment) Cleanup(ctx context.Context) { f.cleanups++ }

func newDockerBackendForTest(t *testing.T, env Environment) *DockerBackend {
	t.Helper()
	display := config.DisplayConfig{Width: 1280, Height: 800, Number: 99}
	// Zero post-load wait keeps navigation tests fast.
	browser := config.BrowserConfig{PostLoadWait: 0}
	return NewDockerBackend(env, display, browser, zaptest.NewLogger(t))
}

func TestDockerBackendNavigateLaunchesBrowser(t *testing.T) {
	env := &fakeEnvironment{}
	b := newDockerBackendForTest(t, env)

	require.NoError(t, b.Navigate(context.Background(), "http://site.test/path?q=1"))
	require.Len(t, env.commands, 1)
	assert.Equal(t, "firefox-esr 'http://site.test/path?q=1' >/dev/null 2>&1 &", env.commands[0])
}

func TestDockerBackendScreenshotCaptureRetrieveRemove(t *testing.T) {
	env := &fakeEnvironment{fileData: "cGl4ZWxz\n"}
	b := newDockerBackendForTest(t, env)

	shot, err := b.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cGl4ZWxz", shot, "payload is trimmed, with no data-URI prefix")

	require.Len(t, env.commands, 2)
	assert.Equal(t, "scrot -o /tmp/uxprobe-screenshot.png", env.commands[0])
	assert.Equal(t, "rm -f /tmp/uxprobe-screenshot.png", env.commands[1])
}

func TestDockerBackendScreenshotRetrievalFailure(t *testing.T) {
	env := &fakeEnvironment{fileErr: errors.New("no such file")}
	b := newDockerBackendForTest(t, env)

	_, err := b.Screenshot(context.Background())
	require.Error(t, err)
}

func TestDockerBackendClickCommand(t *testing.T) {
	env := &fakeEnvironment{}
	b := newDockerBackendForTest(t, env)

	require.NoError(t, b.Click(context.Background(), 640, 360))
	require.Len(t, env.commands, 1)
	assert.Equal(t, "xdotool mousemove 640 360 click 1", env.commands[0])
}

func TestDockerBackendClickRejectsOutOfBounds(t *testing.T) {
	env := &fakeEnvironment{}
	b := newDockerBackendForTest(t, env)

	require.Error(t, b.Click(context.Background(), 1280, 360))
	assert.Empty(t, env.commands, "no command reaches the environment for invalid coordinates")
}

func TestDockerBackendTypeEscapesText(t *testing.T) {
	env := &fakeEnvironment{}
	b := newDockerBackendForTest(t, env)

	require.NoError(t, b.Type(context.Background(), "it's done; $(true)"))
	require.Len(t, env.commands, 1)
	assert.Equal(t, `xdotool type --delay 75 -- 'it'\''s done; $(true)'`, env.commands[0])
}

func TestDockerBackendKeyTranslatesBrowserNames(t *testing.T) {
	env := &fakeEnvironment{}
	b := newDockerBackendForTest(t, env)

	require.NoError(t, b.Key(context.Background(), "Enter"))
	require.NoError(t, b.Key(context.Background(), "Page_Down"))
	require.Len(t, env.commands, 2)
	assert.Equal(t, "xdotool key -- 'Return'", env.commands[0])
	assert.Equal(t, "xdotool key -- 'Page_Down'", env.commands[1])
}

func TestDockerBackendScrollUsesWheelButtons(t *testing.T) {
	env := &fakeEnvironment{}
	b := newDockerBackendForTest(t, env)
	ctx := context.Background()

	require.NoError(t, b.Scroll(ctx, 100, 200, "down", 5))
	require.NoError(t, b.Scroll(ctx, 100, 200, "up", 0)) // falls back to the default click count
	require.Error(t, b.Scroll(ctx, 100, 200, "diagonal", 1))

	require.Len(t, env.commands, 2)
	assert.Equal(t, "xdotool mousemove 100 200 click --repeat 5 5", env.commands[0])
	assert.Equal(t, "xdotool mousemove 100 200 click --repeat 3 4", env.commands[1])
}

func TestDockerBackendRunShell(t *testing.T) {
	env := &fakeEnvironment{execOut: "total 0"}
	b := newDockerBackendForTest(t, env)

	assert.True(t, b.SupportsShell())
	out, err := b.RunShell(context.Background(), "ls /tmp")
	require.NoError(t, err)
	assert.Equal(t, "total 0", out)
	assert.Equal(t, []string{"ls /tmp"}, env.commands)
}

func TestDockerBackendCleanupIdempotent(t *testing.T) {
	env := &fakeEnvironment{}
	b := newDockerBackendForTest(t, env)
	ctx := context.Background()

	b.Cleanup(ctx)
	b.Cleanup(ctx)
	assert.Equal(t, 1, env.cleanups)
}

func TestDockerBackendActuationFailureSurfaces(t *testing.T) {
	env := &fakeEnvironment{execErr: errors.New("exec channel closed")}
	b := newDockerBackendForTest(t, env)

	err := b.Click(context.Background(), 10, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec channel closed")
}
