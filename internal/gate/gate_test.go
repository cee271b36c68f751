// File: internal/gate/gate_test.go
package gate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/argoseyes/uxprobe/internal/gate"
)

func TestGateAdmitsUpToCapacity(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := gate.New(2, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, g.Register(ctx, "run-1"))
	require.NoError(t, g.Register(ctx, "run-2"))
	assert.Equal(t, 2, g.Active())

	g.Unregister("run-1")
	g.Unregister("run-2")
	assert.Equal(t, 0, g.Active())
}

func TestGateBlocksBeyondCapacityUntilRelease(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := gate.New(1, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, g.Register(ctx, "run-1"))

	admitted := make(chan error, 1)
	go func() {
		admitted <- g.Register(ctx, "run-2")
	}()

	select {
	case err := <-admitted:
		t.Fatalf("second run admitted while the slot was held: %v", err)
	case <-time.After(50 * time.Millisecond):
		// Still blocked, as expected.
	}

	g.Unregister("run-1")

	select {
	case err := <-admitted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second run never admitted after release")
	}
	g.Unregister("run-2")
}

func TestGateRegisterHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := gate.New(1, zaptest.NewLogger(t))
	require.NoError(t, g.Register(context.Background(), "run-1"))
	defer g.Unregister("run-1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := g.Register(ctx, "run-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.Active())
}

func TestGateUnregisterUnknownRunIsSafe(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := gate.New(1, zaptest.NewLogger(t))
	// Releasing a run that never registered must not free a slot twice.
	g.Unregister("ghost")

	require.NoError(t, g.Register(context.Background(), "run-1"))
	assert.Equal(t, 1, g.Active())
	g.Unregister("run-1")
	g.Unregister("run-1")
	assert.Equal(t, 0, g.Active())
}
