package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsNilOnCleanShutdown(t *testing.T) {
	started := make(chan struct{})
	a := Actor{Name: "well-behaved", Run: func(ctx context.Context, handle *Handle) error {
		close(started)
		<-ctx.Done()
		return nil
	}}

	s := New(nil, a)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_ReturnsNilWhenAllActorsExitCleanly(t *testing.T) {
	a := Actor{Name: "one-shot", Run: func(ctx context.Context, handle *Handle) error {
		return nil
	}}
	// Exercise the busy-restart path briefly, then cancel before it can
	// ever accumulate a failure.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := New(nil, a).Run(ctx)
	assert.NoError(t, err)
}

func TestSuperviseOne_HeartbeatResetsFailureCounterAcrossRestarts(t *testing.T) {
	var attempts int
	a := Actor{Name: "flaky", Run: func(ctx context.Context, handle *Handle) error {
		attempts++
		handle.Heartbeat()
		return errors.New("transient failure")
	}}

	s := &Supervisor{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.superviseOne(ctx, a) }()

	// Give it a moment to run at least once, then cancel — since Heartbeat
	// was called every time, the failure counter never escalates and the
	// loop must exit via ctx.Done(), not via MaxConsecutiveFailures.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("superviseOne did not exit after context cancellation")
	}
	assert.GreaterOrEqual(t, attempts, 1)
}

func TestSuperviseOne_EscalatesAfterMaxConsecutiveFailuresWithoutSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("waits through the real restart delay")
	}

	var attempts int
	a := Actor{Name: "always-fails", Run: func(ctx context.Context, handle *Handle) error {
		attempts++
		return errors.New("permanent failure")
	}}

	s := &Supervisor{}
	err := s.superviseOne(context.Background(), a)

	require.Error(t, err)
	assert.Equal(t, MaxConsecutiveFailures, attempts)
}
