package khart

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinAndCurrent(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		unpin := Pin(ID(3))
		defer unpin()

		id, ok := Current()
		assert.True(t, ok)
		assert.Equal(t, ID(3), id)
	}()
	<-done
}

func TestCurrentUnpinnedGoroutine(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := Current()
		assert.False(t, ok)
	}()
	<-done
}

func TestCriticalReentrant(t *testing.T) {
	var c Critical
	assert.False(t, c.InCritical())
	c.Enter()
	c.Enter()
	assert.True(t, c.InCritical())
	c.Exit()
	assert.True(t, c.InCritical())
	c.Exit()
	assert.False(t, c.InCritical())
}

func TestCriticalUnbalancedExitPanics(t *testing.T) {
	var c Critical
	assert.Panics(t, func() { c.Exit() })
}

func TestWakeSourceSignalsAndDrains(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("eventfd is linux-only")
	}
	w, err := NewWakeSource()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Wake())
	require.NoError(t, w.Wake())
	w.Drain()
}

// TestWaitUnblocksPromptlyOnWake proves Wait doesn't just wait out its
// poll timeout: a Wake from another goroutine must return it well before
// a single pollIntervalMillis tick has any chance to mask a broken path.
func TestWaitUnblocksPromptlyOnWake(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("eventfd is linux-only")
	}
	w, err := NewWakeSource()
	require.NoError(t, err)
	defer w.Close()

	done := make(chan error, 1)
	go func() {
		done <- w.Wait(context.Background())
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, w.Wake())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after Wake")
	}
}

// TestWaitReturnsContextErrorOnCancel proves Wait notices a cancelled
// context promptly rather than blocking past it indefinitely.
func TestWaitReturnsContextErrorOnCancel(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("eventfd is linux-only")
	}
	w, err := NewWakeSource()
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Wait(ctx)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait never noticed context cancellation")
	}
}
