package kasync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRWMutexMultipleReaders(t *testing.T) {
	rw := NewRWMutex()
	ctx := context.Background()
	require.NoError(t, rw.RLock(ctx))
	require.NoError(t, rw.RLock(ctx))
	rw.RUnlock()
	rw.RUnlock()
}

func TestRWMutexWriterExcludesReaders(t *testing.T) {
	rw := NewRWMutex()
	ctx := context.Background()
	require.NoError(t, rw.Lock(ctx))

	rctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := rw.RLock(rctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rw.Unlock()
	require.NoError(t, rw.RLock(context.Background()))
}

func TestRWMutexReaderExcludesWriter(t *testing.T) {
	rw := NewRWMutex()
	ctx := context.Background()
	require.NoError(t, rw.RLock(ctx))

	wctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := rw.Lock(wctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rw.RUnlock()
}

func TestRWMutexUnmatchedRUnlockPanics(t *testing.T) {
	rw := NewRWMutex()
	assert.Panics(t, func() { rw.RUnlock() })
}
