package vfs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPipeWriteThenRead is spec.md §8 scenario 1: a writer writes "hello"
// and a reader observes exactly that, then EOF once the writer closes.
func TestPipeWriteThenRead(t *testing.T) {
	p := NewPipe()

	n, err := p.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = p.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	p.Close()
	_, err = p.ReadAt(buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

// TestPipeReadBlocksUntilWrite proves a reader really does wait for data
// rather than observing a spurious EOF or empty read.
func TestPipeReadBlocksUntilWrite(t *testing.T) {
	p := NewPipe()
	result := make(chan string, 1)

	go func() {
		buf := make([]byte, 16)
		n, err := p.ReadAt(buf, 0)
		require.NoError(t, err)
		result <- string(buf[:n])
	}()

	p.WriteAt([]byte("world"), 0)
	assert.Equal(t, "world", <-result)
}

// TestPipeThroughFileTable exercises the pipe as an ordinary VFS node
// opened via a FileTable, the shape a syscall handler actually sees.
func TestPipeThroughFileTable(t *testing.T) {
	p := NewPipe()
	node := NewFile("pipe", p)

	writers := NewFileTable()
	wfd := writers.Open(node)
	readers := NewFileTable()
	rfd := readers.Open(node)

	wf, ok := writers.Get(wfd)
	require.True(t, ok)
	_, err := wf.WriteAt([]byte("hello"))
	require.NoError(t, err)
	p.Close()

	rf, ok := readers.Get(rfd)
	require.True(t, ok)
	buf := make([]byte, 16)
	n, err := rf.ReadAt(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}
