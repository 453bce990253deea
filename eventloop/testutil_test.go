package eventloop

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// startLoop runs a new loop on its own goroutine, stopping it on cleanup.
func startLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	loop, err := New(opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = loop.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-runDone:
		case <-time.After(5 * time.Second):
			t.Error("loop did not stop")
		}
	})

	return loop
}

// onLoop runs fn as a task and waits for it to return.
func onLoop(t *testing.T, loop *Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, loop.Submit(func() {
		defer close(done)
		fn()
	}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}
}

func idle(t *testing.T, loop *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loop.Idle(ctx))
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestLogger returns a debug level JSON logger writing to the returned buffer.
func newTestLogger() (*logiface.Logger[logiface.Event], *syncBuffer) {
	var buf syncBuffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
	return logger, &buf
}
