package gojahostbridge

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-jsbridge/eventloop"
	"github.com/joeycumines/go-jsbridge/interp"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// harness is a running loop with a bound adapter.
type harness struct {
	adapter *Adapter
	handle  *interp.Handle
	stdout  *syncBuffer
	logs    *syncBuffer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	loop, err := eventloop.New()
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

	handle, err := interp.New(loop, interp.DefaultConfig())
	require.NoError(t, err)

	h := &harness{handle: handle, stdout: &syncBuffer{}, logs: &syncBuffer{}}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(h.logs)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()

	h.adapter, err = New(handle, append([]Option{WithStdout(h.stdout), WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, h.adapter.Bind())
	return h
}

// eval evaluates source on the loop, returning the exported result.
func (h *harness) eval(t *testing.T, source string) any {
	t.Helper()
	var result any
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.handle.Do(ctx, func(*goja.Runtime) error {
		out, err := h.handle.Evaluate("test.js", source, interp.EvalOptions{})
		if err != nil {
			return err
		}
		result = out.Value.Export()
		return nil
	}))
	return result
}

// evalErr evaluates source on the loop, returning the evaluation error.
func (h *harness) evalErr(t *testing.T, source string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.handle.Do(ctx, func(*goja.Runtime) error {
		_, err := h.handle.Evaluate("test.js", source, interp.EvalOptions{})
		return err
	})
}

func (h *harness) idle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.handle.Loop().Idle(ctx))
}

// lines returns the console output, one entry per line.
func (h *harness) lines() []string {
	out := strings.TrimRight(h.stdout.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
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
