package interp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-jsbridge/eventloop"
	"github.com/stretchr/testify/require"
)

// newTestHandle runs a loop for the test, and binds a handle to it.
func newTestHandle(t *testing.T, cfg Config, opts ...Option) *Handle {
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

	h, err := New(loop, cfg, opts...)
	require.NoError(t, err)
	return h
}

// do runs fn on the loop, failing the test on error.
func do(t *testing.T, h *Handle, fn func(rt *goja.Runtime) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Do(ctx, fn))
}

func waitIdle(t *testing.T, h *Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Loop().Idle(ctx))
}

// rejections collects reported rejections.
type rejections struct {
	messages []string
	mu       sync.Mutex
}

func (r *rejections) report(err *GuestException) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, err.Message)
}

func (r *rejections) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
