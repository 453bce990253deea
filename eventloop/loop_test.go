package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_SubmitRunsInOrder(t *testing.T) {
	loop := startLoop(t)

	var got []int
	for i := range 10 {
		require.NoError(t, loop.Submit(func() { got = append(got, i) }))
	}
	idle(t, loop)

	onLoop(t, loop, func() {
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	})
}

func TestLoop_MicrotasksDrainBeforeNextTask(t *testing.T) {
	loop := startLoop(t)

	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	require.NoError(t, loop.Submit(func() {
		record("task1")
		require.NoError(t, loop.ScheduleMicrotask(func() {
			record("micro1")
			require.NoError(t, loop.ScheduleMicrotask(func() { record("micro2") }))
		}))
	}))
	require.NoError(t, loop.Submit(func() { record("task2") }))
	idle(t, loop)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"task1", "micro1", "micro2", "task2"}, order)
}

func TestLoop_RunMicrotask(t *testing.T) {
	loop := startLoop(t)

	assert.False(t, loop.RunMicrotask(), "off-loop calls never run anything")

	onLoop(t, loop, func() {
		assert.False(t, loop.RunMicrotask())

		var ran []int
		require.NoError(t, loop.ScheduleMicrotask(func() { ran = append(ran, 1) }))
		require.NoError(t, loop.ScheduleMicrotask(func() { ran = append(ran, 2) }))

		assert.True(t, loop.RunMicrotask())
		assert.Equal(t, []int{1}, ran)
		assert.True(t, loop.RunMicrotask())
		assert.Equal(t, []int{1, 2}, ran)
		assert.False(t, loop.RunMicrotask())
	})
}

func TestLoop_InLoop(t *testing.T) {
	loop := startLoop(t)
	assert.False(t, loop.InLoop())
	onLoop(t, loop, func() {
		assert.True(t, loop.InLoop())
	})
}

func TestLoop_RunTwice(t *testing.T) {
	loop := startLoop(t)
	onLoop(t, loop, func() {
		assert.ErrorIs(t, loop.Run(context.Background()), ErrReentrantRun)
	})
	assert.ErrorIs(t, loop.Run(context.Background()), ErrLoopAlreadyRunning)
}

func TestLoop_ShutdownDrainsQueuedTasks(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- loop.Run(context.Background()) }()
	onLoop(t, loop, func() {})

	var ran sync.WaitGroup
	ran.Add(3)
	block := make(chan struct{})
	require.NoError(t, loop.Submit(func() {
		<-block
		ran.Done()
	}))
	require.NoError(t, loop.Submit(func() { ran.Done() }))
	require.NoError(t, loop.Submit(func() {
		require.NoError(t, loop.ScheduleMicrotask(func() { ran.Done() }))
	}))

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- loop.Shutdown(context.Background()) }()
	close(block)

	require.NoError(t, <-shutdownDone)
	require.NoError(t, <-runDone)
	ran.Wait()

	assert.Equal(t, StateTerminated, loop.State())
	assert.ErrorIs(t, loop.Submit(func() {}), ErrLoopTerminated)
	assert.ErrorIs(t, loop.ScheduleMicrotask(func() {}), ErrLoopTerminated)
	assert.ErrorIs(t, loop.Shutdown(context.Background()), ErrLoopTerminated)
	assert.ErrorIs(t, loop.Run(context.Background()), ErrLoopTerminated)
}

func TestLoop_ShutdownBeforeRun(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	require.NoError(t, loop.Submit(func() { t.Error("must not run") }))
	assert.Equal(t, int64(1), loop.Outstanding())

	require.NoError(t, loop.Shutdown(context.Background()))
	assert.Equal(t, StateTerminated, loop.State())
	assert.Equal(t, int64(0), loop.Outstanding())

	select {
	case <-loop.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestLoop_ContextCancellation(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- loop.Run(ctx) }()

	onLoop(t, loop, func() {})
	cancel()

	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, StateTerminated, loop.State())
}

func TestLoop_PanicRecovered(t *testing.T) {
	logger, logs := newTestLogger()
	loop := startLoop(t, WithLogger(logger), WithMetrics(true))

	require.NoError(t, loop.Submit(func() { panic("boom") }))
	ran := make(chan struct{})
	require.NoError(t, loop.Submit(func() { close(ran) }))
	<-ran

	assert.Equal(t, uint64(1), loop.Metrics().Panics)
	assert.Contains(t, logs.String(), `"lvl":"err"`)
	assert.Contains(t, logs.String(), `boom`)
}

func TestLoop_IdleFromLoop(t *testing.T) {
	loop := startLoop(t)
	onLoop(t, loop, func() {
		assert.ErrorIs(t, loop.Idle(context.Background()), ErrIdleFromLoop)
	})
}

func TestLoop_IdleWaitsForTimers(t *testing.T) {
	loop := startLoop(t)

	var fired time.Time
	start := time.Now()
	onLoop(t, loop, func() {
		require.NoError(t, loop.AfterFunc(50*time.Millisecond, func() {
			fired = time.Now()
		}))
	})
	idle(t, loop)

	onLoop(t, loop, func() {
		require.False(t, fired.IsZero())
		assert.GreaterOrEqual(t, fired.Sub(start), 50*time.Millisecond)
	})
}

func TestLoop_IdleContextDone(t *testing.T) {
	loop := startLoop(t)
	require.NoError(t, loop.AfterFunc(time.Hour, func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, loop.Idle(ctx), context.DeadlineExceeded)
}

func TestLoop_Metrics(t *testing.T) {
	loop := startLoop(t, WithMetrics(true))
	onLoop(t, loop, func() {
		require.NoError(t, loop.ScheduleMicrotask(func() {}))
	})
	require.NoError(t, loop.AfterFunc(time.Millisecond, func() {}))
	idle(t, loop)

	m := loop.Metrics()
	assert.GreaterOrEqual(t, m.Tasks, uint64(2))
	assert.Equal(t, uint64(1), m.Microtasks)
	assert.Equal(t, uint64(1), m.HostTasksSpawned)
	assert.Equal(t, uint64(1), m.HostTasksCompleted)
	assert.GreaterOrEqual(t, m.MaxTaskLatency, m.MeanTaskLatency)
}

func TestLoop_MetricsDisabled(t *testing.T) {
	loop := startLoop(t)
	onLoop(t, loop, func() {})
	assert.Equal(t, Metrics{}, loop.Metrics())
}

func TestLoop_MicrotaskBudget(t *testing.T) {
	loop := startLoop(t, WithMicrotaskBudget(2))

	var order []string
	require.NoError(t, loop.Submit(func() {
		for range 5 {
			require.NoError(t, loop.ScheduleMicrotask(func() { order = append(order, "micro") }))
		}
	}))
	require.NoError(t, loop.Submit(func() { order = append(order, "task") }))
	idle(t, loop)

	onLoop(t, loop, func() {
		assert.Equal(t, []string{"micro", "micro", "micro", "micro", "micro", "task"}, order)
	})
}

func TestLoopState_String(t *testing.T) {
	for state, want := range map[LoopState]string{
		StateAwake:       "Awake",
		StateRunning:     "Running",
		StateSleeping:    "Sleeping",
		StateTerminating: "Terminating",
		StateTerminated:  "Terminated",
		LoopState(99):    "Unknown",
	} {
		assert.Equal(t, want, state.String())
	}
}
