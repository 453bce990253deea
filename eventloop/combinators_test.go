package eventloop

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll(t *testing.T) {
	loop := startLoop(t)

	var all, empty, failed *Promise
	onLoop(t, loop, func() {
		later, resolveLater, _ := loop.NewPromise()
		require.NoError(t, loop.AfterFunc(5*time.Millisecond, func() { resolveLater("c") }))
		all = loop.All([]*Promise{loop.Resolved("a"), loop.Resolved("b"), later})
		empty = loop.All(nil)
		failed = loop.All([]*Promise{loop.Resolved("a"), loop.Rejected("bad")})
		failed.Catch(func(Result) Result { return nil })
	})
	idle(t, loop)

	assert.Equal(t, []Result{"a", "b", "c"}, all.Value())
	assert.Equal(t, []Result{}, empty.Value())
	assert.Equal(t, "bad", failed.Reason())
}

func TestRace(t *testing.T) {
	loop := startLoop(t)

	var race, never *Promise
	onLoop(t, loop, func() {
		slow, resolveSlow, _ := loop.NewPromise()
		require.NoError(t, loop.AfterFunc(50*time.Millisecond, func() { resolveSlow("slow") }))
		race = loop.Race([]*Promise{slow, loop.Resolved("fast")})
		never = loop.Race(nil)
	})
	idle(t, loop)

	assert.Equal(t, "fast", race.Value())
	assert.Equal(t, Pending, never.State())
}

func TestAllSettled(t *testing.T) {
	loop := startLoop(t)

	var settled *Promise
	onLoop(t, loop, func() {
		settled = loop.AllSettled([]*Promise{loop.Resolved(1), loop.Rejected("no")})
	})
	idle(t, loop)

	assert.Equal(t, []SettledResult{
		{State: Fulfilled, Value: 1},
		{State: Rejected, Reason: "no"},
	}, settled.Value())
}

func TestAny(t *testing.T) {
	loop := startLoop(t)

	sentinel := errors.New("sentinel")
	var first, none, empty *Promise
	onLoop(t, loop, func() {
		first = loop.Any([]*Promise{loop.Rejected("x"), loop.Resolved("y")})
		none = loop.Any([]*Promise{loop.Rejected("x"), loop.Rejected(sentinel)})
		empty = loop.Any(nil)
		none.Catch(func(Result) Result { return nil })
		empty.Catch(func(Result) Result { return nil })
	})
	idle(t, loop)

	assert.Equal(t, "y", first.Value())

	var agg *AggregateError
	require.ErrorAs(t, none.Reason().(error), &agg)
	require.Len(t, agg.Errors, 2)
	assert.Equal(t, "x", agg.Errors[0].(*ReasonError).Reason)
	assert.ErrorIs(t, agg, sentinel)
	assert.Equal(t, "eventloop: all promises were rejected: x; sentinel", agg.Error())

	require.ErrorAs(t, empty.Reason().(error), &agg)
	assert.Empty(t, agg.Errors)
}
