package gojahostbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockUntilComplete_RunsQueuedJobs(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, int64(2), h.eval(t, `blockUntilComplete(Promise.resolve(1).then(x => x + 1))`))
	assert.Equal(t, int64(6), h.eval(t, `
		blockUntilComplete(
			Promise.resolve(1)
				.then(x => x + 1)
				.then(x => Promise.resolve(x * 3))
		)
	`))
	assert.Equal(t, DrainStats{Settled: 2}, h.adapter.DrainStats())
}

func TestBlockUntilComplete_AlreadySettled(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "ready", h.eval(t, `blockUntilComplete(Promise.resolve("ready"))`))
	assert.Equal(t, int64(3), h.eval(t, `blockUntilComplete((async () => 3)())`))
	assert.Equal(t, DrainStats{Settled: 2}, h.adapter.DrainStats())
}

func TestBlockUntilComplete_RejectionIsThrown(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "no", h.eval(t, `
		let message;
		try {
			blockUntilComplete(Promise.reject(new Error("no")));
		} catch (e) {
			message = e.message;
		}
		message
	`))
	assert.Equal(t, "raw", h.eval(t, `
		let reason;
		try {
			blockUntilComplete(Promise.resolve().then(() => { throw "raw" }));
		} catch (e) {
			reason = e;
		}
		reason
	`))
	assert.Equal(t, DrainStats{Settled: 2}, h.adapter.DrainStats())
}

func TestBlockUntilComplete_NonPromise(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, int64(7), h.eval(t, `blockUntilComplete(7)`))
	assert.Nil(t, h.eval(t, `blockUntilComplete()`))
	assert.Equal(t, true, h.eval(t, `
		const plain = {value: 1};
		blockUntilComplete(plain) === plain
	`))
	assert.Equal(t, DrainStats{}, h.adapter.DrainStats())
}

func TestBlockUntilComplete_Thenable(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "thenable", h.eval(t, `blockUntilComplete({then(resolve) { resolve("thenable") }})`))
}

// A promise waiting on a timer cannot settle while the drain holds the loop,
// so the drain gives up, and the guest sees undefined straight away.
func TestBlockUntilComplete_GivesUpOnTimer(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, true, h.eval(t, `
		const p = new Promise(res => setTimeout(() => res(5), 10));
		p.then(v => console.log("settled " + v));
		blockUntilComplete(p) === undefined
	`))
	assert.Empty(t, h.stdout.String())
	assert.Equal(t, DrainStats{GaveUp: 1}, h.adapter.DrainStats())
	assert.Contains(t, h.logs.String(), "blockUntilComplete gave up: promise still pending")

	// the promise still settles once the timer fires
	h.idle(t)
	assert.Equal(t, []string{`"settled 5"`}, h.lines())
}

// Undefined from a settled promise, and undefined from giving up, look the
// same to the guest. Only the stats tell them apart.
func TestBlockUntilComplete_UndefinedOutcomes(t *testing.T) {
	h := newHarness(t)

	assert.Nil(t, h.eval(t, `blockUntilComplete(Promise.resolve(undefined))`))
	assert.Nil(t, h.eval(t, `blockUntilComplete(new Promise(() => {}))`))
	assert.Equal(t, DrainStats{Settled: 1, GaveUp: 1}, h.adapter.DrainStats())
}

func TestBlockUntilComplete_InsideTimer(t *testing.T) {
	h := newHarness(t)

	h.eval(t, `
		setTimeout(() => {
			console.log(blockUntilComplete(Promise.resolve(1).then(x => x + 1)));
			blockUntilComplete(new Promise(res => setTimeout(res, 5)));
			console.log("blocking");
		}, 1);
	`)
	h.idle(t)
	assert.Equal(t, []string{"2", `"blocking"`}, h.lines())
	assert.Equal(t, DrainStats{Settled: 1, GaveUp: 1}, h.adapter.DrainStats())
}

// An await inside an async function resumes on the interpreter's own job
// queue, which only runs after the outermost call returns, so the drain
// cannot advance it.
func TestBlockUntilComplete_GivesUpOnAwait(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, true, h.eval(t, `blockUntilComplete((async () => { await null; return 5 })()) === undefined`))
	assert.Equal(t, DrainStats{GaveUp: 1}, h.adapter.DrainStats())
}
