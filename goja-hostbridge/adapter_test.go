package gojahostbridge

import (
	"testing"

	"github.com/joeycumines/go-jsbridge/interp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	h := newHarness(t)
	_, err = New(h.handle, WithGlobalNames(Names{Log: "log"}))
	assert.ErrorContains(t, err, "global names cannot be empty")

	_, err = New(h.handle, WithStdout(nil))
	assert.Error(t, err)

	_, err = New(h.handle, WithStderr(nil))
	assert.Error(t, err)
}

func TestBind_Globals(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, true, h.eval(t, `typeof console.log === "function" &&
		typeof setTimeout === "function" &&
		typeof blockUntilComplete === "function" &&
		typeof Promise === "function"`))
}

func TestBind_CustomNames(t *testing.T) {
	h := newHarness(t, WithGlobalNames(Names{
		Log:                "host.print",
		SetTimeout:         "later",
		BlockUntilComplete: "drain",
	}))

	assert.Equal(t, true, h.eval(t, `typeof host.print === "function" &&
		typeof later === "function" &&
		typeof drain === "function" &&
		typeof setTimeout === "undefined"`))

	h.eval(t, `later(() => host.print("done"), 1)`)
	h.idle(t)
	assert.Equal(t, []string{`"done"`}, h.lines())
}

func TestBind_Overwrites(t *testing.T) {
	h := newHarness(t)

	h.eval(t, `setTimeout = function() { return "replaced" }`)
	assert.Equal(t, "replaced", h.eval(t, `setTimeout()`))

	require.NoError(t, h.adapter.Bind())
	assert.Nil(t, h.eval(t, `setTimeout(() => {}, 0)`))
	h.idle(t)
}

func TestBind_KeepsExistingParent(t *testing.T) {
	h := newHarness(t)

	h.eval(t, `console.marker = 1`)
	require.NoError(t, h.adapter.Bind())
	assert.Equal(t, int64(1), h.eval(t, `console.marker`))
}

func TestAdapter_Accessors(t *testing.T) {
	h := newHarness(t)

	assert.Same(t, h.handle, h.adapter.Handle())
	assert.Same(t, h.handle.Loop(), h.adapter.Loop())
	assert.Equal(t, DrainStats{}, h.adapter.DrainStats())
}

func TestGuestExceptionsStayGuest(t *testing.T) {
	h := newHarness(t)

	err := h.evalErr(t, `setTimeout("nope")`)
	var ex *interp.GuestException
	require.ErrorAs(t, err, &ex)
	assert.Contains(t, ex.Message, "TypeError")
	assert.Contains(t, ex.Message, "setTimeout requires a function")
}
