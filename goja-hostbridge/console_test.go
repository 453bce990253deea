package gojahostbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLog_Formatting(t *testing.T) {
	for _, tc := range []struct {
		name   string
		source string
		want   string
	}{
		{"number", `console.log(42)`, "42\n"},
		{"string", `console.log("hi")`, "\"hi\"\n"},
		{"undefined", `console.log(undefined)`, "undefined\n"},
		{"no argument", `console.log()`, "undefined\n"},
		{"function", `console.log(function() {})`, "undefined\n"},
		{"null", `console.log(null)`, "null\n"},
		{"object", `console.log({a: 1, b: [true]})`, "{\n  \"a\": 1,\n  \"b\": [\n    true\n  ]\n}\n"},
		{"error", `console.log(new Error("boom"))`, "{}\n"},
		{"extra arguments ignored", `console.log(1, 2)`, "1\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			assert.Nil(t, h.eval(t, tc.source))
			assert.Equal(t, tc.want, h.stdout.String())
		})
	}
}

func TestConsoleLog_StringifyFailuresThrow(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, true, h.eval(t, `
		const o = {};
		o.self = o;
		let caught;
		try {
			console.log(o);
		} catch (e) {
			caught = e instanceof TypeError;
		}
		caught
	`))
	assert.Equal(t, true, h.eval(t, `
		let thrown;
		try {
			console.log({toJSON() { throw "custom" }});
		} catch (e) {
			thrown = e === "custom";
		}
		thrown
	`))
	assert.Empty(t, h.stdout.String())
}
