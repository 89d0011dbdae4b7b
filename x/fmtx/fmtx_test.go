package fmtx

import (
	"bytes"
	"testing"
)

// Both halves must agree on these: the host shim delegates to fmt, the MCU
// half hand-rolls the same verbs.
func TestSprintfVerbs(t *testing.T) {
	cases := []struct {
		format string
		args   []any
		want   string
	}{
		{"hello %s", []any{"world"}, "hello world"},
		{"num %d hex %x HEX %X", []any{255, 255, 255}, "num 255 hex ff HEX FF"},
		{"bool %t %t", []any{true, false}, "bool true false"},
		{"literal %%", nil, "literal %"},
		{"q=%q", []any{"a\"b\\c"}, `q="a\"b\\c"`},
		{"v=%v", []any{123}, "v=123"},
		{"trim: %.3s", []any{"abcdef"}, "trim: abc"},
	}
	for _, c := range cases {
		if got := Sprintf(c.format, c.args...); got != c.want {
			t.Fatalf("Sprintf(%q, ...) = %q, want %q", c.format, got, c.want)
		}
	}
}

func TestSprintSpacing(t *testing.T) {
	// Operands are always space-separated, regardless of type.
	if got, want := Sprint("a", 1, true), "a 1 true"; got != want {
		t.Fatalf("Sprint = %q, want %q", got, want)
	}
}

func TestPrintUsesDefaultOutput(t *testing.T) {
	var buf bytes.Buffer
	saved := DefaultOutput
	DefaultOutput = &buf
	defer func() { DefaultOutput = saved }()

	if n, err := Print("x", 2); err != nil || n == 0 {
		t.Fatalf("Print: n=%d err=%v", n, err)
	}
	if got, want := buf.String(), "x 2"; got != want {
		t.Fatalf("Print wrote %q, want %q", got, want)
	}

	buf.Reset()
	_, _ = Printf("v=%d", 7)
	if got, want := buf.String(), "v=7"; got != want {
		t.Fatalf("Printf wrote %q, want %q", got, want)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Fprintf(&buf, "hi %s", "there"); err != nil {
		t.Fatalf("Fprintf: %v", err)
	}
	if got, want := buf.String(), "hi there"; got != want {
		t.Fatalf("Fprintf wrote %q, want %q", got, want)
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf("bad %s: %d", "thing", 3)
	if err == nil || err.Error() != "bad thing: 3" {
		t.Fatalf("Errorf = %v, want %q", err, "bad thing: 3")
	}
}
