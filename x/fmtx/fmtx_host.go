//go:build !(rp2040 || rp2350)

// Package fmtx is a fmt shim with one signature set for both build flavours:
// host builds delegate to the standard library, rp2 builds use a compact
// formatter covering the verb subset this repo actually prints.
package fmtx

import (
	"fmt"
	"io"
	"os"
)

// DefaultOutput receives Print/Printf output. Platform bootstrap (or a test)
// may redirect it; on MCU builds it defaults to a discard writer until set.
var DefaultOutput io.Writer = os.Stdout

func Sprintf(format string, a ...any) string                    { return fmt.Sprintf(format, a...) }
func Fprintf(w io.Writer, format string, a ...any) (int, error) { return fmt.Fprintf(w, format, a...) }
func Errorf(format string, a ...any) error                      { return fmt.Errorf(format, a...) }
func Sprint(a ...any) string                                    { return sprintJoined(a...) }
func Fprint(w io.Writer, a ...any) (int, error)                 { return w.Write([]byte(sprintJoined(a...))) }

func Printf(format string, a ...any) (int, error) {
	return fmt.Fprintf(DefaultOutput, format, a...)
}

func Print(a ...any) (int, error) {
	return Fprint(DefaultOutput, a...)
}

// sprintJoined matches the MCU half: operands are always space-separated,
// unlike fmt.Sprint which omits the space next to string operands.
func sprintJoined(a ...any) string {
	out := ""
	for i, v := range a {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%v", v)
	}
	return out
}
