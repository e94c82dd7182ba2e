// Package trace implements cmd/lavrun's --trace flag: a DebugHook that
// writes a line per instruction/call/return/error rather than the
// teacher's interactive breakpoint debugger (out of scope here — this
// repo has no source-level debugger protocol, spec.md §1's Non-goals).
// Grounded on the teacher's debugger.VMDebugHook, trimmed to its
// logging shape only.
package trace

import (
	"fmt"
	"io"

	"lavendeux/internal/bytecode"
)

// Hook writes one line per VM callback to w.
type Hook struct {
	w io.Writer
}

func NewHook(w io.Writer) *Hook {
	return &Hook{w: w}
}

func (h *Hook) OnInstruction(fn string, ip int, op bytecode.Op) {
	fmt.Fprintf(h.w, "trace: %-8s ip=%-4d %s\n", fn, ip, op)
}

func (h *Hook) OnCall(fn string, depth int) {
	fmt.Fprintf(h.w, "trace: call  %-8s depth=%d\n", fn, depth)
}

func (h *Hook) OnReturn(fn string, depth int) {
	fmt.Fprintf(h.w, "trace: ret   %-8s depth=%d\n", fn, depth)
}

func (h *Hook) OnError(fn string, err error) {
	fmt.Fprintf(h.w, "trace: error %-8s %v\n", fn, err)
}
