// Package runner implements cmd/lavrun's command bodies: load a
// compiled image, wire a VM to it, and run it. Kept separate from
// cmd/lavrun's main.go in the teacher's own style (cmd/sentra/main.go
// holds only flag dispatch; the real work lives in internal packages).
package runner

import (
	"fmt"
	"io"
	"os"
	"strconv"

	lavErrors "lavendeux/internal/errors"
	"lavendeux/internal/loader"
	"lavendeux/internal/trace"
	"lavendeux/internal/value"
	"lavendeux/internal/vm"

	"lavendeux/internal/bytecode"
)

// Options configures one `lavrun run` invocation, filled in by main.go's
// hand-rolled os.Args parsing.
type Options struct {
	ImagePath     string
	AllowSyscalld bool
	Trace         bool
	MaxDepth      int
	Call          string   // if set, invoke this named function instead of the image's entry point
	CallArgs      []string // raw string args for --call, coerced to Int/Float/Str/Bool
}

// Main runs one `lavrun run` invocation against stdout/stderr, returning
// the process exit code — mirrors the teacher's log.Fatalf-per-command
// style, just returning instead of exiting so tests can drive it.
func Main(opts Options, stdout, stderr io.Writer) int {
	f, err := os.Open(opts.ImagePath)
	if err != nil {
		fmt.Fprintf(stderr, "lavrun: cannot open image: %v\n", err)
		return 1
	}
	defer f.Close()

	img, err := bytecode.Decode(f)
	if err != nil {
		fmt.Fprintf(stderr, "lavrun: cannot decode image: %v\n", err)
		return 1
	}

	loaded, err := loader.Load(img, opts.AllowSyscalld)
	if err != nil {
		fmt.Fprintf(stderr, "lavrun: %v\n", err)
		return 1
	}

	var hook vm.DebugHook
	if opts.Trace {
		hook = trace.NewHook(stderr)
	}

	machine := vm.New(loaded.Registry,
		vm.WithStdout(stdout),
		vm.WithDebugHook(hook),
		vm.WithAllowSyscalld(opts.AllowSyscalld),
		vm.WithMaxDepth(maxDepthOr(opts.MaxDepth)),
	)

	var result value.Value
	if opts.Call != "" {
		args := make([]value.Value, len(opts.CallArgs))
		for i, s := range opts.CallArgs {
			args[i] = coerceArg(s)
		}
		result, err = machine.CallByName(opts.Call, args)
	} else {
		result, err = machine.Run(loaded.Entry, nil)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", renderErr(err))
		return 1
	}

	fmt.Fprintln(stdout, value.ToDisplayString(result))
	return 0
}

func maxDepthOr(n int) int {
	if n > 0 {
		return n
	}
	return vm.DefaultMaxDepth
}

// coerceArg guesses a --call argument's Value from its literal text:
// true/false, then int, then float, falling back to a string. Lavendeux's own
// lexer (out of scope, spec.md §1) would normally make this decision;
// lavrun's --call flag is a debugging convenience, not the language
// front-end, so a best-effort guess is enough.
func coerceArg(s string) value.Value {
	if s == "true" {
		return value.Bool(true)
	}
	if s == "false" {
		return value.Bool(false)
	}
	if iv, ok := parseInt(s); ok {
		return value.NewInt(iv, value.W64)
	}
	if fv, ok := parseFloat(s); ok {
		return value.Float(fv)
	}
	return value.Str(s)
}

func parseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// renderErr formats a runtime error for the terminal: a LavError renders
// its own located/call-stack message; anything else falls back to a
// plain wrapper.
func renderErr(err error) string {
	if lerr, ok := err.(*lavErrors.LavError); ok {
		return lerr.Error()
	}
	return fmt.Sprintf("runtime error: %v", err)
}
