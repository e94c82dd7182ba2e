// cmd/lavrun/main.go
package main

import (
	"fmt"
	"os"
	"strconv"

	"lavendeux/internal/runner"
)

func main() { os.Exit(lavrunMain()) }

// lavrunMain is main's body factored out so the testscript harness in
// testscript_test.go can register it as a subcommand via
// testscript.RunMain instead of spawning a separately built binary.
func lavrunMain() int {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return 1
	}

	switch args[0] {
	case "--help", "-h", "help":
		showUsage()
		return 0
	case "--version", "-v", "version":
		fmt.Println("lavrun (lavendeux bytecode runner)")
		return 0
	case "run":
		return runCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "lavrun: unknown command %q\n", args[0])
		showUsage()
		return 1
	}
}

func runCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "lavrun run: no image path given")
		return 1
	}

	opts := runner.Options{ImagePath: args[0]}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--allow-syscalld":
			opts.AllowSyscalld = true
		case "--trace":
			opts.Trace = true
		case "--max-depth":
			if i+1 >= len(rest) {
				fmt.Fprintln(os.Stderr, "lavrun run: --max-depth requires a value")
				return 1
			}
			i++
			n, err := strconv.Atoi(rest[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "lavrun run: bad --max-depth value %q\n", rest[i])
				return 1
			}
			opts.MaxDepth = n
		case "--call":
			if i+1 >= len(rest) {
				fmt.Fprintln(os.Stderr, "lavrun run: --call requires a function name")
				return 1
			}
			i++
			opts.Call = rest[i]
			opts.CallArgs = append([]string{}, rest[i+1:]...)
			i = len(rest)
		default:
			fmt.Fprintf(os.Stderr, "lavrun run: unknown flag %q\n", rest[i])
			return 1
		}
	}

	return runner.Main(opts, os.Stdout, os.Stderr)
}

func showUsage() {
	fmt.Println("lavrun - run a compiled Lavendeux bytecode image")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lavrun run <image> [--allow-syscalld] [--trace] [--max-depth N] [--call <name> [args...]]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --allow-syscalld   permit the image to contain syscall instructions")
	fmt.Println("  --trace            log every instruction/call/return/error to stderr")
	fmt.Println("  --max-depth N      override the call-stack depth limit (default 1024)")
	fmt.Println("  --call <name>      invoke a named function instead of the image's entry point")
}
