// Package loader implements Lavendeux's image loader/verifier (spec.md
// §4.2): parses a compiled Image, installs every function into the
// function registry keyed by its 64-bit id, and validates the result
// before handing it to the VM.
//
// The on-disk format (internal/bytecode.Image) already stores jump
// operands as resolved absolute in-function offsets rather than
// symbolic labels — the compiler/assembler that produced the image (an
// out-of-scope external collaborator, spec.md §1) is responsible for
// that resolution. The loader's job is to validate the result, not
// perform the resolution itself.
package loader

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"lavendeux/internal/bytecode"
	lavErrors "lavendeux/internal/errors"
	"lavendeux/internal/registry"
)

// Loaded is the result of a successful Load: a populated registry plus
// the entry-point id to invoke.
type Loaded struct {
	Registry *registry.Registry
	Entry    uint64
}

// Load validates img and installs its functions into a fresh registry.
// allowSyscalld gates whether the image may contain OpSyscall
// instructions at all (spec.md §4.7, §6's --allow-syscalld flag); an
// image compiled without that flag must not reach the VM carrying one.
func Load(img *bytecode.Image, allowSyscalld bool) (*Loaded, error) {
	if img.Magic != bytecode.ImageMagic {
		return nil, lavErrors.NewLoadError("bad image magic %#x", img.Magic)
	}
	if img.Version != bytecode.ImageVersion {
		return nil, lavErrors.NewLoadError("unsupported image version %d", img.Version)
	}
	if len(img.Functions) == 0 {
		return nil, lavErrors.NewLoadError("image declares no functions")
	}

	ids := map[uint64]*bytecode.FuncEntry{}
	for _, fn := range img.Functions {
		if _, dup := ids[fn.ID]; dup {
			return nil, lavErrors.NewLoadError("duplicate function id %#x (%s)", fn.ID, fn.Name)
		}
		ids[fn.ID] = fn
	}
	if _, ok := ids[img.Entry]; !ok {
		return nil, lavErrors.NewLoadError("entry point id %#x does not name a function in the image", img.Entry)
	}

	// Each function's structural checks are independent of every other
	// function's body (only CALL target *existence* crosses functions,
	// checked separately below once every id is known), so they verify
	// concurrently. Grounded in lavendeux's go.mod carrying
	// golang.org/x/sync unused by the teacher — this loader is its home;
	// it does not imply any parallelism inside the running VM itself
	// (spec.md §5 is unaffected).
	g, _ := errgroup.WithContext(context.Background())
	for _, fn := range img.Functions {
		fn := fn
		g.Go(func() error {
			return verifyFunction(fn, allowSyscalld)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, fn := range img.Functions {
		if err := verifyCalls(fn, ids); err != nil {
			return nil, err
		}
	}

	reg := registry.New()
	for _, fn := range img.Functions {
		if err := reg.Register(fn, nil); err != nil {
			return nil, err
		}
	}
	return &Loaded{Registry: reg, Entry: img.Entry}, nil
}

// verifyFunction checks jump-target bounds, SCI/SCO nesting, and
// NEXT/JMPNE pairing for one function's code. allowSyscalld gates
// whether an OpSyscall instruction may appear at all (spec.md §4.7,
// §6's --allow-syscalld flag).
func verifyFunction(fn *bytecode.FuncEntry, allowSyscalld bool) error {
	c := fn.Code
	n := len(c.Code)
	depth := 0
	nextCount, jmpNECount := 0, 0
	ip := 0
	for ip < n {
		op := bytecode.Op(c.Code[ip])
		ip++
		switch op {
		case bytecode.OpPush, bytecode.OpCast, bytecode.OpMkArray, bytecode.OpMkObject, bytecode.OpRef:
			ip += 2
		case bytecode.OpJmp, bytecode.OpJmpT, bytecode.OpJmpF, bytecode.OpJmpNE, bytecode.OpNext:
			if ip+2 > n {
				return fmt.Errorf("%s: truncated jump operand at ip %d", fn.Name, ip)
			}
			target := int(c.ReadUint16(ip))
			if target < 0 || target > n {
				return lavErrors.NewLoadError("%s: jump target %d out of bounds (function length %d)", fn.Name, target, n)
			}
			if op == bytecode.OpJmpNE {
				jmpNECount++
			}
			if op == bytecode.OpNext {
				nextCount++
			}
			ip += 2
		case bytecode.OpCall:
			ip += 8 + 1 // fid + arg count byte
		case bytecode.OpSyscall:
			if !allowSyscalld {
				return lavErrors.NewLoadError("%s: image contains a syscall instruction but was not compiled with --allow-syscalld", fn.Name)
			}
			ip += 2
		case bytecode.OpSCI:
			depth++
		case bytecode.OpSCO:
			depth--
			if depth < 0 {
				return lavErrors.NewLoadError("%s: SCO without matching SCI at ip %d", fn.Name, ip)
			}
		}
	}
	if depth != 0 {
		return lavErrors.NewLoadError("%s: unbalanced SCI/SCO (%d unclosed scope(s))", fn.Name, depth)
	}
	if nextCount > 0 && jmpNECount == 0 {
		return &lavIterationErr{fn.Name}
	}
	return nil
}

type lavIterationErr struct{ fn string }

func (e *lavIterationErr) Error() string {
	return fmt.Sprintf("%s: NEXT is not paired with a JMPNE exit", e.fn)
}

// verifyCalls checks that every CALL in fn references a known id and
// passes an argument count between the callee's required parameters
// (those without defaults) and its total parameter count; any other
// count is rejected with a LoadError.
func verifyCalls(fn *bytecode.FuncEntry, ids map[uint64]*bytecode.FuncEntry) error {
	c := fn.Code
	n := len(c.Code)
	ip := 0
	for ip < n {
		op := bytecode.Op(c.Code[ip])
		ip++
		switch op {
		case bytecode.OpPush, bytecode.OpCast, bytecode.OpMkArray, bytecode.OpMkObject, bytecode.OpRef:
			ip += 2
		case bytecode.OpJmp, bytecode.OpJmpT, bytecode.OpJmpF, bytecode.OpJmpNE, bytecode.OpNext:
			ip += 2
		case bytecode.OpSyscall:
			ip += 2
		case bytecode.OpCall:
			if ip+9 > n {
				return lavErrors.NewLoadError("%s: truncated CALL operand at ip %d", fn.Name, ip)
			}
			fid := c.ReadUint64(ip)
			argc := int(c.Code[ip+8])
			callee, ok := ids[fid]
			if !ok {
				return lavErrors.NewLoadError("%s: CALL references unknown function id %#x", fn.Name, fid)
			}
			minArgs := 0
			for _, p := range callee.Params {
				if !p.HasDefault {
					minArgs++
				}
			}
			if argc < minArgs || argc > len(callee.Params) {
				return lavErrors.NewLoadError("%s: CALL to %s passes %d argument(s), expected %d..%d", fn.Name, callee.Name, argc, minArgs, len(callee.Params))
			}
			ip += 9
		}
	}
	return nil
}
