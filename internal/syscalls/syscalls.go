// Package syscalls implements Lavendeux's host-intrinsic dispatcher
// (spec.md §4.7): the single opcode family (OpSyscall) through which
// compiled code reaches math, type reflection, sorting, printing, and
// error-raising without going through the function-registry CALL path.
// Grounded on the teacher's NativeFunction registration tour in
// EnhancedVM.registerBuiltins, split into its own package since spec.md
// gives the dispatcher its own component line (§2).
package syscalls

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/kr/pretty"

	"lavendeux/internal/bytecode"
	lavErrors "lavendeux/internal/errors"
	"lavendeux/internal/value"
)

// Arity reports how many arguments a syscall consumes from the operand
// stack, so the VM knows how many values to pop before calling Dispatch
// (spec.md §4.7's contracts, "varies" in the opcode table).
func Arity(name bytecode.Syscall) int {
	switch name {
	case bytecode.SysLstFn, bytecode.SysPrntm:
		return 0
	case bytecode.SysPrnt, bytecode.SysThrw,
		bytecode.SysTan, bytecode.SysSin, bytecode.SysCos,
		bytecode.SysAtan, bytecode.SysAsin, bytecode.SysAcos,
		bytecode.SysTanh, bytecode.SysSinh, bytecode.SysCosh,
		bytecode.SysType, bytecode.SysSort, bytecode.SysLen:
		return 1
	case bytecode.SysAtan2, bytecode.SysLog, bytecode.SysIlog,
		bytecode.SysRoot, bytecode.SysRound:
		return 2
	default:
		return 0
	}
}

// FuncInfo is one LSTFN entry: the observable shape of a registered
// function, rendered as an Object per spec.md §4.7.
type FuncInfo struct {
	Name      string
	Category  string
	Signature string
	Short     string
	Desc      string
	Example   string
}

// Context is the host surface a syscall needs beyond its popped
// arguments: where to print, what functions are registered (LSTFN), and
// enough VM state to render PRNTM's diagnostic dump. Implemented by
// *vm.VM; kept as an interface here so internal/syscalls never imports
// internal/vm.
type Context interface {
	Print(s string)
	ListFunctions() []FuncInfo
	Memory() MemorySnapshot
}

// MemorySnapshot is PRNTM's payload: enough of the running VM's shape
// to be a useful diagnostic without exposing live pointers into it.
type MemorySnapshot struct {
	InstanceID    string
	StackDepth    int
	StackBytes    uint64
	CallDepth     int
	MaxCallDepth  int
	CallStack     []string
	RegisteredFns int
}

// NewInstanceID mints a per-VM identifier (vm.New calls it once; PRNTM's
// memory snapshot shows it, so separate VM runs are distinguishable) —
// the home for google/uuid, a real teacher go.mod dependency the
// teacher itself never imports (DESIGN.md).
func NewInstanceID() string {
	return uuid.New().String()
}

// Dispatch executes one syscall against its already-popped args
// (left-to-right order) and ctx.
func Dispatch(name bytecode.Syscall, args []value.Value, ctx Context) (value.Value, error) {
	switch name {
	case bytecode.SysPrnt:
		s := value.ToDisplayString(args[0])
		ctx.Print(s)
		return value.Str(s), nil

	case bytecode.SysLstFn:
		infos := ctx.ListFunctions()
		out := make([]value.Value, 0, len(infos))
		for _, fi := range infos {
			o := value.NewObject()
			o.Set(value.Str("name"), value.Str(fi.Name))
			o.Set(value.Str("category"), value.Str(fi.Category))
			o.Set(value.Str("signature"), value.Str(fi.Signature))
			if fi.Short != "" {
				o.Set(value.Str("short"), value.Str(fi.Short))
			}
			if fi.Desc != "" {
				o.Set(value.Str("desc"), value.Str(fi.Desc))
			}
			if fi.Example != "" {
				o.Set(value.Str("example"), value.Str(fi.Example))
			}
			out = append(out, o)
		}
		return &value.Array{Elements: out}, nil

	case bytecode.SysPrntm:
		return value.Str(renderMemory(ctx.Memory())), nil

	case bytecode.SysThrw:
		return nil, lavErrors.NewUserError(value.ToDisplayString(args[0]))

	case bytecode.SysTan, bytecode.SysSin, bytecode.SysCos,
		bytecode.SysAtan, bytecode.SysAsin, bytecode.SysAcos,
		bytecode.SysTanh, bytecode.SysSinh, bytecode.SysCosh:
		return trig(name, args[0])

	case bytecode.SysAtan2:
		a, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return value.Float(math.Atan2(a, b)), nil

	case bytecode.SysLog:
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		base, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		if base <= 0 || base == 1 || x <= 0 {
			return nil, lavErrors.NewArithmeticError(nil, "log: domain error for log base %v of %v", base, x)
		}
		return value.Float(math.Log(x) / math.Log(base)), nil

	case bytecode.SysIlog:
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		base, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		if base <= 0 || base == 1 || x <= 0 {
			return nil, lavErrors.NewArithmeticError(nil, "ilog: domain error for log base %v of %v", base, x)
		}
		return value.Float(math.Floor(math.Log(x) / math.Log(base))), nil

	case bytecode.SysRoot:
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		k, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		if x < 0 && math.Mod(k, 2) == 0 {
			return nil, lavErrors.NewArithmeticError(nil, "root: domain error for root %v of %v", k, x)
		}
		return value.Float(math.Pow(x, 1/k)), nil

	case bytecode.SysRound:
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		prec, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		mult := math.Pow(10, prec)
		return value.Float(math.Round(x*mult) / mult), nil

	case bytecode.SysType:
		return value.Str(value.TypeName(args[0])), nil

	case bytecode.SysSort:
		return sortValue(args[0])

	case bytecode.SysLen:
		return value.NewInt(int64(value.Len(args[0])), value.W64), nil

	default:
		return nil, lavErrors.NewLoadError("unknown syscall %q", name)
	}
}

func toFloat(v value.Value) (float64, error) {
	switch x := v.(type) {
	case value.Int:
		return x.AsFloat64(), nil
	case value.Float:
		return float64(x), nil
	case value.Fixed:
		f, _ := x.Dec.Float64()
		return f, nil
	default:
		return 0, lavErrors.NewTypeError("expected a numeric value, got %s", value.TypeName(v))
	}
}

func trig(name bytecode.Syscall, arg value.Value) (value.Value, error) {
	x, err := toFloat(arg)
	if err != nil {
		return nil, err
	}
	var r float64
	switch name {
	case bytecode.SysTan:
		r = math.Tan(x)
	case bytecode.SysSin:
		r = math.Sin(x)
	case bytecode.SysCos:
		r = math.Cos(x)
	case bytecode.SysAtan:
		r = math.Atan(x)
	case bytecode.SysAsin:
		if x < -1 || x > 1 {
			return nil, lavErrors.NewArithmeticError(nil, "asin: domain error for %v", x)
		}
		r = math.Asin(x)
	case bytecode.SysAcos:
		if x < -1 || x > 1 {
			return nil, lavErrors.NewArithmeticError(nil, "acos: domain error for %v", x)
		}
		r = math.Acos(x)
	case bytecode.SysTanh:
		r = math.Tanh(x)
	case bytecode.SysSinh:
		r = math.Sinh(x)
	case bytecode.SysCosh:
		r = math.Cosh(x)
	}
	return value.Float(r), nil
}

// sortValue implements SORT: a stable sort under spec.md §3's ordering,
// returning a new container rather than mutating the argument.
func sortValue(v value.Value) (value.Value, error) {
	arr, ok := v.(*value.Array)
	if !ok {
		return nil, lavErrors.NewTypeError("SORT expects an array, got %s", value.TypeName(v))
	}
	out := append([]value.Value{}, arr.Elements...)
	value.SortStable(out)
	return &value.Array{Elements: out}, nil
}

// renderMemory implements PRNTM: a structured dump of the VM's current
// shape via kr/pretty (teacher go.mod entry, unused by the teacher
// itself) with a humanized stack-size line via dustin/go-humanize (same
// situation) — both get their only home in this repo here.
func renderMemory(m MemorySnapshot) string {
	lines := pretty.Sprint(m)
	return fmt.Sprintf("instance %s: %d registered function(s), call depth %d/%d, operand stack ~%s\n%s",
		m.InstanceID, m.RegisteredFns, m.CallDepth, m.MaxCallDepth, humanize.Bytes(m.StackBytes), lines)
}
