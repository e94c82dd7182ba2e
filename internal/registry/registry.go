// Package registry implements Lavendeux's function registry (spec.md
// §4.4): the id-keyed table of user and built-in functions, arity
// /signature checking, and overload pick. Grounded on the teacher's
// globalMap map[string]int + AddBuiltinFunction pattern in sentra's
// EnhancedVM, generalized to key entries by 64-bit stable id and to
// Lavendeux's richer per-parameter type annotations.
package registry

import (
	"fmt"
	"io"
	"sort"
	"strings"

	lavErrors "lavendeux/internal/errors"
	"lavendeux/internal/bytecode"
	"lavendeux/internal/value"
)

// Caller lets a NativeFunc invoke back into the VM — needed by natives
// like would_err that take a function-valued argument and run it under
// a trap. Implemented by *vm.VM; kept as an interface here so
// internal/registry never imports internal/vm.
type Caller interface {
	CallFunction(ref value.FuncRef, args []value.Value) (value.Value, error)
}

// NativeFunc is a host-implemented function body (syscalls and built-ins
// not compiled from Lavendeux source), grounded on the teacher's
// NativeFunction{Name, Arity, Function}.
type NativeFunc func(args []value.Value, call Caller) (value.Value, error)

// Entry is one callable: either a compiled FuncEntry (Chunk-backed) or a
// NativeFunc, sharing the same id space so CALL doesn't need to know
// which.
type Entry struct {
	Def    *bytecode.FuncEntry
	Native NativeFunc
}

// Registry holds every registered function by id, plus a name -> ids
// index for overload pick (multiple entries may share a name with
// different signatures).
type Registry struct {
	byID   map[uint64]*Entry
	byName map[string][]uint64
}

func New() *Registry {
	return &Registry{byID: map[uint64]*Entry{}, byName: map[string][]uint64{}}
}

// Register adds entry under def.ID, rejecting a duplicate id (Design
// Notes: 64-bit ids are statistically safe but must still be checked).
func (r *Registry) Register(def *bytecode.FuncEntry, native NativeFunc) error {
	if _, exists := r.byID[def.ID]; exists {
		return lavErrors.NewLoadError("duplicate function id %#x (%s)", def.ID, def.Name)
	}
	def.Hidden = def.Hidden || isHiddenName(def.Name)
	r.byID[def.ID] = &Entry{Def: def, Native: native}
	r.byName[def.Name] = append(r.byName[def.Name], def.ID)
	return nil
}

func isHiddenName(name string) bool {
	return len(name) >= 2 && name[:2] == "__"
}

// Lookup resolves a function by its 64-bit id (used by CALL fid n).
func (r *Registry) Lookup(id uint64) (*Entry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// All returns every registered entry ordered by id, used by LSTFN.
// Sorted rather than raw map iteration so repeated LSTFN calls against
// the same loaded image are deterministic (spec.md §8 property 1).
func (r *Registry) All() []*Entry {
	out := make([]*Entry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Def.ID < out[j].Def.ID })
	return out
}

// nextNativeID allocates ids for natives registered without a compiled
// FuncEntry (Bootstrap's built-ins). Chosen from a high band so they
// never collide with a real image's 64-bit function-table hashes, which
// in every observed example cluster in the low/mixed bit patterns of a
// hash digest rather than this reserved high range.
var nextNativeID uint64 = 0xFFFFFFFF00000000

// RegisterNative installs a built-in under name with no compiled body,
// allocating it a reserved id. Used by Bootstrap for host-level
// functions (echo, document_function, __draw_cool_box, would_err) that
// exist outside any compiled image.
func (r *Registry) RegisterNative(name, category string, params []bytecode.ParamSpec, ret string, fn NativeFunc) uint64 {
	id := nextNativeID
	nextNativeID++
	def := &bytecode.FuncEntry{ID: id, Name: name, Category: category, Params: params, Return: ret}
	def.Hidden = isHiddenName(name)
	r.byID[id] = &Entry{Def: def, Native: fn}
	r.byName[name] = append(r.byName[name], id)
	return id
}

// Bootstrap installs the host-level natives every Lavendeux VM carries
// regardless of what image is loaded: `echo` (§8's syscall-echo
// scenario), `document_function` (the one post-load registry mutation
// §5 allows), `__draw_cool_box` (§8's help-rendering scenario, hidden
// per its `__` prefix), and `would_err` (§7's trap-frame test
// predicate).
func (r *Registry) Bootstrap(stdout io.Writer) {
	r.RegisterNative("echo", "io", []bytecode.ParamSpec{{Name: "s", Type: "string"}}, "string",
		func(args []value.Value, _ Caller) (value.Value, error) {
			s := value.ToDisplayString(args[0])
			fmt.Fprint(stdout, s)
			return value.Str(s), nil
		})

	r.RegisterNative("document_function", "meta", []bytecode.ParamSpec{
		{Name: "f", Type: "function"},
		{Name: "short", Type: "string", HasDefault: true},
		{Name: "desc", Type: "string", HasDefault: true},
		{Name: "example", Type: "string", HasDefault: true},
	}, "nil", func(args []value.Value, _ Caller) (value.Value, error) {
		ref, ok := args[0].(value.FuncRef)
		if !ok {
			return nil, lavErrors.NewTypeError("document_function: expected a function, got %s", value.TypeName(args[0]))
		}
		get := func(i int) string {
			if i >= len(args) {
				return ""
			}
			s, _ := args[i].(value.Str)
			return string(s)
		}
		if err := r.DocumentFunction(ref.ID, get(1), get(2), get(3)); err != nil {
			return nil, err
		}
		return value.Nil, nil
	})

	r.RegisterNative("__draw_cool_box", "__hidden", []bytecode.ParamSpec{
		{Name: "title", Type: "string"},
		{Name: "lines", Type: "array"},
	}, "string", func(args []value.Value, _ Caller) (value.Value, error) {
		return drawCoolBox(args)
	})

	r.RegisterNative("would_err", "meta", []bytecode.ParamSpec{{Name: "f", Type: "function"}}, "bool",
		func(args []value.Value, call Caller) (value.Value, error) {
			ref, ok := args[0].(value.FuncRef)
			if !ok {
				return nil, lavErrors.NewTypeError("would_err: expected a function, got %s", value.TypeName(args[0]))
			}
			if call == nil {
				return nil, lavErrors.NewLoadError("would_err: no caller bound")
			}
			_, err := call.CallFunction(ref, nil)
			return value.Bool(err != nil), nil
		})
}

// drawCoolBox renders the box from spec.md §8's help-rendering scenario:
// a 4-line `╔══╗ / ║ T ║ / ║ L ║ / ╚══╝`-style frame whose interior width
// is max(len(title), len(each line)) + 2.
func drawCoolBox(args []value.Value) (value.Value, error) {
	title, ok := args[0].(value.Str)
	if !ok {
		return nil, lavErrors.NewTypeError("__draw_cool_box: title must be a string")
	}
	arr, ok := args[1].(*value.Array)
	if !ok {
		return nil, lavErrors.NewTypeError("__draw_cool_box: lines must be an array")
	}
	width := len([]rune(string(title)))
	lines := make([]string, len(arr.Elements))
	for i, e := range arr.Elements {
		s, ok := e.(value.Str)
		if !ok {
			return nil, lavErrors.NewTypeError("__draw_cool_box: line %d is not a string", i)
		}
		lines[i] = string(s)
		if n := len([]rune(lines[i])); n > width {
			width = n
		}
	}
	inner := width + 2
	var sb strings.Builder
	sb.WriteString("╔" + strings.Repeat("═", inner) + "╗\n")
	sb.WriteString("║ " + padTo(string(title), width) + " ║\n")
	for _, l := range lines {
		sb.WriteString("║ " + padTo(l, width) + " ║\n")
	}
	sb.WriteString("╚" + strings.Repeat("═", inner) + "╝")
	return value.Str(sb.String()), nil
}

func padTo(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// Resolve returns the first overload registered under name whose arity
// range (required parameters up to all parameters, trailing ones
// defaulted) and type annotations accept args. Arguments are checked
// as they are: no coercion is applied, and an exact match registered
// later is not preferred over an earlier overload that also accepts.
func (r *Registry) Resolve(name string, args []value.Value) (*Entry, error) {
	ids, ok := r.byName[name]
	if !ok || len(ids) == 0 {
		return nil, lavErrors.NewTypeError("no function named %q", name)
	}
	var best *Entry
	for _, id := range ids {
		e := r.byID[id]
		if matches(e.Def, args) {
			best = e
			break
		}
	}
	if best == nil {
		return nil, lavErrors.NewTypeError("no overload of %q accepts %d argument(s) of the given types", name, len(args))
	}
	return best, nil
}

func matches(def *bytecode.FuncEntry, args []value.Value) bool {
	if def == nil {
		return true // native function with no declared signature
	}
	required := 0
	for _, p := range def.Params {
		if !p.HasDefault {
			required++
		}
	}
	if len(args) < required || len(args) > len(def.Params) {
		return false
	}
	for i, a := range args {
		if !satisfies(def.Params[i].Type, a) {
			return false
		}
	}
	return true
}

// satisfies implements the coercion-acceptance rules named in spec.md
// §4.4: "numeric" accepts int/float/fixed; "collection" accepts
// string/array/object; "primitive" accepts anything but an array, an
// object or a function (strings and regexes pass); "any" accepts
// everything.
func satisfies(annotation string, v value.Value) bool {
	if annotation == "" || annotation == "any" {
		return true
	}
	switch annotation {
	case "numeric":
		switch v.(type) {
		case value.Int, value.Float, value.Fixed:
			return true
		}
		return false
	case "collection":
		switch v.(type) {
		case value.Str, *value.Array, *value.Object:
			return true
		}
		return false
	case "primitive":
		switch v.(type) {
		case *value.Array, *value.Object, value.FuncRef:
			return false
		default:
			return true
		}
	case "function":
		_, ok := v.(value.FuncRef)
		return ok
	case "array":
		_, ok := v.(*value.Array)
		return ok
	case "object":
		_, ok := v.(*value.Object)
		return ok
	case "string":
		_, ok := v.(value.Str)
		return ok
	case "bool":
		_, ok := v.(value.Bool)
		return ok
	case "range":
		_, ok := v.(value.Range)
		return ok
	case "regex":
		_, ok := v.(value.Regex)
		return ok
	case "fixed":
		_, ok := v.(value.Fixed)
		return ok
	case "float":
		_, ok := v.(value.Float)
		return ok
	case "int":
		_, ok := v.(value.Int)
		return ok
	default:
		// widthed integer annotations: i8/i16/i32/i64/u8/u16/u32/u64
		i, ok := v.(value.Int)
		if !ok {
			return false
		}
		return fmt.Sprintf("%c%d", signChar(i), i.Width) == annotation
	}
}

// CheckCall validates args against def's declared signature (arity and
// type annotations, without coercion) and returns the argument vector the callee frame
// should bind, with trailing omitted defaulted parameters filled in from
// def.Code's constant pool. A nil def (native with no declared
// signature) passes args through unchanged.
func CheckCall(def *bytecode.FuncEntry, args []value.Value) ([]value.Value, error) {
	if def == nil {
		return args, nil
	}
	required := 0
	for _, p := range def.Params {
		if !p.HasDefault {
			required++
		}
	}
	if len(args) < required || len(args) > len(def.Params) {
		return nil, lavErrors.NewTypeError("%s: expected %d..%d argument(s), got %d", def.Name, required, len(def.Params), len(args))
	}
	for i, a := range args {
		if !satisfies(def.Params[i].Type, a) {
			return nil, lavErrors.NewTypeError("%s: argument %d (%s) does not satisfy declared type %q", def.Name, i, value.TypeName(a), def.Params[i].Type)
		}
	}
	if len(args) == len(def.Params) {
		return args, nil
	}
	out := append([]value.Value{}, args...)
	for i := len(args); i < len(def.Params); i++ {
		p := def.Params[i]
		if !p.HasDefault {
			return nil, lavErrors.NewTypeError("%s: missing required argument %q", def.Name, p.Name)
		}
		if p.Default < 0 || def.Code == nil || p.Default >= len(def.Code.Constants) {
			out = append(out, value.Nil)
			continue
		}
		out = append(out, def.Code.Constants[p.Default])
	}
	return out, nil
}

func signChar(i value.Int) byte {
	if i.Signed {
		return 'i'
	}
	return 'u'
}

// DocumentFunction appends documentation fields to an existing entry —
// the one registry mutation allowed after load (spec.md §5). It appends
// rather than overwrites, per the Design Notes fix to the `help`
// assembly's observed `= f` overwrite bug: the fields named are
// accumulated into a newline-joined field, not replaced.
func (r *Registry) DocumentFunction(id uint64, short, desc, example string) error {
	e, ok := r.byID[id]
	if !ok || e.Def == nil {
		return lavErrors.NewLoadError("document_function: unknown function id %#x", id)
	}
	e.Def.Short = appendDoc(e.Def.Short, short)
	e.Def.Desc = appendDoc(e.Def.Desc, desc)
	e.Def.Example = appendDoc(e.Def.Example, example)
	return nil
}

func appendDoc(existing, addition string) string {
	if addition == "" {
		return existing
	}
	if existing == "" {
		return addition
	}
	return existing + "\n" + addition
}
