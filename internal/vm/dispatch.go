package vm

import (
	"strings"

	"lavendeux/internal/bytecode"
	lavErrors "lavendeux/internal/errors"
	"lavendeux/internal/reference"
	"lavendeux/internal/value"
)

// runFrame is the hot dispatch loop (spec.md §4.3): read the next
// opcode, execute it, repeat until RET or an error. Grounded on the
// teacher's EnhancedVM.run "for { op := ...; switch op { ... } }"
// structure, generalized to Lavendeux's instruction set and to
// returning a located *errors.LavError on failure instead of a plain
// Go error.
func (vm *VM) runFrame(f *frame) (value.Value, error) {
	code := f.fn.Code
	for {
		if f.ip >= len(code.Code) {
			// A well-formed function always ends on RET; falling off
			// the end returns Nil rather than erroring, so a bare
			// fall-through body (no explicit return) still behaves.
			return value.Nil, nil
		}
		op := bytecode.Op(code.Code[f.ip])
		ip0 := f.ip
		f.ip++
		if vm.hook != nil {
			vm.hook.OnInstruction(f.fn.Name, ip0, op)
		}
		v, done, err := vm.step(f, op)
		if err != nil {
			return nil, vm.locate(err, f, ip0)
		}
		if done {
			return v, nil
		}
	}
}

// locate attaches debug info (when the image carries it) to an error
// raised at ip within f. An error that already carries a location (set
// in the callee frame that raised it) keeps it.
func (vm *VM) locate(err error, f *frame, ip int) error {
	lerr, ok := err.(*lavErrors.LavError)
	if !ok {
		return err
	}
	if lerr.Loc != (lavErrors.Location{}) {
		return lerr
	}
	d := f.fn.Code.GetDebugInfo(ip)
	lerr.WithLocation(lavErrors.Location{
		Function: f.fn.Name,
		IP:       ip,
		Line:     d.Line,
		Column:   d.Column,
		File:     d.File,
	})
	return lerr
}

// step executes one instruction. done is true only for RET, at which
// point v is the frame's return value.
func (vm *VM) step(f *frame, op bytecode.Op) (v value.Value, done bool, err error) {
	code := f.fn.Code
	switch op {
	case bytecode.OpPush:
		idx := code.ReadUint16(f.ip)
		f.ip += 2
		if int(idx) >= len(code.Constants) {
			return nil, false, lavErrors.NewLoadError("PUSH: constant index %d out of range", idx)
		}
		vm.push(code.Constants[idx])

	case bytecode.OpPop:
		if _, err := vm.pop(); err != nil {
			return nil, false, err
		}

	case bytecode.OpDup:
		t, err := vm.top()
		if err != nil {
			return nil, false, err
		}
		vm.push(t)

	case bytecode.OpSwap:
		b, err := vm.pop()
		if err != nil {
			return nil, false, err
		}
		a, err := vm.pop()
		if err != nil {
			return nil, false, err
		}
		vm.push(b)
		vm.push(a)

	case bytecode.OpRef:
		name, err := vm.constStr(code, f.ip)
		if err != nil {
			return nil, false, err
		}
		f.ip += 2
		vm.push(reference.NewNamed(f.scope, name))

	case bytecode.OpWref:
		ref, val, err := vm.popRefThenValue()
		if err != nil {
			return nil, false, err
		}
		result, err := ref.Write(val)
		if err != nil {
			return nil, false, lavErrors.NewIndexError(err, "%s", err.Error())
		}
		vm.push(result)

	case bytecode.OpDeref:
		top, err := vm.pop()
		if err != nil {
			return nil, false, err
		}
		ref, ok := top.(reference.Reference)
		if !ok {
			return nil, false, lavErrors.NewTypeError("DEREF: top of stack is not a reference")
		}
		result, err := ref.Read()
		if err != nil {
			return nil, false, lavErrors.NewIndexError(err, "%s", err.Error())
		}
		vm.push(result)

	case bytecode.OpIdex, bytecode.OpIdexAppend:
		var key value.Value = reference.AppendKey
		if op == bytecode.OpIdex {
			k, err := vm.pop()
			if err != nil {
				return nil, false, err
			}
			key, err = deref(k)
			if err != nil {
				return nil, false, err
			}
		}
		base, err := vm.pop()
		if err != nil {
			return nil, false, err
		}
		base, err = deref(base)
		if err != nil {
			return nil, false, err
		}
		vm.push(reference.NewIndexed(base, key))

	case bytecode.OpCast:
		typeName, err := vm.constStr(code, f.ip)
		if err != nil {
			return nil, false, err
		}
		f.ip += 2
		top, err := vm.pop()
		if err != nil {
			return nil, false, err
		}
		top, err = deref(top)
		if err != nil {
			return nil, false, err
		}
		result, err := value.Cast(top, typeName)
		if err != nil {
			return nil, false, lavErrors.NewArithmeticError(err, "%s", err.Error())
		}
		vm.push(result)

	case bytecode.OpMkArray:
		n := code.ReadUint16(f.ip)
		f.ip += 2
		vm.push(&value.Array{Elements: make([]value.Value, 0, n)})

	case bytecode.OpMkObject:
		f.ip += 2
		vm.push(value.NewObject())

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow:
		return vm.binaryArith(op)

	case bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		return vm.compare(op)

	case bytecode.OpLAnd, bytecode.OpLOr:
		b, a, err := vm.popTwoValues()
		if err != nil {
			return nil, false, err
		}
		if op == bytecode.OpLAnd {
			vm.push(value.Bool(value.Truthy(a) && value.Truthy(b)))
		} else {
			vm.push(value.Bool(value.Truthy(a) || value.Truthy(b)))
		}

	case bytecode.OpLNot:
		a, err := vm.popValue()
		if err != nil {
			return nil, false, err
		}
		vm.push(value.Bool(!value.Truthy(a)))

	case bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor:
		b, a, err := vm.popTwoValues()
		if err != nil {
			return nil, false, err
		}
		var r value.Value
		switch op {
		case bytecode.OpBAnd:
			r, err = value.BAnd(a, b)
		case bytecode.OpBOr:
			r, err = value.BOr(a, b)
		default:
			r, err = value.BXor(a, b)
		}
		if err != nil {
			return nil, false, lavErrors.NewTypeError("%s", err.Error())
		}
		vm.push(r)

	case bytecode.OpBNot:
		a, err := vm.popValue()
		if err != nil {
			return nil, false, err
		}
		r, err := value.BNot(a)
		if err != nil {
			return nil, false, lavErrors.NewTypeError("%s", err.Error())
		}
		vm.push(r)

	case bytecode.OpNeg:
		a, err := vm.popValue()
		if err != nil {
			return nil, false, err
		}
		r, err := value.Negate(a)
		if err != nil {
			return nil, false, lavErrors.NewArithmeticError(err, "%s", err.Error())
		}
		vm.push(r)

	case bytecode.OpJmp:
		f.ip = int(code.ReadUint16(f.ip))

	case bytecode.OpJmpT, bytecode.OpJmpF:
		target := code.ReadUint16(f.ip)
		f.ip += 2
		a, err := vm.popValue()
		if err != nil {
			return nil, false, err
		}
		if (op == bytecode.OpJmpT) == value.Truthy(a) {
			f.ip = int(target)
		}

	case bytecode.OpJmpNE:
		target := code.ReadUint16(f.ip)
		f.ip += 2
		a, err := vm.popValue()
		if err != nil {
			return nil, false, err
		}
		if nonEmpty(a) {
			f.ip = int(target)
		}

	case bytecode.OpCall:
		return vm.call(f)

	case bytecode.OpRet:
		val, err := vm.pop()
		if err != nil {
			return nil, false, err
		}
		val, err = deref(val)
		if err != nil {
			return nil, false, err
		}
		return val, true, nil

	case bytecode.OpMkFn, bytecode.OpFSig, bytecode.OpWrFn:
		return nil, false, lavErrors.NewLoadError("%s is an assembler directive and cannot appear in executable code", op)

	case bytecode.OpSCI:
		vm.sci(f)

	case bytecode.OpSCO:
		return nil, false, vm.sco(f)

	case bytecode.OpNext:
		return nil, false, vm.next(f)

	case bytecode.OpPsar:
		return nil, false, vm.psar(f)

	case bytecode.OpLcst:
		a, err := vm.popValue()
		if err != nil {
			return nil, false, err
		}
		if arr, ok := a.(*value.Array); ok {
			vm.push(arr)
		} else {
			vm.push(&value.Array{Elements: []value.Value{a}})
		}

	case bytecode.OpCntn:
		elem, container, err := vm.popTwoValues()
		if err != nil {
			return nil, false, err
		}
		ok, err := reference.Membership(container, elem)
		if err != nil {
			return nil, false, lavErrors.NewTypeError("%s", err.Error())
		}
		vm.push(value.Bool(ok))

	case bytecode.OpStwt:
		needle, haystack, err := vm.popTwoValues()
		if err != nil {
			return nil, false, err
		}
		hs, ok1 := haystack.(value.Str)
		ns, ok2 := needle.(value.Str)
		if !ok1 || !ok2 {
			return nil, false, lavErrors.NewTypeError("STWT requires two strings, got %s and %s", value.TypeName(haystack), value.TypeName(needle))
		}
		vm.push(value.Bool(strings.HasPrefix(string(hs), string(ns))))

	case bytecode.OpSsplt:
		sep, s, err := vm.popTwoValues()
		if err != nil {
			return nil, false, err
		}
		ss, ok1 := s.(value.Str)
		seps, ok2 := sep.(value.Str)
		if !ok1 || !ok2 {
			return nil, false, lavErrors.NewTypeError("SSPLT requires two strings, got %s and %s", value.TypeName(s), value.TypeName(sep))
		}
		parts := strings.Split(string(ss), string(seps))
		elems := make([]value.Value, len(parts))
		for i, p := range parts {
			elems[i] = value.Str(p)
		}
		vm.push(&value.Array{Elements: elems})

	case bytecode.OpSyscall:
		return vm.syscall(f)

	default:
		return nil, false, lavErrors.NewLoadError("unknown opcode %d", op)
	}
	return nil, false, nil
}

// constStr reads a uint16 constant-pool index at ip and requires it name
// a Str constant (used by REF/CAST, whose operand is always an
// interned name/type string).
func (vm *VM) constStr(code *bytecode.Chunk, ip int) (string, error) {
	idx := code.ReadUint16(ip)
	if int(idx) >= len(code.Constants) {
		return "", lavErrors.NewLoadError("constant index %d out of range", idx)
	}
	s, ok := code.Constants[idx].(value.Str)
	if !ok {
		return "", lavErrors.NewLoadError("constant index %d is not a string", idx)
	}
	return string(s), nil
}

func (vm *VM) popValue() (value.Value, error) {
	v, err := vm.pop()
	if err != nil {
		return nil, err
	}
	return deref(v)
}

// popTwoValues pops b (top) then a, dereferencing both — the shared
// shape of every binary instruction (arithmetic, comparison, CNTN,
// STWT, SSPLT): left operand pushed first, so it sits deeper.
func (vm *VM) popTwoValues() (b, a value.Value, err error) {
	b, err = vm.popValue()
	if err != nil {
		return nil, nil, err
	}
	a, err = vm.popValue()
	if err != nil {
		return nil, nil, err
	}
	return b, a, nil
}

// popRefThenValue implements WREF's stack discipline: Ref on top, the
// Value to store sits just beneath it.
func (vm *VM) popRefThenValue() (reference.Reference, value.Value, error) {
	top, err := vm.pop()
	if err != nil {
		return reference.Reference{}, nil, err
	}
	ref, ok := top.(reference.Reference)
	if !ok {
		return reference.Reference{}, nil, lavErrors.NewTypeError("WREF: top of stack is not a reference")
	}
	val, err := vm.popValue()
	if err != nil {
		return reference.Reference{}, nil, err
	}
	return ref, val, nil
}

func (vm *VM) binaryArith(op bytecode.Op) (value.Value, bool, error) {
	b, a, err := vm.popTwoValues()
	if err != nil {
		return nil, false, err
	}
	var r value.Value
	switch op {
	case bytecode.OpAdd:
		r, err = value.Add(a, b)
	case bytecode.OpSub:
		r, err = value.Sub(a, b)
	case bytecode.OpMul:
		r, err = value.Mul(a, b)
	case bytecode.OpDiv:
		r, err = value.Div(a, b)
	case bytecode.OpMod:
		r, err = value.Mod(a, b)
	case bytecode.OpPow:
		r, err = value.Pow(a, b)
	}
	if err != nil {
		return nil, false, lavErrors.NewArithmeticError(err, "%s", err.Error())
	}
	vm.push(r)
	return nil, false, nil
}

func (vm *VM) compare(op bytecode.Op) (value.Value, bool, error) {
	b, a, err := vm.popTwoValues()
	if err != nil {
		return nil, false, err
	}
	var r bool
	switch op {
	case bytecode.OpEq:
		r = value.Equal(a, b)
	case bytecode.OpNe:
		r = !value.Equal(a, b)
	case bytecode.OpLt:
		r = value.Compare(a, b) < 0
	case bytecode.OpLe:
		r = value.Compare(a, b) <= 0
	case bytecode.OpGt:
		r = value.Compare(a, b) > 0
	case bytecode.OpGe:
		r = value.Compare(a, b) >= 0
	}
	vm.push(value.Bool(r))
	return nil, false, nil
}

func (vm *VM) call(f *frame) (value.Value, bool, error) {
	code := f.fn.Code
	if f.ip+9 > len(code.Code) {
		return nil, false, lavErrors.NewLoadError("CALL: truncated operand")
	}
	fid := code.ReadUint64(f.ip)
	argc := int(code.Code[f.ip+8])
	f.ip += 9
	if len(vm.stack) < argc {
		return nil, false, lavErrors.NewLoadError("CALL: operand stack underflow")
	}
	args := make([]value.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return nil, false, err
		}
		args[i] = v
	}
	entry, ok := vm.reg.Lookup(fid)
	if !ok {
		return nil, false, lavErrors.NewLoadError("CALL: unknown function id %#x", fid)
	}
	result, err := vm.invoke(entry, args)
	if err != nil {
		return nil, false, err
	}
	vm.push(result)
	return nil, false, nil
}
