// Iteration subsystem (spec.md §4.5): SCI/SCO/NEXT/PSAR/LCST drive a
// collector value sitting just below each loop's scope marker on the
// operand stack. Grounded on the teacher's iterState{index, collection,
// keys}, generalized to Lavendeux's four iterable kinds (array,
// object-yields-keys, range endpoint-inclusive, string-yields
// -codepoints) and to a cursor that lives on the operand stack itself
// rather than a side iterStack, so NEXT's "push element or branch when
// exhausted" contract needs no extra VM-wide bookkeeping.
package vm

import (
	lavErrors "lavendeux/internal/errors"
	"lavendeux/internal/value"
)

// iterCursor is a VM-private stack value: never constructed by, or
// visible to, Lavendeux source — it only ever occupies an operand-stack
// slot that NEXT produced and a later NEXT consumes. Ranges are walked
// lazily (lo/hi or loC/hiC) rather than materialized, so iterating a
// wide integer range doesn't allocate one Value per element.
type iterCursor struct {
	kind   string // "array", "keys", "string", "range-int", "range-char"
	items  []value.Value
	lo, hi int64
	loC    rune
	hiC    rune
	idx    int
}

func (c *iterCursor) remaining() int {
	switch c.kind {
	case "range-int":
		return int(c.hi-c.lo+1) - c.idx
	case "range-char":
		return int(c.hiC-c.loC+1) - c.idx
	default:
		return len(c.items) - c.idx
	}
}

func (c *iterCursor) take() value.Value {
	switch c.kind {
	case "range-int":
		v := value.NewInt(c.lo+int64(c.idx), value.W64)
		c.idx++
		return v
	case "range-char":
		v := value.Str(string(rune(int32(c.loC) + int32(c.idx))))
		c.idx++
		return v
	default:
		v := c.items[c.idx]
		c.idx++
		return v
	}
}

// newCursor wraps a container value for iteration. Objects yield keys;
// strings yield codepoints; ranges walk their inclusive endpoints;
// arrays walk their elements in order (spec.md §4.5).
func newCursor(v value.Value) (*iterCursor, error) {
	switch x := v.(type) {
	case *value.Array:
		return &iterCursor{kind: "array", items: append([]value.Value{}, x.Elements...)}, nil
	case *value.Object:
		return &iterCursor{kind: "keys", items: x.Keys()}, nil
	case value.Str:
		runes := value.Runes(x)
		items := make([]value.Value, len(runes))
		for i, r := range runes {
			items[i] = value.Str(string(r))
		}
		return &iterCursor{kind: "string", items: items}, nil
	case value.Range:
		if lo, hi, ok := rangeIntBounds(x); ok {
			return &iterCursor{kind: "range-int", lo: lo, hi: hi}, nil
		}
		if lo, hi, ok := rangeCharBounds(x); ok {
			return &iterCursor{kind: "range-char", loC: lo, hiC: hi}, nil
		}
		return nil, lavErrors.NewIterationError("range endpoints are not a matching int..int or char..char pair")
	default:
		return nil, lavErrors.NewIterationError("cannot iterate over %s", value.TypeName(v))
	}
}

func rangeIntBounds(r value.Range) (lo, hi int64, ok bool) {
	li, lok := r.Lo.(value.Int)
	hv, hok := r.Hi.(value.Int)
	if lok && hok {
		return li.AsInt64(), hv.AsInt64(), true
	}
	return 0, 0, false
}

func rangeCharBounds(r value.Range) (lo, hi rune, ok bool) {
	ls, lok := r.Lo.(value.Str)
	hs, hok := r.Hi.(value.Str)
	if lok && hok {
		lr, hr := value.Runes(ls), value.Runes(hs)
		if len(lr) == 1 && len(hr) == 1 {
			return lr[0], hr[0], true
		}
	}
	return 0, 0, false
}

// nonEmpty implements JMPNE's "top container is non-empty" test: an
// already-wrapped cursor reports its remaining count; a raw container
// reports its length, without needing to allocate a cursor just to ask.
func nonEmpty(v value.Value) bool {
	switch x := v.(type) {
	case *iterCursor:
		return x.remaining() > 0
	case *value.Array:
		return len(x.Elements) > 0
	case *value.Object:
		return x.Len() > 0
	case value.Str:
		return len(value.Runes(x)) > 0
	case value.Range:
		if lo, hi, ok := rangeIntBounds(x); ok {
			return hi >= lo
		}
		if lo, hi, ok := rangeCharBounds(x); ok {
			return hi >= lo
		}
		return false
	default:
		return value.Truthy(v)
	}
}

// sci opens a new scope (SCI): a fresh lexical cell frame, plus a
// bookkeeping mark at the current operand-stack depth so a later PSAR
// in this scope knows where its enclosing collector sits.
func (vm *VM) sci(f *frame) {
	f.scope = newScope(f.scope)
	f.scopeMark = append(f.scopeMark, len(vm.stack))
	f.pending = append(f.pending, nil)
	f.pendingSet = append(f.pendingSet, false)
}

// sco closes the innermost open scope (SCO): discard its cells, and if
// a PSAR is pending, extend the collector sitting just below the
// scope's mark with the pending value's elements (always an array by
// the time PSAR runs if LCST normalized it; a bare PSAR without LCST
// falls back to treating a non-array pending value as a single
// element).
func (vm *VM) sco(f *frame) error {
	n := len(f.scopeMark)
	if n == 0 {
		return lavErrors.NewIterationError("SCO without a matching SCI")
	}
	idx := n - 1
	mark := f.scopeMark[idx]
	if mark > len(vm.stack) {
		return lavErrors.NewLoadError("SCO: operand stack shrank below its SCI mark")
	}
	vm.stack = vm.stack[:mark]

	if f.pendingSet[idx] {
		if mark-1 < 0 {
			return lavErrors.NewIterationError("PSAR with no enclosing collector")
		}
		coll, ok := vm.stack[mark-1].(*value.Array)
		if !ok {
			return lavErrors.NewIterationError("PSAR: value beneath the scope marker is not a collector array")
		}
		pending := f.pending[idx]
		if arr, ok := pending.(*value.Array); ok {
			coll.Elements = append(coll.Elements, arr.Elements...)
		} else {
			coll.Elements = append(coll.Elements, pending)
		}
	}

	f.scope = f.scope.parent
	f.scopeMark = f.scopeMark[:idx]
	f.pending = f.pending[:idx]
	f.pendingSet = f.pendingSet[:idx]
	return nil
}

// psar marks the top value as pending promotion to the enclosing
// collector at the next SCO (spec.md §4.5).
func (vm *VM) psar(f *frame) error {
	if len(f.scopeMark) == 0 {
		return lavErrors.NewIterationError("PSAR outside any open scope")
	}
	v, err := vm.popValue()
	if err != nil {
		return err
	}
	idx := len(f.scopeMark) - 1
	f.pending[idx] = v
	f.pendingSet[idx] = true
	return nil
}

// next implements NEXT L (spec.md §4.5): pop the iterable/cursor on
// top, wrapping a raw container into a cursor on first touch; if
// exhausted, jump to L; otherwise push the (advanced) cursor back
// followed by the next element.
func (vm *VM) next(f *frame) error {
	code := f.fn.Code
	target := int(code.ReadUint16(f.ip))
	f.ip += 2

	top, err := vm.pop()
	if err != nil {
		return err
	}
	cur, ok := top.(*iterCursor)
	if !ok {
		cur, err = newCursor(top)
		if err != nil {
			return err
		}
	}
	if cur.remaining() <= 0 {
		f.ip = target
		return nil
	}
	elem := cur.take()
	vm.push(cur)
	vm.push(elem)
	return nil
}
