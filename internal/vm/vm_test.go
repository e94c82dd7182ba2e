package vm

import (
	"bytes"
	"testing"

	"lavendeux/internal/bytecode"
	"lavendeux/internal/registry"
	"lavendeux/internal/value"
)

// buildEntry assembles a single-function registry entry from a Chunk a
// test has already written instructions into, mirroring the teacher's
// runVM helper (hand-built bytecode.Chunk, fed straight to the VM)
// generalized to Lavendeux's function-table/registry split.
func buildEntry(id uint64, name string, code *bytecode.Chunk, params []bytecode.ParamSpec) *bytecode.FuncEntry {
	return &bytecode.FuncEntry{ID: id, Name: name, Params: params, Code: code}
}

func newTestVM(t *testing.T, entries ...*bytecode.FuncEntry) (*VM, *bytes.Buffer) {
	t.Helper()
	reg := registry.New()
	for _, e := range entries {
		if err := reg.Register(e, nil); err != nil {
			t.Fatalf("register %s: %v", e.Name, err)
		}
	}
	var out bytes.Buffer
	return New(reg, WithStdout(&out), WithAllowSyscalld(true)), &out
}

func TestArithmetic(t *testing.T) {
	c := bytecode.NewChunk()
	one := c.AddConstant(value.NewInt(1, value.W64))
	two := c.AddConstant(value.NewInt(2, value.W64))
	three := c.AddConstant(value.NewInt(3, value.W64))

	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(two))
	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(three))
	c.WriteOp(bytecode.OpMul) // 2*3 = 6
	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(one))
	c.WriteOp(bytecode.OpAdd) // 1+6 = 7
	c.WriteOp(bytecode.OpRet)

	main := buildEntry(1, "main", c, nil)
	vm, _ := newTestVM(t, main)

	result, err := vm.Run(1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	i, ok := result.(value.Int)
	if !ok || i.AsInt64() != 7 {
		t.Fatalf("expected Int(7), got %#v", result)
	}
}

// TestShortCircuitAnd builds the illustrative DUP/JMPF pattern for `a &&
// b`: if a is falsy the second operand is never evaluated and the
// falsy a survives as the expression's value.
func TestShortCircuitAnd(t *testing.T) {
	c := bytecode.NewChunk()
	falseIdx := c.AddConstant(value.Bool(false))
	trueIdx := c.AddConstant(value.Bool(true))

	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(falseIdx))
	c.WriteOp(bytecode.OpDup)
	c.WriteOp(bytecode.OpJmpF)
	jmpOperand := len(c.Code)
	c.WriteUint16(0) // patched below
	c.WriteOp(bytecode.OpPop)
	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(trueIdx))
	c.WriteOp(bytecode.OpRet)
	target := len(c.Code)
	c.Code[jmpOperand] = byte(target >> 8)
	c.Code[jmpOperand+1] = byte(target)
	c.WriteOp(bytecode.OpRet)

	main := buildEntry(1, "main", c, nil)
	vm, _ := newTestVM(t, main)

	result, err := vm.Run(1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b, ok := result.(value.Bool); !ok || bool(b) {
		t.Fatalf("expected short-circuited Bool(false), got %#v", result)
	}
}

func TestRefWriteRead(t *testing.T) {
	c := bytecode.NewChunk()
	val := c.AddConstant(value.NewInt(42, value.W64))
	name := c.AddConstant(value.Str("x"))

	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(val))
	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(name))
	c.WriteOp(bytecode.OpWref)
	c.WriteOp(bytecode.OpPop)
	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(name))
	c.WriteOp(bytecode.OpDeref)
	c.WriteOp(bytecode.OpRet)

	main := buildEntry(1, "main", c, nil)
	vm, _ := newTestVM(t, main)

	result, err := vm.Run(1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i, ok := result.(value.Int); !ok || i.AsInt64() != 42 {
		t.Fatalf("expected Int(42), got %#v", result)
	}
}

// TestCallWithArgs exercises CALL into a second function binding two
// declared parameters.
func TestCallWithArgs(t *testing.T) {
	addCode := bytecode.NewChunk()
	xName := addCode.AddConstant(value.Str("x"))
	yName := addCode.AddConstant(value.Str("y"))
	addCode.WriteOp(bytecode.OpRef)
	addCode.WriteUint16(uint16(xName))
	addCode.WriteOp(bytecode.OpDeref)
	addCode.WriteOp(bytecode.OpRef)
	addCode.WriteUint16(uint16(yName))
	addCode.WriteOp(bytecode.OpDeref)
	addCode.WriteOp(bytecode.OpAdd)
	addCode.WriteOp(bytecode.OpRet)
	addFn := buildEntry(2, "add", addCode, []bytecode.ParamSpec{{Name: "x"}, {Name: "y"}})

	mainCode := bytecode.NewChunk()
	a := mainCode.AddConstant(value.NewInt(10, value.W64))
	b := mainCode.AddConstant(value.NewInt(32, value.W64))
	mainCode.WriteOp(bytecode.OpPush)
	mainCode.WriteUint16(uint16(a))
	mainCode.WriteOp(bytecode.OpPush)
	mainCode.WriteUint16(uint16(b))
	mainCode.WriteOp(bytecode.OpCall)
	mainCode.WriteUint64(2)
	mainCode.WriteByte(2)
	mainCode.WriteOp(bytecode.OpRet)
	mainFn := buildEntry(1, "main", mainCode, nil)

	vm, _ := newTestVM(t, mainFn, addFn)
	result, err := vm.Run(1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i, ok := result.(value.Int); !ok || i.AsInt64() != 42 {
		t.Fatalf("expected Int(42), got %#v", result)
	}
}

// TestComprehensionSumsArray drives a NEXT/JMP accumulator loop over
// [1,2,3]: a plain REF/DEREF/ADD/WREF running sum, with no SCI/SCO/PSAR
// involved. The collector-promotion half of the iteration family (SCI,
// SCO, PSAR, LCST) is exercised separately by
// TestComprehensionCollectsArray below.
func TestComprehensionSumsArray(t *testing.T) {
	c := bytecode.NewChunk()
	one := c.AddConstant(value.NewInt(1, value.W64))
	two := c.AddConstant(value.NewInt(2, value.W64))
	three := c.AddConstant(value.NewInt(3, value.W64))
	zero := c.AddConstant(value.NewInt(0, value.W64))
	accName := c.AddConstant(value.Str("acc"))

	arr := &value.Array{Elements: []value.Value{
		mustConst(c, one), mustConst(c, two), mustConst(c, three),
	}}
	arrIdx := c.AddConstant(arr)

	c.WriteOp(bytecode.OpPush) // acc = 0
	c.WriteUint16(uint16(zero))
	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(accName))
	c.WriteOp(bytecode.OpWref)
	c.WriteOp(bytecode.OpPop)

	c.WriteOp(bytecode.OpPush) // push the array to iterate
	c.WriteUint16(uint16(arrIdx))

	loopStart := len(c.Code)
	c.WriteOp(bytecode.OpNext)
	nextOperand := len(c.Code)
	c.WriteUint16(0) // patched to loopEnd below

	// acc = acc + element
	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(accName))
	c.WriteOp(bytecode.OpDeref)
	c.WriteOp(bytecode.OpAdd)
	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(accName))
	c.WriteOp(bytecode.OpWref)
	c.WriteOp(bytecode.OpPop)

	c.WriteOp(bytecode.OpJmp)
	c.WriteUint16(uint16(loopStart))

	loopEnd := len(c.Code)
	c.Code[nextOperand] = byte(loopEnd >> 8)
	c.Code[nextOperand+1] = byte(loopEnd)

	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(accName))
	c.WriteOp(bytecode.OpDeref)
	c.WriteOp(bytecode.OpRet)

	main := buildEntry(1, "main", c, nil)
	vm, _ := newTestVM(t, main)

	result, err := vm.Run(1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i, ok := result.(value.Int); !ok || i.AsInt64() != 6 {
		t.Fatalf("expected Int(6), got %#v", result)
	}
}

func mustConst(c *bytecode.Chunk, idx int) value.Value {
	return c.Constants[idx]
}

// TestComprehensionCollectsArray exercises the collector-promotion half
// of the iteration family end to end: `for i in [1,2,3] do i if i > 1`,
// built from a fresh SCI/SCO scope per iteration (each scope's mark
// sits directly on the collector — NEXT's cursor is parked in a named
// cell for the scope's lifetime so nothing else occupies that slot),
// with the qualifying element LCST-lifted and PSAR'd into the collector
// sitting below the mark. JMPNE gates loop entry on the source array
// being non-empty, NEXT drives each iteration and its own exhaustion
// branch. Expects the collector [2, 3].
func TestComprehensionCollectsArray(t *testing.T) {
	c := bytecode.NewChunk()
	one := c.AddConstant(value.NewInt(1, value.W64))
	iName := c.AddConstant(value.Str("i"))
	curName := c.AddConstant(value.Str("__cur"))
	arr := &value.Array{Elements: []value.Value{
		value.NewInt(1, value.W64),
		value.NewInt(2, value.W64),
		value.NewInt(3, value.W64),
	}}
	arrIdx := c.AddConstant(arr)

	c.WriteOp(bytecode.OpMkArray) // the collector
	c.WriteUint16(0)

	c.WriteOp(bytecode.OpPush) // the source array
	c.WriteUint16(uint16(arrIdx))

	c.WriteOp(bytecode.OpDup)
	c.WriteOp(bytecode.OpJmpNE)
	jmpneOperand := len(c.Code)
	c.WriteUint16(0) // patched to loopStart below

	// empty-source path: never taken for this literal array, but kept
	// valid so JMPNE's "skip the loop" branch has somewhere to land.
	c.WriteOp(bytecode.OpPop)
	c.WriteOp(bytecode.OpJmp)
	emptyOperand := len(c.Code)
	c.WriteUint16(0) // patched to loopEnd below

	loopStart := len(c.Code)
	c.Code[jmpneOperand] = byte(loopStart >> 8)
	c.Code[jmpneOperand+1] = byte(loopStart)

	c.WriteOp(bytecode.OpNext)
	nextOperand := len(c.Code)
	c.WriteUint16(0) // patched to loopEnd below

	// i = element; __cur = cursor — parking both in named cells leaves
	// only the collector on the operand stack for SCI to mark.
	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(iName))
	c.WriteOp(bytecode.OpWref)
	c.WriteOp(bytecode.OpPop)
	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(curName))
	c.WriteOp(bytecode.OpWref)
	c.WriteOp(bytecode.OpPop)

	c.WriteOp(bytecode.OpSCI)

	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(iName))
	c.WriteOp(bytecode.OpDeref)
	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(one))
	c.WriteOp(bytecode.OpGt) // i > 1

	c.WriteOp(bytecode.OpJmpF)
	jmpfOperand := len(c.Code)
	c.WriteUint16(0) // patched to scoAddr below: skip PSAR when the guard fails

	c.WriteOp(bytecode.OpRef)
	c.WriteUint16(uint16(iName))
	c.WriteOp(bytecode.OpDeref)
	c.WriteOp(bytecode.OpLcst)
	c.WriteOp(bytecode.OpPsar)

	scoAddr := len(c.Code)
	c.Code[jmpfOperand] = byte(scoAddr >> 8)
	c.Code[jmpfOperand+1] = byte(scoAddr)
	c.WriteOp(bytecode.OpSCO)

	c.WriteOp(bytecode.OpRef) // restore the cursor for the next NEXT
	c.WriteUint16(uint16(curName))
	c.WriteOp(bytecode.OpDeref)
	c.WriteOp(bytecode.OpJmp)
	c.WriteUint16(uint16(loopStart))

	loopEnd := len(c.Code)
	c.Code[nextOperand] = byte(loopEnd >> 8)
	c.Code[nextOperand+1] = byte(loopEnd)
	c.Code[emptyOperand] = byte(loopEnd >> 8)
	c.Code[emptyOperand+1] = byte(loopEnd)

	c.WriteOp(bytecode.OpRet)

	main := buildEntry(1, "main", c, nil)
	vm, _ := newTestVM(t, main)

	result, err := vm.Run(1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := result.(*value.Array)
	if !ok {
		t.Fatalf("expected *value.Array, got %#v", result)
	}
	if len(got.Elements) != 2 {
		t.Fatalf("expected 2 collected elements, got %d: %#v", len(got.Elements), got.Elements)
	}
	for i, want := range []int64{2, 3} {
		gi, ok := got.Elements[i].(value.Int)
		if !ok || gi.AsInt64() != want {
			t.Fatalf("element %d: expected Int(%d), got %#v", i, want, got.Elements[i])
		}
	}
}

// TestSyscallPrnt exercises OpSyscall's PRNT path end to end through
// vm.syscall and internal/syscalls.Dispatch.
func TestSyscallPrnt(t *testing.T) {
	c := bytecode.NewChunk()
	msg := c.AddConstant(value.Str("hi"))
	name := c.AddConstant(value.Str("PRNT"))

	c.WriteOp(bytecode.OpPush)
	c.WriteUint16(uint16(msg))
	c.WriteOp(bytecode.OpSyscall)
	c.WriteUint16(uint16(name))
	c.WriteOp(bytecode.OpRet)

	main := buildEntry(1, "main", c, nil)
	vm, out := newTestVM(t, main)

	result, err := vm.Run(1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, ok := result.(value.Str); !ok || string(s) != "hi" {
		t.Fatalf("expected Str(hi), got %#v", result)
	}
	if out.String() != "hi" {
		t.Fatalf("expected PRNT to write %q to stdout, got %q", "hi", out.String())
	}
}

func TestRecursionDepthLimit(t *testing.T) {
	c := bytecode.NewChunk()
	c.WriteOp(bytecode.OpCall)
	c.WriteUint64(1)
	c.WriteByte(0)
	c.WriteOp(bytecode.OpRet)
	main := buildEntry(1, "main", c, nil)

	vm, _ := newTestVM(t, main)
	vm.maxDepth = 8

	_, err := vm.Run(1, nil)
	if err == nil {
		t.Fatal("expected a recursion-depth error, got nil")
	}
}
