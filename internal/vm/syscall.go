package vm

import (
	"fmt"

	"lavendeux/internal/bytecode"
	"lavendeux/internal/syscalls"
	"lavendeux/internal/value"
)

// syscall implements OpSyscall (spec.md §4.7): read the interned
// syscall name, pop its fixed arity of arguments, dispatch, and push
// the result. THRW surfaces as a returned error rather than a pushed
// value, same as any other runtime error.
func (vm *VM) syscall(f *frame) (value.Value, bool, error) {
	code := f.fn.Code
	name, err := vm.constStr(code, f.ip)
	if err != nil {
		return nil, false, err
	}
	f.ip += 2

	sys := bytecode.Syscall(name)
	n := syscalls.Arity(sys)
	args := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return nil, false, err
		}
		v, err = deref(v)
		if err != nil {
			return nil, false, err
		}
		args[i] = v
	}

	result, err := syscalls.Dispatch(sys, args, vm)
	if err != nil {
		return nil, false, err
	}
	vm.push(result)
	return nil, false, nil
}

// Print implements syscalls.Context: PRNT writes to the VM's configured
// stdout (spec.md §4.7, §6).
func (vm *VM) Print(s string) {
	fmt.Fprint(vm.stdout, s)
}

// ListFunctions implements syscalls.Context for LSTFN: every registered,
// non-hidden function's observable shape, in registry order (spec.md
// §8 property 1's load determinism).
func (vm *VM) ListFunctions() []syscalls.FuncInfo {
	entries := vm.reg.All()
	out := make([]syscalls.FuncInfo, 0, len(entries))
	for _, e := range entries {
		if e.Def.Hidden {
			continue
		}
		out = append(out, syscalls.FuncInfo{
			Name:      e.Def.Name,
			Category:  e.Def.Category,
			Signature: e.Def.Signature,
			Short:     e.Def.Short,
			Desc:      e.Def.Desc,
			Example:   e.Def.Example,
		})
	}
	return out
}

// Memory implements syscalls.Context for PRNTM: a snapshot of this VM's
// current call/operand stack shape plus its registered-function count.
func (vm *VM) Memory() syscalls.MemorySnapshot {
	names := make([]string, len(vm.frames))
	for i, fr := range vm.frames {
		names[i] = fr.fn.Name
	}
	return syscalls.MemorySnapshot{
		InstanceID:    vm.instanceID,
		StackDepth:    len(vm.stack),
		StackBytes:    uint64(len(vm.stack)) * approxValueSize,
		CallDepth:     len(vm.frames),
		MaxCallDepth:  vm.maxDepth,
		CallStack:     names,
		RegisteredFns: len(vm.reg.All()),
	}
}

// approxValueSize is a rough per-slot size used only to humanize PRNTM's
// diagnostic output; it is not a real memory accounting figure.
const approxValueSize = 32
