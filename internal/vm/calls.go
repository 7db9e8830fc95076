package vm

import "github.com/ilex-lang/ilex/internal/heap"

// call pushes a new frame for callee(args...), resolving default arguments
// and arity mismatches, or invokes a native directly without growing the
// frame stack.
func (vm *VM) call(callee heap.Value, argc int) error {
	if !callee.IsObj() {
		return vm.runtimeError("can only call functions, methods, and classes")
	}
	switch vm.heap.Kind(callee.AsHandle()) {
	case heap.KindClosure:
		return vm.callClosure(callee.AsHandle(), argc)
	case heap.KindClass:
		return vm.instantiate(callee.AsHandle(), argc)
	case heap.KindBoundMethod:
		bm := vm.heap.BoundMethod(callee.AsHandle())
		// overwrite the callee slot with the receiver: every method frame
		// expects its implicit `this` at base+0, same slot the callee sat in.
		vm.stack[len(vm.stack)-argc-1] = bm.Receiver
		return vm.callClosure(bm.Method, argc)
	default:
		return vm.runtimeError("can only call functions, methods, and classes")
	}
}

func (vm *VM) callClosure(closureHandle heap.Handle, argc int) error {
	fn := vm.function(closureHandle)
	if fn.Kind == heap.FuncNative {
		args := append([]heap.Value(nil), vm.stack[len(vm.stack)-argc:]...)
		vm.stack = vm.stack[:len(vm.stack)-argc-1]
		result, err := fn.Native(args)
		if err != nil {
			return vm.runtimeError("%v", err)
		}
		vm.push(result)
		return nil
	}

	minArity := fn.Arity - fn.ArityDefault
	if argc < minArity || argc > fn.Arity {
		return vm.runtimeError("expected %d argument(s) but got %d", fn.Arity, argc)
	}
	for argc < fn.Arity {
		vm.push(heap.Null)
		argc++
	}
	if len(vm.frames) >= vm.maxFrames {
		return vm.runtimeError("stack overflow")
	}
	vm.frames = append(vm.frames, frame{
		closure: closureHandle,
		ip:      0,
		base:    len(vm.stack) - argc - 1,
	})
	return nil
}

// defineDefaultOp implements OP_DEFINE_DEFAULT: the default value expression
// for one parameter was just evaluated and pushed. If callClosure already
// padded that slot with Null (the caller omitted the argument), the default
// takes its place; otherwise the caller's own argument wins and the
// computed default is simply discarded.
func (vm *VM) defineDefaultOp(fr *frame) {
	slot := int(vm.readByte(fr))
	value := vm.pop()
	if vm.stack[fr.base+slot].IsNull() {
		vm.stack[fr.base+slot] = value
	}
}

// instantiate constructs a new instance of class, copying field initializer
// thunks fresh (so mutable defaults are never shared between instances) and
// running `init` if present.
func (vm *VM) instantiate(classHandle heap.Handle, argc int) error {
	class := vm.heap.Class(classHandle)
	if class.Kind == heap.ClassAbstract {
		return vm.runtimeError("cannot instantiate abstract class '%s'", class.Name)
	}
	if class.Kind == heap.ClassStatic {
		return vm.runtimeError("cannot instantiate static class '%s'", class.Name)
	}

	inst := heap.ObjInstance{
		Fields:       make(map[string]heap.Value),
		PrivateField: make(map[string]heap.Value),
		ReadonlyKeys: make(map[string]bool),
	}
	instHandle := vm.heap.NewInstance(inst)
	instValue := heap.ObjValue(instHandle)
	if err := vm.runFieldInitializers(classHandle, instHandle); err != nil {
		return err
	}

	init, hasInit := class.Methods["init"]
	if !hasInit {
		// no initializer: drop the constructor arguments, push the instance.
		vm.stack = vm.stack[:len(vm.stack)-argc-1]
		vm.push(instValue)
		return nil
	}
	vm.stack[len(vm.stack)-argc-1] = instValue
	return vm.callClosure(init.AsHandle(), argc)
}

// runFieldInitializers evaluates every field thunk declared by class and its
// ancestors (superclass first) and stores the results on the fresh instance.
func (vm *VM) runFieldInitializers(classHandle heap.Handle, instHandle heap.Handle) error {
	class := vm.heap.Class(classHandle)
	inst := vm.heap.Instance(instHandle)
	inst.Class = classHandle
	vm.heap.SetInstance(instHandle, inst)

	if class.HasSuper {
		if err := vm.runFieldInitializers(class.Super, instHandle); err != nil {
			return err
		}
	}
	for name, thunk := range class.FieldInitializers {
		v, err := vm.callThunk(thunk)
		if err != nil {
			return err
		}
		inst = vm.heap.Instance(instHandle)
		inst.Fields[name] = v
		vm.heap.SetInstance(instHandle, inst)
	}
	for name, thunk := range class.PrivateFieldInit {
		v, err := vm.callThunk(thunk)
		if err != nil {
			return err
		}
		inst = vm.heap.Instance(instHandle)
		inst.PrivateField[name] = v
		vm.heap.SetInstance(instHandle, inst)
	}
	return nil
}

// callThunk runs a zero-argument closure to completion and returns its
// single result value, used for field initializers and static var/const
// initializers.
func (vm *VM) callThunk(thunk heap.Value) (heap.Value, error) {
	vm.push(thunk)
	if err := vm.call(thunk, 0); err != nil {
		return heap.Null, err
	}
	return vm.runUntil(len(vm.frames) - 1)
}

// captureUpvalue finds (or creates) the open upvalue for the stack slot at
// absolute index idx, inserting it into the descending-address open list.
func (vm *VM) captureUpvalue(idx int) heap.Handle {
	var prev heap.Handle = heap.NoHandle
	cur := vm.openUpvalues
	for cur != heap.NoHandle {
		up := vm.heap.Upvalue(cur)
		if up.StackIndex == idx {
			return cur
		}
		if up.StackIndex < idx {
			break
		}
		prev = cur
		cur = up.NextOpen
	}

	created := vm.heap.NewUpvalue(heap.ObjUpvalue{StackIndex: idx, NextOpen: cur})
	if prev == heap.NoHandle {
		vm.openUpvalues = created
	} else {
		pu := vm.heap.Upvalue(prev)
		pu.NextOpen = created
		vm.heap.SetUpvalue(prev, pu)
	}
	return created
}

// closeUpvalues closes every open upvalue pointing at slot idx or higher,
// copying the stack value inline before the slot is popped.
func (vm *VM) closeUpvalues(idx int) {
	for vm.openUpvalues != heap.NoHandle {
		up := vm.heap.Upvalue(vm.openUpvalues)
		if up.StackIndex < idx {
			break
		}
		up.Closed = true
		up.Value = vm.stack[up.StackIndex]
		next := up.NextOpen
		vm.heap.SetUpvalue(vm.openUpvalues, up)
		vm.openUpvalues = next
	}
}
