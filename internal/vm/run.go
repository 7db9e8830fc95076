package vm

import (
	"fmt"
	"math"

	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
)

// Run executes a compiled script's top-level Function to completion and
// returns its (always-null) final value, or the first fatal error.
func (vm *VM) Run(fnHandle heap.Handle) (heap.Value, error) {
	fn := vm.heap.Function(fnHandle)
	vm.current = fn.Script
	closureHandle := vm.heap.NewClosure(heap.ObjClosure{Function: fnHandle})
	vm.push(heap.ObjValue(closureHandle))
	if err := vm.callClosure(closureHandle, 0); err != nil {
		return heap.Null, err
	}
	return vm.runUntil(0)
}

// CallValue invokes callee(args...) from Go code (native extensions, field
// initializers, class construction) and drives it to completion whether it
// is a native function, a closure, or a class constructor.
func (vm *VM) CallValue(callee heap.Value, args []heap.Value) (heap.Value, error) {
	depth := len(vm.frames)
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.call(callee, len(args)); err != nil {
		return heap.Null, err
	}
	if len(vm.frames) == depth {
		// a native ran synchronously: callClosure already left its result on
		// top of the stack without growing the frame stack.
		return vm.pop(), nil
	}
	return vm.runUntil(depth)
}

// runUntil dispatches opcodes until the frame stack shrinks back to
// targetDepth (an OP_RETURN unwound everything this call pushed), then
// returns the value that return produced; the stack is left as it was
// before the callee was pushed.
func (vm *VM) runUntil(targetDepth int) (heap.Value, error) {
	for len(vm.frames) > targetDepth {
		fr := vm.frame()
		op := chunk.OpCode(vm.readByte(fr))

		switch op {
		case chunk.OpConstant:
			vm.push(vm.readConstant(fr, vm.readShort(fr)))
		case chunk.OpNull:
			vm.push(heap.Null)
		case chunk.OpTrue:
			vm.push(heap.True)
		case chunk.OpFalse:
			vm.push(heap.False)
		case chunk.OpEmpty:
			vm.push(heap.Empty)
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			vm.push(vm.stack[fr.base+int(vm.readByte(fr))])
		case chunk.OpSetLocal:
			vm.stack[fr.base+int(vm.readByte(fr))] = vm.peek(0)

		case chunk.OpGetUpvalue:
			vm.push(vm.upvalueValue(fr, int(vm.readByte(fr))))
		case chunk.OpSetUpvalue:
			vm.setUpvalueValue(fr, int(vm.readByte(fr)), vm.peek(0))

		case chunk.OpGetGlobal:
			if err := vm.getTable(&vm.globals, fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpSetGlobal:
			if err := vm.setTable(&vm.globals, fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpDefineGlobal:
			vm.defineTable(&vm.globals, fr)

		case chunk.OpGetScript:
			if err := vm.getScriptVar(fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpSetScript:
			if err := vm.setScriptVar(fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpDefineScript:
			vm.defineScriptVar(fr)

		case chunk.OpEq, chunk.OpNotEq, chunk.OpGr, chunk.OpGrEq, chunk.OpLt, chunk.OpLtEq:
			if err := vm.compareOp(op); err != nil {
				return heap.Null, err
			}
		case chunk.OpAdd:
			if err := vm.addOp(); err != nil {
				return heap.Null, err
			}
		case chunk.OpSub, chunk.OpMul, chunk.OpDiv, chunk.OpPow, chunk.OpMod,
			chunk.OpBitAnd, chunk.OpBitOr, chunk.OpBitXor, chunk.OpBitLs, chunk.OpBitRs:
			if err := vm.arithOp(op); err != nil {
				return heap.Null, err
			}
		case chunk.OpConcat:
			if err := vm.concatOp(); err != nil {
				return heap.Null, err
			}
		case chunk.OpInc, chunk.OpDec:
			if err := vm.incDecOp(op); err != nil {
				return heap.Null, err
			}
		case chunk.OpBitNot:
			if !vm.peek(0).IsNumber() {
				return heap.Null, vm.runtimeError("operand must be a number")
			}
			vm.stack[len(vm.stack)-1] = heap.Number(float64(^int64(vm.peek(0).AsNumber())))
		case chunk.OpNot:
			vm.stack[len(vm.stack)-1] = heap.Bool(vm.peek(0).Falsy())
		case chunk.OpNeg:
			if !vm.peek(0).IsNumber() {
				return heap.Null, vm.runtimeError("operand must be a number")
			}
			vm.stack[len(vm.stack)-1] = heap.Number(-vm.peek(0).AsNumber())

		case chunk.OpNullCoalesce:
			// both the `a ?? b` expression form and `??=` compound assignment
			// compile both operands eagerly and land here; only an exactly-null
			// a is replaced, never a merely falsy one (false, the empty sentinel).
			b := vm.pop()
			a := vm.pop()
			if a.IsNull() {
				vm.push(b)
			} else {
				vm.push(a)
			}
		case chunk.OpOr:
			// and/or are short-circuited entirely via jumps; this opcode is
			// never emitted and exists only to keep the enumeration exhaustive.

		case chunk.OpJump:
			fr.ip += int(vm.readShort(fr))
		case chunk.OpJumpIfFalse:
			off := vm.readShort(fr)
			if vm.peek(0).Falsy() {
				fr.ip += int(off)
			}
		case chunk.OpJumpIfTrue:
			off := vm.readShort(fr)
			if vm.peek(0).Truthy() {
				fr.ip += int(off)
			}
		case chunk.OpJumpDoWhile:
			off := vm.readShort(fr)
			if vm.pop().Truthy() {
				fr.ip -= int(off)
			}
		case chunk.OpLoop:
			fr.ip -= int(vm.readShort(fr))

		case chunk.OpCall:
			argc := int(vm.readByte(fr))
			callee := vm.peek(argc)
			if err := vm.call(callee, argc); err != nil {
				return heap.Null, err
			}

		case chunk.OpInvoke:
			if err := vm.invoke(fr, false, false); err != nil {
				return heap.Null, err
			}
		case chunk.OpInvokeThis:
			if err := vm.invoke(fr, false, true); err != nil {
				return heap.Null, err
			}
		case chunk.OpInvokeSuper:
			if err := vm.invoke(fr, true, false); err != nil {
				return heap.Null, err
			}

		case chunk.OpClosure:
			vm.makeClosure(fr)
		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeRemainingFiles(fr)
			vm.closeUpvalues(fr.base)
			vm.stack = vm.stack[:fr.base]
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == targetDepth {
				return result, nil
			}
			vm.push(result)

		case chunk.OpClass:
			vm.makeClass(fr)
		case chunk.OpInherit:
			if err := vm.inherit(); err != nil {
				return heap.Null, err
			}
		case chunk.OpCheckAbstract:
			// compile-time only marker kept in the class body's bytecode
			// stream for symmetry; abstract-ness is already enforced in
			// instantiate().
		case chunk.OpMethod:
			vm.bindMethod(fr)
		case chunk.OpSetClassStaticVar:
			if err := vm.setClassStaticVar(fr); err != nil {
				return heap.Null, err
			}

		case chunk.OpGetProperty, chunk.OpGetPropertyNoPop, chunk.OpGetPrivateProperty, chunk.OpGetPrivatePropertyNoPop:
			if err := vm.getProperty(fr, op); err != nil {
				return heap.Null, err
			}
		case chunk.OpSetProperty, chunk.OpSetPrivateProperty:
			if err := vm.setProperty(fr, op == chunk.OpSetPrivateProperty); err != nil {
				return heap.Null, err
			}
		case chunk.OpGetSuper:
			if err := vm.getSuper(fr); err != nil {
				return heap.Null, err
			}

		case chunk.OpAssert:
			if err := vm.assertOp(fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpPanic:
			return heap.Null, vm.panicOp(fr)

		case chunk.OpMultiCase:
			if err := vm.multiCase(fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpCmpJmp:
			if err := vm.cmpJmp(fr, false); err != nil {
				return heap.Null, err
			}
		case chunk.OpCmpJmpFall:
			if err := vm.cmpJmp(fr, true); err != nil {
				return heap.Null, err
			}

		case chunk.OpEnum:
			vm.makeEnum(fr)
		case chunk.OpEnumSetValue:
			vm.enumSetValue(fr)

		case chunk.OpUse:
			if err := vm.useOp(fr, false); err != nil {
				return heap.Null, err
			}
		case chunk.OpUseBuiltin:
			if err := vm.useOp(fr, true); err != nil {
				return heap.Null, err
			}
		case chunk.OpUseVar, chunk.OpUseBuiltinVar:
			if err := vm.useVarOp(fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpUseEnd:
			ns := vm.pop()
			_ = ns

		case chunk.OpNewArray:
			vm.newArray(fr)
		case chunk.OpNewMap:
			if err := vm.newMap(fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpNewSet:
			if err := vm.newSet(fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpSlice:
			if err := vm.sliceOp(); err != nil {
				return heap.Null, err
			}
		case chunk.OpIndex:
			if err := vm.indexOp(); err != nil {
				return heap.Null, err
			}
		case chunk.OpIndexAssign:
			if err := vm.indexAssignOp(); err != nil {
				return heap.Null, err
			}
		case chunk.OpIndexPush:
			if err := vm.indexPushOp(); err != nil {
				return heap.Null, err
			}

		case chunk.OpOpenFile:
			if err := vm.openFileOp(fr); err != nil {
				return heap.Null, err
			}
		case chunk.OpCloseFile:
			vm.closeFileOp(fr)

		case chunk.OpDefineDefault:
			vm.defineDefaultOp(fr)

		case chunk.OpBreak:
			// emitted only as a patched OP_JUMP in this compiler; never
			// reached at runtime as its own opcode.

		default:
			return heap.Null, vm.runtimeError("unknown opcode %v", op)
		}
	}
	if len(vm.stack) == 0 {
		return heap.Null, nil
	}
	return vm.pop(), nil
}

func (vm *VM) upvalueValue(fr *frame, idx int) heap.Value {
	upHandle := vm.closure(fr.closure).Upvalues[idx]
	up := vm.heap.Upvalue(upHandle)
	if up.Closed {
		return up.Value
	}
	return vm.stack[up.StackIndex]
}

func (vm *VM) setUpvalueValue(fr *frame, idx int, v heap.Value) {
	upHandle := vm.closure(fr.closure).Upvalues[idx]
	up := vm.heap.Upvalue(upHandle)
	if up.Closed {
		up.Value = v
		vm.heap.SetUpvalue(upHandle, up)
	} else {
		vm.stack[up.StackIndex] = v
	}
}

func (vm *VM) makeClosure(fr *frame) {
	idx := vm.readShort(fr)
	fnHandle := vm.readConstant(fr, idx).AsHandle()
	fn := vm.heap.Function(fnHandle)

	closure := heap.ObjClosure{Function: fnHandle}
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := vm.readByte(fr) != 0
		index := int(vm.readByte(fr))
		if isLocal {
			closure.Upvalues = append(closure.Upvalues, vm.captureUpvalue(fr.base+index))
		} else {
			closure.Upvalues = append(closure.Upvalues, vm.closure(fr.closure).Upvalues[index])
		}
	}
	vm.push(heap.ObjValue(vm.heap.NewClosure(closure)))
}

func (vm *VM) getTable(t *heap.StringTable, fr *frame) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	v, ok := t.Get(name)
	if !ok {
		return vm.runtimeError("undefined variable '%s'", name)
	}
	vm.push(v)
	return nil
}

func (vm *VM) setTable(t *heap.StringTable, fr *frame) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	if _, ok := t.Get(name); !ok {
		return vm.runtimeError("undefined variable '%s'", name)
	}
	if _, err := t.Set(name, vm.peek(0), false); err != nil {
		return vm.runtimeError("%v", err)
	}
	return nil
}

func (vm *VM) defineTable(t *heap.StringTable, fr *frame) {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	readonly := vm.readByte(fr) != 0
	t.Set(name, vm.pop(), readonly)
}

func (vm *VM) getScriptVar(fr *frame) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	script := vm.heap.Script(vm.chunkOf(fr).Script)
	v, ok := script.Exports[name]
	if !ok {
		// names the script never defined fall back to VM-wide globals
		// (natives such as println).
		if v, ok = vm.globals.Get(name); !ok {
			return vm.runtimeError("undefined variable '%s'", name)
		}
	}
	vm.push(v)
	return nil
}

func (vm *VM) setScriptVar(fr *frame) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	scriptHandle := vm.chunkOf(fr).Script
	script := vm.heap.Script(scriptHandle)
	if _, ok := script.Exports[name]; !ok {
		return vm.runtimeError("undefined variable '%s'", name)
	}
	if script.Readonly[name] {
		return vm.runtimeError("cannot assign to const '%s'", name)
	}
	script.Exports[name] = vm.peek(0)
	vm.heap.SetScript(scriptHandle, script)
	return nil
}

func (vm *VM) defineScriptVar(fr *frame) {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	readonly := vm.readByte(fr) != 0
	scriptHandle := vm.chunkOf(fr).Script
	script := vm.heap.Script(scriptHandle)
	if script.Exports == nil {
		script.Exports = make(map[string]heap.Value)
	}
	if script.Readonly == nil {
		script.Readonly = make(map[string]bool)
	}
	script.Exports[name] = vm.pop()
	if readonly {
		script.Readonly[name] = true
	}
	vm.heap.SetScript(scriptHandle, script)
}

func (vm *VM) assertOp(fr *frame) error {
	// the compiler always pushes a message operand, null when none was given.
	msgVal := vm.pop()
	var msg string
	if !msgVal.IsNull() {
		msg = vm.stringify(msgVal)
	}
	cond := vm.pop()
	if cond.Falsy() {
		return &AssertError{Message: msg, Trace: vm.traceString()}
	}
	return nil
}

func (vm *VM) panicOp(fr *frame) error {
	msg := vm.stringify(vm.pop())
	return &PanicError{Message: msg, Trace: vm.traceString()}
}

func (vm *VM) traceString() string {
	var s string
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		fn := vm.chunkOf(fr)
		name := fn.Name
		if name == "" {
			name = "<script>"
		}
		s += fmt.Sprintf("\n  [line %d] in %s", vm.currentLine(fr), name)
	}
	return s
}

// stringify renders v the way string concatenation and assert/panic
// messages do: strings pass through verbatim, everything else uses its
// canonical display form.
func (vm *VM) stringify(v heap.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		return fmt.Sprintf("%v", v.AsBool())
	case v.IsNumber():
		f := v.AsNumber()
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return fmt.Sprintf("%d", int64(f))
		}
		return fmt.Sprintf("%g", f)
	case v.IsObj():
		return vm.stringifyObj(v.AsHandle())
	default:
		return ""
	}
}

func (vm *VM) stringifyObj(handle heap.Handle) string {
	switch vm.heap.Kind(handle) {
	case heap.KindString:
		return vm.heap.String(handle).Chars
	case heap.KindArray:
		arr := vm.heap.Array(handle)
		s := "["
		for i, it := range arr.Items {
			if i > 0 {
				s += ", "
			}
			s += vm.stringify(it)
		}
		return s + "]"
	case heap.KindFunction:
		return "<function " + vm.heap.Function(handle).Name + ">"
	case heap.KindClosure:
		return "<function " + vm.heap.Function(vm.heap.Closure(handle).Function).Name + ">"
	case heap.KindClass:
		return "<class " + vm.heap.Class(handle).Name + ">"
	case heap.KindInstance:
		return "<" + vm.heap.Class(vm.heap.Instance(handle).Class).Name + " instance>"
	case heap.KindEnum:
		return "<enum " + vm.heap.Enum(handle).Name + ">"
	default:
		return "<" + vm.heap.Kind(handle).String() + ">"
	}
}
