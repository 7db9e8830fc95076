package vm

import (
	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
)

func (vm *VM) makeClass(fr *frame) {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	kind := heap.ClassKind(vm.readByte(fr))
	handle := vm.heap.NewClass(heap.ObjClass{
		Name:               name,
		Kind:               kind,
		Super:              heap.NoHandle,
		Methods:            make(map[string]heap.Value),
		AbstractMethods:    make(map[string]bool),
		PrivateMethods:     make(map[string]heap.Value),
		FieldInitializers:  make(map[string]heap.Value),
		PrivateFieldInit:   make(map[string]heap.Value),
		StaticVars:         make(map[string]heap.Value),
		StaticConsts:       make(map[string]heap.Value),
		ReadonlyStaticVars: make(map[string]bool),
	})
	vm.push(heap.ObjValue(handle))
}

// inherit pops the subclass (pushed last, so it sits on top) and wires its
// Super link, leaving the superclass on the stack as the class body's
// `super` local.
func (vm *VM) inherit() error {
	classVal := vm.pop()
	superVal := vm.peek(0)
	if !superVal.IsObj() || vm.heap.Kind(superVal.AsHandle()) != heap.KindClass {
		return vm.runtimeError("superclass must be a class")
	}
	class := vm.heap.Class(classVal.AsHandle())
	class.Super = superVal.AsHandle()
	class.HasSuper = true
	vm.heap.SetClass(classVal.AsHandle(), class)
	return nil
}

// bindMethod installs the closure popped off the stack into the class
// (peeked, not popped) table selected by the trailing member tag byte,
// mirroring class.go's memberMethod/.../memberAbstractMethod convention.
func (vm *VM) bindMethod(fr *frame) {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	tag := vm.readByte(fr)

	classVal := vm.peek(0)
	if tag == 4 { // memberAbstractMethod: no closure was compiled/pushed
		class := vm.heap.Class(classVal.AsHandle())
		class.AbstractMethods[name] = true
		vm.heap.SetClass(classVal.AsHandle(), class)
		return
	}

	closure := vm.pop()
	classHandle := vm.peek(0).AsHandle()
	class := vm.heap.Class(classHandle)

	// stamp the owning class onto the underlying function, so a running
	// private-member access can later verify it's executing inside the
	// class that declared the field it's reaching for.
	fnHandle := vm.heap.Closure(closure.AsHandle()).Function
	fn := vm.heap.Function(fnHandle)
	fn.Class = classHandle
	vm.heap.SetFunction(fnHandle, fn)

	switch tag {
	case 0: // memberMethod
		class.Methods[name] = closure
	case 1: // memberPrivateMethod
		class.PrivateMethods[name] = closure
	case 2: // memberFieldInit
		class.FieldInitializers[name] = closure
	case 3: // memberPrivateFieldInit
		class.PrivateFieldInit[name] = closure
	}
	vm.heap.SetClass(classHandle, class)
}

func (vm *VM) setClassStaticVar(fr *frame) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	flags := vm.readByte(fr)
	readonly := flags&1 != 0

	value := vm.pop()
	classVal := vm.peek(0)
	class := vm.heap.Class(classVal.AsHandle())
	if readonly {
		if class.ReadonlyStaticVars == nil {
			class.ReadonlyStaticVars = make(map[string]bool)
		}
		class.ReadonlyStaticVars[name] = true
		class.StaticConsts[name] = value
	} else {
		class.StaticVars[name] = value
	}
	vm.heap.SetClass(classVal.AsHandle(), class)
	return nil
}

// lookupMethod walks the superclass chain looking for name in either the
// public or private method table.
func (vm *VM) lookupMethod(classHandle heap.Handle, name string) (heap.Value, bool) {
	for h := classHandle; h != heap.NoHandle; {
		class := vm.heap.Class(h)
		if v, ok := class.Methods[name]; ok {
			return v, true
		}
		if v, ok := class.PrivateMethods[name]; ok {
			return v, true
		}
		if class.HasSuper {
			h = class.Super
		} else {
			break
		}
	}
	return heap.Null, false
}

func (vm *VM) getProperty(fr *frame, op chunk.OpCode) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	noPop := op == chunk.OpGetPropertyNoPop || op == chunk.OpGetPrivatePropertyNoPop
	private := op == chunk.OpGetPrivateProperty || op == chunk.OpGetPrivatePropertyNoPop

	receiver := vm.peek(0)
	v, err := vm.getPropertyValue(fr, receiver, name, private)
	if err != nil {
		return err
	}
	if !noPop {
		vm.pop()
	}
	vm.push(v)
	return nil
}

// currentClass returns the class that declared the method currently
// executing in fr, or NoHandle if fr isn't running a method/field
// initializer at all (top-level code, a plain function, a native).
func (vm *VM) currentClass(fr *frame) heap.Handle {
	fn := vm.heap.Function(vm.closure(fr.closure).Function)
	return fn.Class
}

// classOwnsInstance reports whether definingClass is instanceClass or one of
// its ancestors, so a private member inherited from a superclass method
// stays reachable from that method even when it runs against a subclass
// instance.
func (vm *VM) classOwnsInstance(definingClass, instanceClass heap.Handle) bool {
	if definingClass == heap.NoHandle {
		return false
	}
	h := instanceClass
	for {
		if h == definingClass {
			return true
		}
		class := vm.heap.Class(h)
		if !class.HasSuper {
			return false
		}
		h = class.Super
	}
}

func (vm *VM) getPropertyValue(fr *frame, receiver heap.Value, name string, private bool) (heap.Value, error) {
	if !receiver.IsObj() {
		return heap.Null, vm.runtimeError("only instances and collections have properties")
	}
	switch vm.heap.Kind(receiver.AsHandle()) {
	case heap.KindInstance:
		inst := vm.heap.Instance(receiver.AsHandle())
		if v, ok := inst.Fields[name]; ok {
			return v, nil
		}
		if v, ok := inst.PrivateField[name]; ok {
			if !private || !vm.classOwnsInstance(vm.currentClass(fr), inst.Class) {
				return heap.Null, vm.runtimeError("can't access private property '%s' on '%s' instance", name, vm.heap.Class(inst.Class).Name)
			}
			return v, nil
		}
		if m, ok := vm.lookupMethod(inst.Class, name); ok {
			return heap.ObjValue(vm.heap.NewBoundMethod(heap.ObjBoundMethod{Receiver: receiver, Method: m.AsHandle()})), nil
		}
		return heap.Null, vm.runtimeError("undefined property '%s'", name)
	case heap.KindClass:
		class := vm.heap.Class(receiver.AsHandle())
		if v, ok := class.StaticVars[name]; ok {
			return v, nil
		}
		if v, ok := class.StaticConsts[name]; ok {
			return v, nil
		}
		return heap.Null, vm.runtimeError("undefined static property '%s'", name)
	case heap.KindMap:
		// property-style map access never faults on a missing key (spec §4).
		return vm.heap.MapGet(receiver.AsHandle(), vm.internedKey(name))
	case heap.KindEnum:
		e := vm.heap.Enum(receiver.AsHandle())
		if v, ok := e.Values[name]; ok {
			return v, nil
		}
		return heap.Null, vm.runtimeError("undefined enum value '%s'", name)
	case heap.KindScript:
		script := vm.heap.Script(receiver.AsHandle())
		if v, ok := script.Exports[name]; ok {
			return v, nil
		}
		return heap.Null, vm.runtimeError("undefined property '%s'", name)
	default:
		return vm.builtinProperty(receiver, name)
	}
}

func (vm *VM) setProperty(fr *frame, private bool) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	value := vm.pop()
	receiver := vm.pop()

	if !receiver.IsObj() {
		return vm.runtimeError("only instances and maps support property assignment")
	}
	switch vm.heap.Kind(receiver.AsHandle()) {
	case heap.KindInstance:
		inst := vm.heap.Instance(receiver.AsHandle())
		if private {
			if _, ok := inst.PrivateField[name]; !ok {
				return vm.runtimeError("cannot assign undeclared private field '%s'", name)
			}
			inst.PrivateField[name] = value
		} else {
			inst.Fields[name] = value
		}
		vm.heap.SetInstance(receiver.AsHandle(), inst)
	case heap.KindMap:
		// only OP_INDEX_ASSIGN may create new map keys; SET_PROPERTY on a
		// missing key faults (spec §4).
		existing, err := vm.heap.MapGet(receiver.AsHandle(), vm.internedKey(name))
		if err != nil {
			return vm.runtimeError("%v", err)
		}
		if existing.IsNull() {
			return vm.runtimeError("cannot set undeclared map property '%s'", name)
		}
		if err := vm.heap.MapSet(receiver.AsHandle(), vm.internedKey(name), value); err != nil {
			return vm.runtimeError("%v", err)
		}
	default:
		return vm.runtimeError("value does not support property assignment")
	}
	vm.push(value)
	return nil
}

// getSuper resolves `super.method` (not called immediately) to a bound
// method value: stack holds [thisVal, superVal] (super pushed last).
func (vm *VM) getSuper(fr *frame) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	superVal := vm.pop()
	thisVal := vm.pop()
	m, ok := vm.lookupMethod(superVal.AsHandle(), name)
	if !ok {
		return vm.runtimeError("undefined property '%s'", name)
	}
	vm.push(heap.ObjValue(vm.heap.NewBoundMethod(heap.ObjBoundMethod{Receiver: thisVal, Method: m.AsHandle()})))
	return nil
}

func (vm *VM) invoke(fr *frame, isSuper, isThis bool) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	argc := int(vm.readByte(fr))

	var classHandle heap.Handle
	var receiver heap.Value

	if isSuper {
		superVal := vm.pop()
		thisVal := vm.pop()
		classHandle = superVal.AsHandle()
		receiver = thisVal
		vm.stack[len(vm.stack)-argc-1] = receiver
		m, ok := vm.lookupMethod(classHandle, name)
		if !ok {
			return vm.runtimeError("undefined property '%s'", name)
		}
		return vm.callClosure(m.AsHandle(), argc)
	}

	receiver = vm.peek(argc)
	if !receiver.IsObj() {
		return vm.runtimeError("only instances and collections have methods")
	}
	switch vm.heap.Kind(receiver.AsHandle()) {
	case heap.KindInstance:
		inst := vm.heap.Instance(receiver.AsHandle())
		if fieldVal, ok := inst.Fields[name]; ok {
			vm.stack[len(vm.stack)-argc-1] = fieldVal
			return vm.call(fieldVal, argc)
		}
		if fieldVal, ok := inst.PrivateField[name]; ok {
			vm.stack[len(vm.stack)-argc-1] = fieldVal
			return vm.call(fieldVal, argc)
		}
		m, ok := vm.lookupMethod(inst.Class, name)
		if !ok {
			return vm.runtimeError("undefined property '%s'", name)
		}
		return vm.callClosure(m.AsHandle(), argc)
	case heap.KindClass:
		class := vm.heap.Class(receiver.AsHandle())
		if v, ok := class.StaticVars[name]; ok {
			vm.stack[len(vm.stack)-argc-1] = v
			return vm.call(v, argc)
		}
		if v, ok := class.StaticConsts[name]; ok {
			vm.stack[len(vm.stack)-argc-1] = v
			return vm.call(v, argc)
		}
		return vm.runtimeError("undefined static property '%s'", name)
	default:
		args := append([]heap.Value(nil), vm.stack[len(vm.stack)-argc:]...)
		vm.stack = vm.stack[:len(vm.stack)-argc-1]
		result, err := vm.callBuiltinMethod(receiver, name, args)
		if err != nil {
			return err
		}
		vm.push(result)
		return nil
	}
}
