package vm

import "github.com/ilex-lang/ilex/internal/heap"

// NativeFunc is a Go-implemented Ilex function: it receives its already
// NaN-boxed arguments and returns a Value or an error. A non-nil error is
// raised by the VM as a runtime error carrying the error's message; the
// returned Value is then ignored.
type NativeFunc func(vm *VM, args []heap.Value) (heap.Value, error)

// Library is a named bundle of native bindings, resolved by the identifier
// form `use libname;` (a quoted path always loads a script file instead).
type Library struct {
	name      string
	functions map[string]NativeFunc
	values    map[string]heap.Value
}

// NewLibrary creates an empty native library ready for registration.
func NewLibrary(name string) *Library {
	return &Library{name: name, functions: make(map[string]NativeFunc), values: make(map[string]heap.Value)}
}

// RegisterFunction adds a callable binding to the library's namespace.
func (l *Library) RegisterFunction(name string, fn NativeFunc) {
	l.functions[name] = fn
}

// RegisterValue adds a plain-value binding to the library's namespace.
func (l *Library) RegisterValue(name string, v heap.Value) {
	l.values[name] = v
}

func (vm *VM) wrapNative(name string, fn NativeFunc) heap.Value {
	handle := vm.heap.NewFunction(heap.ObjFunction{
		Kind:  heap.FuncNative,
		Name:  name,
		Class: heap.NoHandle,
		Native: func(args []heap.Value) (heap.Value, error) {
			return fn(vm, args)
		},
	})
	closureHandle := vm.heap.NewClosure(heap.ObjClosure{Function: handle})
	return heap.ObjValue(closureHandle)
}

// namespaceValue materializes a Library as a map Value: `use` always hands
// scripts a namespace object, whether backed by a file or a builtin.
func (vm *VM) namespaceValue(lib *Library) heap.Value {
	mapHandle := vm.heap.NewMap()
	for name, fn := range lib.functions {
		_ = vm.heap.MapSet(mapHandle, vm.internedKey(name), vm.wrapNative(name, fn))
	}
	for name, v := range lib.values {
		_ = vm.heap.MapSet(mapHandle, vm.internedKey(name), v)
	}
	return heap.ObjValue(mapHandle)
}

func (vm *VM) internedKey(s string) heap.Value {
	return heap.ObjValue(vm.heap.InternString(s))
}

// RegisterGlobalFunction installs a native function as a VM-wide global
// binding, callable from any script without a `use` import.
func (vm *VM) RegisterGlobalFunction(name string, fn NativeFunc) {
	vm.globals.Set(name, vm.wrapNative(name, fn), false)
}

// RegisterGlobalValue installs a plain value as a VM-wide global binding.
func (vm *VM) RegisterGlobalValue(name string, v heap.Value) {
	vm.globals.Set(name, v, false)
}

// RegisterLibrary makes lib resolvable as `use name;` without touching the
// filesystem.
func (vm *VM) RegisterLibrary(name string, lib *Library) {
	vm.libraries[name] = lib
}
