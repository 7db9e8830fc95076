package vm

import "github.com/ilex-lang/ilex/internal/heap"

// makeEnum implements OP_ENUM: allocate a fresh, empty enum object and push
// it, ready for a run of OP_ENUM_SET_VALUE calls to populate.
func (vm *VM) makeEnum(fr *frame) {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars
	handle := vm.heap.NewEnum(heap.ObjEnum{Name: name, Values: make(map[string]heap.Value)})
	vm.push(heap.ObjValue(handle))
}

// enumSetValue implements OP_ENUM_SET_VALUE: the numeric value sits on top
// of the enum object it belongs to (peeked, not popped); only the value is
// consumed, leaving the enum in place for the next member or the trailing
// OP_POP that discards the compiler's extra reference to it.
func (vm *VM) enumSetValue(fr *frame) {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars

	value := vm.peek(0)
	enumVal := vm.peek(1)
	e := vm.heap.Enum(enumVal.AsHandle())
	e.Values[name] = value
	e.Order = append(e.Order, name)
	vm.heap.SetEnum(enumVal.AsHandle(), e)
	vm.pop()
}
