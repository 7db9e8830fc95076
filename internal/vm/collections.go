package vm

import "github.com/ilex-lang/ilex/internal/heap"

func (vm *VM) newArray(fr *frame) {
	count := int(vm.readShort(fr))
	items := append([]heap.Value(nil), vm.stack[len(vm.stack)-count:]...)
	vm.stack = vm.stack[:len(vm.stack)-count]
	vm.push(heap.ObjValue(vm.heap.NewArray(heap.ObjArray{Items: items})))
}

func (vm *VM) newMap(fr *frame) error {
	count := int(vm.readShort(fr))
	pairs := append([]heap.Value(nil), vm.stack[len(vm.stack)-2*count:]...)
	vm.stack = vm.stack[:len(vm.stack)-2*count]
	handle := vm.heap.NewMap()
	for i := 0; i < count; i++ {
		k, v := pairs[2*i], pairs[2*i+1]
		if err := vm.heap.MapSet(handle, k, v); err != nil {
			return vm.runtimeError("%v", err)
		}
	}
	vm.push(heap.ObjValue(handle))
	return nil
}

func (vm *VM) newSet(fr *frame) error {
	count := int(vm.readShort(fr))
	items := append([]heap.Value(nil), vm.stack[len(vm.stack)-count:]...)
	vm.stack = vm.stack[:len(vm.stack)-count]
	handle := vm.heap.NewSet()
	for _, v := range items {
		if err := vm.heap.SetAdd(handle, v); err != nil {
			return vm.runtimeError("%v", err)
		}
	}
	vm.push(heap.ObjValue(handle))
	return nil
}

// resolveIndex converts a possibly-negative signed index into an absolute
// offset into a collection of length n, or returns an error for an
// out-of-range index (spec §4: "negatives count from the end, out-of-range
// is a fault").
func resolveIndex(idx float64, n int) (int, error) {
	i := int(idx)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, &indexError{i}
	}
	return i, nil
}

type indexError struct{ i int }

func (e *indexError) Error() string { return "index out of range" }

func (vm *VM) indexOp() error {
	idx := vm.pop()
	target := vm.pop()
	v, err := vm.indexGet(target, idx)
	if err != nil {
		return vm.runtimeError("%v", err)
	}
	vm.push(v)
	return nil
}

func (vm *VM) indexGet(target, idx heap.Value) (heap.Value, error) {
	if !target.IsObj() {
		return heap.Null, vm.runtimeError("cannot index a non-collection value")
	}
	switch vm.heap.Kind(target.AsHandle()) {
	case heap.KindArray:
		if !idx.IsNumber() {
			return heap.Null, vm.runtimeError("array index must be a number")
		}
		arr := vm.heap.Array(target.AsHandle())
		i, err := resolveIndex(idx.AsNumber(), len(arr.Items))
		if err != nil {
			return heap.Null, err
		}
		return arr.Items[i], nil
	case heap.KindString:
		if !idx.IsNumber() {
			return heap.Null, vm.runtimeError("string index must be a number")
		}
		s := vm.heap.String(target.AsHandle()).Chars
		i, err := resolveIndex(idx.AsNumber(), len(s))
		if err != nil {
			return heap.Null, err
		}
		return heap.ObjValue(vm.heap.InternString(string(s[i]))), nil
	case heap.KindMap:
		v, err := vm.heap.MapGet(target.AsHandle(), idx)
		if err != nil {
			return heap.Null, err
		}
		return v, nil
	default:
		return heap.Null, vm.runtimeError("value is not indexable")
	}
}

func (vm *VM) indexAssignOp() error {
	value := vm.pop()
	idx := vm.pop()
	target := vm.pop()
	if !target.IsObj() {
		return vm.runtimeError("cannot index-assign a non-collection value")
	}
	switch vm.heap.Kind(target.AsHandle()) {
	case heap.KindArray:
		if !idx.IsNumber() {
			return vm.runtimeError("array index must be a number")
		}
		arr := vm.heap.Array(target.AsHandle())
		i, err := resolveIndex(idx.AsNumber(), len(arr.Items))
		if err != nil {
			return vm.runtimeError("%v", err)
		}
		arr.Items[i] = value
		vm.heap.SetArray(target.AsHandle(), arr)
	case heap.KindMap:
		// only OP_INDEX_ASSIGN may create new map keys (spec §4).
		if err := vm.heap.MapSet(target.AsHandle(), idx, value); err != nil {
			return vm.runtimeError("%v", err)
		}
	case heap.KindString:
		if !idx.IsNumber() || !value.IsObj() || vm.heap.Kind(value.AsHandle()) != heap.KindString {
			return vm.runtimeError("string index assignment requires a single-character string")
		}
		s := vm.heap.String(target.AsHandle())
		ch := vm.heap.String(value.AsHandle()).Chars
		if len(ch) != 1 {
			return vm.runtimeError("string index assignment requires a single-character string")
		}
		i, err := resolveIndex(idx.AsNumber(), len(s.Chars))
		if err != nil {
			return vm.runtimeError("%v", err)
		}
		b := []byte(s.Chars)
		b[i] = ch[0]
		s.Chars = string(b)
		// a mutated string can no longer share its old interned slot; this
		// writes through the handle directly rather than re-interning, per
		// the documented "implementers should either make strings immutable
		// or deintern on mutation" tradeoff (spec §9 takes the former route
		// for reads; in-place OP_INDEX_ASSIGN here takes the latter).
		vm.heap.SetString(target.AsHandle(), s)
	default:
		return vm.runtimeError("value does not support index assignment")
	}
	vm.push(value)
	return nil
}

// indexPushOp appends to an array or adds to a set; any other target,
// maps included, is a runtime error.
func (vm *VM) indexPushOp() error {
	value := vm.pop()
	target := vm.peek(0)
	if !target.IsObj() {
		return vm.runtimeError("cannot push onto a non-collection value")
	}
	switch vm.heap.Kind(target.AsHandle()) {
	case heap.KindArray:
		arr := vm.heap.Array(target.AsHandle())
		arr.Items = append(arr.Items, value)
		vm.heap.SetArray(target.AsHandle(), arr)
	case heap.KindSet:
		if err := vm.heap.SetAdd(target.AsHandle(), value); err != nil {
			return vm.runtimeError("%v", err)
		}
	default:
		return vm.runtimeError("value does not support push")
	}
	return nil
}

func (vm *VM) sliceOp() error {
	end := vm.pop()
	start := vm.pop()
	target := vm.pop()
	if !target.IsObj() {
		return vm.runtimeError("cannot slice a non-collection value")
	}
	switch vm.heap.Kind(target.AsHandle()) {
	case heap.KindArray:
		arr := vm.heap.Array(target.AsHandle())
		lo, hi, err := resolveSliceBounds(start, end, len(arr.Items))
		if err != nil {
			return vm.runtimeError("%v", err)
		}
		items := append([]heap.Value(nil), arr.Items[lo:hi]...)
		vm.push(heap.ObjValue(vm.heap.NewArray(heap.ObjArray{Items: items})))
	case heap.KindString:
		s := vm.heap.String(target.AsHandle()).Chars
		lo, hi, err := resolveSliceBounds(start, end, len(s))
		if err != nil {
			return vm.runtimeError("%v", err)
		}
		vm.push(heap.ObjValue(vm.heap.InternString(s[lo:hi])))
	default:
		return vm.runtimeError("value is not sliceable")
	}
	return nil
}

// resolveSliceBounds resolves the (possibly-open) start/end operands of
// OP_SLICE into a clamped [lo, hi) range. "Open" is signalled by null,
// matching what `index()` emits for an omitted bound.
func resolveSliceBounds(start, end heap.Value, n int) (int, int, error) {
	lo := 0
	if !start.IsNull() {
		if !start.IsNumber() {
			return 0, 0, &indexError{0}
		}
		lo = int(start.AsNumber())
		if lo < 0 {
			lo += n
		}
	}
	hi := n
	if !end.IsNull() {
		if !end.IsNumber() {
			return 0, 0, &indexError{0}
		}
		hi = int(end.AsNumber())
		if hi < 0 {
			hi += n
		}
	}
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi, nil
}
