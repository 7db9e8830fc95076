package vm

import (
	"strings"

	"github.com/ilex-lang/ilex/internal/heap"
)

// builtinProperty handles the handful of read-only pseudo-properties every
// collection/string exposes via dot syntax (`.length`), independent of the
// per-kind method tables in callBuiltinMethod.
func (vm *VM) builtinProperty(receiver heap.Value, name string) (heap.Value, error) {
	if name != "length" {
		return heap.Null, vm.runtimeError("undefined property '%s'", name)
	}
	switch vm.heap.Kind(receiver.AsHandle()) {
	case heap.KindArray:
		return heap.Number(float64(len(vm.heap.Array(receiver.AsHandle()).Items))), nil
	case heap.KindString:
		return heap.Number(float64(len(vm.heap.String(receiver.AsHandle()).Chars))), nil
	case heap.KindMap:
		return heap.Number(float64(vm.heap.MapLen(receiver.AsHandle()))), nil
	case heap.KindSet:
		return heap.Number(float64(vm.heap.SetLen(receiver.AsHandle()))), nil
	default:
		return heap.Null, vm.runtimeError("undefined property '%s'", name)
	}
}

// callBuiltinMethod dispatches the duck-typed method surface of arrays,
// maps, sets, and strings: the built-in standard library a script can call
// without any `use` import, per spec §5.
func (vm *VM) callBuiltinMethod(receiver heap.Value, name string, args []heap.Value) (heap.Value, error) {
	if !receiver.IsObj() {
		return heap.Null, vm.runtimeError("value has no method '%s'", name)
	}
	handle := receiver.AsHandle()
	switch vm.heap.Kind(handle) {
	case heap.KindArray:
		return vm.arrayMethod(handle, name, args)
	case heap.KindMap:
		return vm.mapMethod(handle, name, args)
	case heap.KindSet:
		return vm.setMethod(handle, name, args)
	case heap.KindString:
		return vm.stringMethod(handle, name, args)
	case heap.KindEnum:
		return vm.enumMethod(handle, name, args)
	default:
		return heap.Null, vm.runtimeError("value has no method '%s'", name)
	}
}

func (vm *VM) arrayMethod(handle heap.Handle, name string, args []heap.Value) (heap.Value, error) {
	arr := vm.heap.Array(handle)
	switch name {
	case "length":
		return heap.Number(float64(len(arr.Items))), nil
	case "push":
		arr.Items = append(arr.Items, args...)
		vm.heap.SetArray(handle, arr)
		return heap.ObjValue(handle), nil
	case "pop":
		if len(arr.Items) == 0 {
			return heap.Null, vm.runtimeError("pop on empty array")
		}
		last := arr.Items[len(arr.Items)-1]
		arr.Items = arr.Items[:len(arr.Items)-1]
		vm.heap.SetArray(handle, arr)
		return last, nil
	case "contains":
		for _, it := range arr.Items {
			if heap.Equal(it, arg0(args)) {
				return heap.True, nil
			}
		}
		return heap.False, nil
	case "indexOf":
		for i, it := range arr.Items {
			if heap.Equal(it, arg0(args)) {
				return heap.Number(float64(i)), nil
			}
		}
		return heap.Number(-1), nil
	case "clear":
		arr.Items = nil
		vm.heap.SetArray(handle, arr)
		return heap.ObjValue(handle), nil
	default:
		return heap.Null, vm.runtimeError("array has no method '%s'", name)
	}
}

func (vm *VM) mapMethod(handle heap.Handle, name string, args []heap.Value) (heap.Value, error) {
	switch name {
	case "length", "size":
		return heap.Number(float64(vm.heap.MapLen(handle))), nil
	case "contains":
		has, err := mapHasKey(vm, handle, arg0(args))
		if err != nil {
			return heap.Null, vm.runtimeError("%v", err)
		}
		return heap.Bool(has), nil
	case "remove":
		ok, err := vm.heap.MapDelete(handle, arg0(args))
		if err != nil {
			return heap.Null, vm.runtimeError("%v", err)
		}
		return heap.Bool(ok), nil
	case "keys":
		var items []heap.Value
		vm.heap.MapEach(handle, func(k, _ heap.Value) { items = append(items, k) })
		return heap.ObjValue(vm.heap.NewArray(heap.ObjArray{Items: items})), nil
	case "values":
		var items []heap.Value
		vm.heap.MapEach(handle, func(_, v heap.Value) { items = append(items, v) })
		return heap.ObjValue(vm.heap.NewArray(heap.ObjArray{Items: items})), nil
	case "set":
		if err := vm.heap.MapSet(handle, arg0(args), arg1(args)); err != nil {
			return heap.Null, vm.runtimeError("%v", err)
		}
		return heap.ObjValue(handle), nil
	default:
		return heap.Null, vm.runtimeError("map has no method '%s'", name)
	}
}

// mapHasKey distinguishes "key absent" from "key present with value null",
// since MapGet alone collapses both to Null (spec's "missing key returns
// null" rule for GET_PROPERTY/INDEX).
func mapHasKey(vm *VM, handle heap.Handle, key heap.Value) (bool, error) {
	found := false
	vm.heap.MapEach(handle, func(k, _ heap.Value) {
		if heap.Equal(k, key) {
			found = true
		}
	})
	return found, nil
}

func (vm *VM) setMethod(handle heap.Handle, name string, args []heap.Value) (heap.Value, error) {
	switch name {
	case "length":
		return heap.Number(float64(vm.heap.SetLen(handle))), nil
	case "add":
		if err := vm.heap.SetAdd(handle, arg0(args)); err != nil {
			return heap.Null, vm.runtimeError("%v", err)
		}
		return heap.ObjValue(handle), nil
	case "contains":
		ok, err := vm.heap.SetContains(handle, arg0(args))
		if err != nil {
			return heap.Null, vm.runtimeError("%v", err)
		}
		return heap.Bool(ok), nil
	case "remove":
		ok, err := vm.heap.SetDelete(handle, arg0(args))
		if err != nil {
			return heap.Null, vm.runtimeError("%v", err)
		}
		return heap.Bool(ok), nil
	default:
		return heap.Null, vm.runtimeError("set has no method '%s'", name)
	}
}

func (vm *VM) stringMethod(handle heap.Handle, name string, args []heap.Value) (heap.Value, error) {
	s := vm.heap.String(handle).Chars
	switch name {
	case "length":
		return heap.Number(float64(len(s))), nil
	case "upper":
		return heap.ObjValue(vm.heap.InternString(strings.ToUpper(s))), nil
	case "lower":
		return heap.ObjValue(vm.heap.InternString(strings.ToLower(s))), nil
	case "contains":
		sub := vm.heap.String(arg0(args).AsHandle()).Chars
		return heap.Bool(strings.Contains(s, sub)), nil
	case "split":
		sep := vm.heap.String(arg0(args).AsHandle()).Chars
		var items []heap.Value
		for _, part := range strings.Split(s, sep) {
			items = append(items, heap.ObjValue(vm.heap.InternString(part)))
		}
		return heap.ObjValue(vm.heap.NewArray(heap.ObjArray{Items: items})), nil
	default:
		return heap.Null, vm.runtimeError("string has no method '%s'", name)
	}
}

func (vm *VM) enumMethod(handle heap.Handle, name string, args []heap.Value) (heap.Value, error) {
	e := vm.heap.Enum(handle)
	switch name {
	case "names":
		var items []heap.Value
		for _, n := range e.Order {
			items = append(items, heap.ObjValue(vm.heap.InternString(n)))
		}
		return heap.ObjValue(vm.heap.NewArray(heap.ObjArray{Items: items})), nil
	default:
		return heap.Null, vm.runtimeError("enum has no method '%s'", name)
	}
}

func arg0(args []heap.Value) heap.Value {
	if len(args) == 0 {
		return heap.Null
	}
	return args[0]
}

func arg1(args []heap.Value) heap.Value {
	if len(args) < 2 {
		return heap.Null
	}
	return args[1]
}
