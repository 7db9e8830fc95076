// Package preludelib registers the handful of native bindings every Ilex
// script can call without a `use` import: println, print, len, type, clock,
// and string. Everything
// else (math, json, collections beyond the duck-typed core methods) is left
// to a real stdlib module that would plug into the same RegisterLibrary
// seam — out of scope here, per spec §1's stdlib Non-goal.
package preludelib

import (
	"fmt"
	"time"

	"github.com/ilex-lang/ilex/internal/heap"
	"github.com/ilex-lang/ilex/internal/vm"
)

// Install registers the prelude's global bindings on m. Call once per VM,
// after vm.New and before the first Run/CallValue.
func Install(m *vm.VM) {
	m.RegisterGlobalFunction("println", nativePrintln)
	m.RegisterGlobalFunction("print", nativePrint)
	m.RegisterGlobalFunction("len", nativeLen)
	m.RegisterGlobalFunction("type", nativeType)
	m.RegisterGlobalFunction("clock", nativeClock)
	m.RegisterGlobalFunction("string", nativeToString)
}

func nativePrintln(m *vm.VM, args []heap.Value) (heap.Value, error) {
	m.WriteOut(joinStringified(m, args) + "\n")
	return heap.Null, nil
}

func nativePrint(m *vm.VM, args []heap.Value) (heap.Value, error) {
	m.WriteOut(joinStringified(m, args))
	return heap.Null, nil
}

func joinStringified(m *vm.VM, args []heap.Value) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += " "
		}
		s += m.Stringify(a)
	}
	return s
}

// nativeLen implements `len(x)` for arrays, maps, sets, and strings — the
// same four kinds builtinProperty's `.length` covers, exposed as a
// free function for code that prefers it (matches type_array.c/type_map.c's
// size() naming convention, offered here under the scripting surface's
// shorter spelling).
func nativeLen(m *vm.VM, args []heap.Value) (heap.Value, error) {
	if len(args) != 1 {
		return heap.Null, fmt.Errorf("len() expects 1 argument, got %d", len(args))
	}
	v := args[0]
	if !v.IsObj() {
		return heap.Null, fmt.Errorf("len() argument has no length")
	}
	h := m.Heap()
	handle := v.AsHandle()
	switch h.Kind(handle) {
	case heap.KindArray:
		return heap.Number(float64(len(h.Array(handle).Items))), nil
	case heap.KindString:
		return heap.Number(float64(len(h.String(handle).Chars))), nil
	case heap.KindMap:
		return heap.Number(float64(h.MapLen(handle))), nil
	case heap.KindSet:
		return heap.Number(float64(h.SetLen(handle))), nil
	default:
		return heap.Null, fmt.Errorf("len() argument has no length")
	}
}

// nativeType implements `type(x)`, returning a display name for x's runtime
// kind: "number", "boolean", "null", "empty", or the heap Kind's name for
// object values.
func nativeType(m *vm.VM, args []heap.Value) (heap.Value, error) {
	if len(args) != 1 {
		return heap.Null, fmt.Errorf("type() expects 1 argument, got %d", len(args))
	}
	v := args[0]
	name := "null"
	switch {
	case v.IsNumber():
		name = "number"
	case v.IsBool():
		name = "boolean"
	case v.IsEmpty():
		name = "empty"
	case v.IsNull():
		name = "null"
	case v.IsObj():
		name = m.Heap().Kind(v.AsHandle()).String()
	}
	return heap.ObjValue(m.Heap().InternString(name)), nil
}

// nativeClock implements `clock()`: seconds since the Unix epoch as a
// floating-point number, matching the original's `clock() / CLOCKS_PER_SEC`
// wall-clock intent without depending on process CPU-time semantics.
func nativeClock(m *vm.VM, args []heap.Value) (heap.Value, error) {
	return heap.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

// nativeToString implements `string(x)`, the explicit conversion form used
// where implicit concatenation isn't available (e.g. building up a value to
// pass to a native library expecting text).
func nativeToString(m *vm.VM, args []heap.Value) (heap.Value, error) {
	if len(args) != 1 {
		return heap.Null, fmt.Errorf("string() expects 1 argument, got %d", len(args))
	}
	return heap.ObjValue(m.Heap().InternString(m.Stringify(args[0]))), nil
}
