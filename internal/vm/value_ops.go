package vm

import (
	"math"

	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
)

func (vm *VM) compareOp(op chunk.OpCode) error {
	b := vm.pop()
	a := vm.pop()
	switch op {
	case chunk.OpEq:
		vm.push(heap.Bool(heap.Equal(a, b)))
		return nil
	case chunk.OpNotEq:
		vm.push(heap.Bool(!heap.Equal(a, b)))
		return nil
	}
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	x, y := a.AsNumber(), b.AsNumber()
	var result bool
	switch op {
	case chunk.OpGr:
		result = x > y
	case chunk.OpGrEq:
		result = x >= y
	case chunk.OpLt:
		result = x < y
	case chunk.OpLtEq:
		result = x <= y
	}
	vm.push(heap.Bool(result))
	return nil
}

func (vm *VM) arithOp(op chunk.OpCode) error {
	b := vm.pop()
	a := vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	x, y := a.AsNumber(), b.AsNumber()
	var result float64
	switch op {
	case chunk.OpAdd:
		result = x + y
	case chunk.OpSub:
		result = x - y
	case chunk.OpMul:
		result = x * y
	case chunk.OpDiv:
		if y == 0 {
			return vm.runtimeError("division by zero")
		}
		result = x / y
	case chunk.OpPow:
		result = math.Pow(x, y)
	case chunk.OpMod:
		if y == 0 {
			return vm.runtimeError("division by zero")
		}
		result = math.Mod(x, y)
	case chunk.OpBitAnd:
		result = float64(int64(x) & int64(y))
	case chunk.OpBitOr:
		result = float64(int64(x) | int64(y))
	case chunk.OpBitXor:
		result = float64(int64(x) ^ int64(y))
	case chunk.OpBitLs:
		result = float64(int64(x) << uint64(y))
	case chunk.OpBitRs:
		result = float64(int64(x) >> uint64(y))
	}
	vm.push(heap.Number(result))
	return nil
}

// addOp implements OP_ADD's dual role from a single `+` token: number+number
// adds, anything else concatenates (stringifying either side that isn't
// already a string), matching the original interpreter's type-dispatch at
// `+` while generalizing its string-only concat path to any operand mix.
func (vm *VM) addOp() error {
	b := vm.peek(0)
	a := vm.peek(1)
	if a.IsNumber() && b.IsNumber() {
		return vm.arithOp(chunk.OpAdd)
	}
	return vm.concatOp()
}

// concatOp implements OP_CONCAT: string+string concatenation, or string +
// non-string by stringifying the other operand, matching `+`'s dual role as
// numeric add and string concatenation from one source-level `+` token.
func (vm *VM) concatOp() error {
	b := vm.pop()
	a := vm.pop()
	vm.push(heap.ObjValue(vm.heap.InternString(vm.stringify(a) + vm.stringify(b))))
	return nil
}

func (vm *VM) incDecOp(op chunk.OpCode) error {
	if !vm.peek(0).IsNumber() {
		return vm.runtimeError("operand must be a number")
	}
	delta := 1.0
	if op == chunk.OpDec {
		delta = -1.0
	}
	vm.stack[len(vm.stack)-1] = heap.Number(vm.peek(0).AsNumber() + delta)
	return nil
}
