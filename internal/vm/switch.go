package vm

import "github.com/ilex-lang/ilex/internal/heap"

// cmpJmp implements OP_CMP_JMP / OP_CMP_JMP_FALL. A case value was already
// pushed by its expression bytecode; this pops it and compares it against
// the switch value sitting beneath it on the stack, leaving the switch
// value in place on a mismatch (for the next case's test) and popping it on
// a match.
//
// A FALL test additionally consults vm.fallThrough: when the previous case
// matched and its body fell straight through (no jump) into this test, the
// switch value was already popped by that match, so this test skips its own
// comparison entirely and just discards the unused case value. A FALL test
// reached instead via the previous case's mismatch jump finds fallThrough
// already cleared and falls back to a normal comparison.
func (vm *VM) cmpJmp(fr *frame, isFall bool) error {
	offset := int(vm.readShort(fr))
	caseVal := vm.pop()

	if isFall && vm.fallThrough {
		return nil
	}

	switchVal := vm.peek(0)
	if heap.Equal(switchVal, caseVal) {
		vm.pop()
		vm.fallThrough = true
	} else {
		fr.ip += offset
		vm.fallThrough = false
	}
	return nil
}

// multiCase implements OP_MULTI_CASE for `case a, b, c:` forms: every listed
// value was pushed by its own expression, deepest first; this matches the
// switch value against any of them. A multi-value case is never compiled as
// a FALL test (switch.go always emits plain OP_MULTI_CASE for it), so a
// `fallthrough;` landing here always forces a real comparison rather than an
// automatic match.
func (vm *VM) multiCase(fr *frame) error {
	count := int(vm.readByte(fr))
	offset := int(vm.readShort(fr))

	vals := make([]heap.Value, count)
	for i := count - 1; i >= 0; i-- {
		vals[i] = vm.pop()
	}

	switchVal := vm.peek(0)
	matched := false
	for _, v := range vals {
		if heap.Equal(switchVal, v) {
			matched = true
			break
		}
	}

	if matched {
		vm.pop()
		vm.fallThrough = true
	} else {
		fr.ip += offset
		vm.fallThrough = false
	}
	return nil
}
