package vm

import (
	"fmt"
	"os"

	"github.com/ilex-lang/ilex/internal/heap"
)

// openFileOp implements OP_OPEN_FILE: pops [path, mode] and opens the file,
// landing the resulting ObjFile directly in the local slot the `withFile ...
// as name` binding already reserved (the slot's stack position is exactly
// where `mode` sat, so the push below lands it in place without any extra
// bookkeeping).
func (vm *VM) openFileOp(fr *frame) error {
	slot := int(vm.readByte(fr))
	mode := vm.pop()
	path := vm.pop()

	if !path.IsObj() || vm.heap.Kind(path.AsHandle()) != heap.KindString {
		return vm.runtimeError("file name must be a string")
	}
	if !mode.IsObj() || vm.heap.Kind(mode.AsHandle()) != heap.KindString {
		return vm.runtimeError("file mode must be a string")
	}

	pathStr := vm.heap.String(path.AsHandle()).Chars
	modeStr := vm.heap.String(mode.AsHandle()).Chars

	flag, err := fileModeFlag(modeStr)
	if err != nil {
		return vm.runtimeError("%v", err)
	}
	f, err := os.OpenFile(pathStr, flag, 0644)
	if err != nil {
		return vm.runtimeError("could not open file '%s': %v", pathStr, err)
	}

	handle := vm.heap.NewFile(heap.ObjFile{Path: pathStr, Mode: modeStr, Handle: f})
	vm.push(heap.ObjValue(handle)) // lands at fr.base+slot, matching the local the compiler reserved
	fr.openFiles = append(fr.openFiles, slot)
	return nil
}

func fileModeFlag(mode string) (int, error) {
	switch mode {
	case "r":
		return os.O_RDONLY, nil
	case "w":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case "a":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, nil
	case "r+":
		return os.O_RDWR, nil
	case "w+":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC, nil
	case "a+":
		return os.O_RDWR | os.O_CREATE | os.O_APPEND, nil
	default:
		return 0, fmt.Errorf("unknown file mode '%s'", mode)
	}
}

// closeFileOp implements OP_CLOSE_FILE, emitted at the bottom of a
// `withFile` block's normal exit path.
func (vm *VM) closeFileOp(fr *frame) {
	slot := int(vm.readByte(fr))
	vm.closeFileSlot(fr, slot)
}

// closeFileSlot closes the ObjFile bound to the given frame-local slot, if
// it is still open. Safe to call more than once for the same slot.
func (vm *VM) closeFileSlot(fr *frame, slot int) {
	v := vm.stack[fr.base+slot]
	if !v.IsObj() || vm.heap.Kind(v.AsHandle()) != heap.KindFile {
		return
	}
	f := vm.heap.File(v.AsHandle())
	if f.Closed {
		return
	}
	_ = f.Handle.Close()
	f.Closed = true
	vm.heap.SetFile(v.AsHandle(), f)
	for i, s := range fr.openFiles {
		if s == slot {
			fr.openFiles = append(fr.openFiles[:i], fr.openFiles[i+1:]...)
			break
		}
	}
}

// closeRemainingFiles closes every file opened in fr that is still open when
// fr returns — e.g. after a `return` from inside a `withFile` body. It runs
// only at OP_RETURN, so a file left by `break` or `continue` stays open until
// the frame returns.
func (vm *VM) closeRemainingFiles(fr *frame) {
	for _, slot := range append([]int(nil), fr.openFiles...) {
		vm.closeFileSlot(fr, slot)
	}
}
