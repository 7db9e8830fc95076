// Package vm implements Ilex's stack-based bytecode interpreter: the call
// frame stack, the operand stack, upvalue closing, the GC root set, and the
// opcode dispatch loop itself, per spec §4.7.
package vm

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/ilex-lang/ilex/internal/flushio"
	"github.com/ilex-lang/ilex/internal/heap"
)

const (
	maxFrames   = 1024
	maxStack    = maxFrames * 256
	maxWithFile = 64
)

// frame is one call's activation record: the closure being run, the
// instruction pointer into its chunk, and the base of its stack window.
type frame struct {
	closure     heap.Handle // ObjClosure
	ip          int
	base        int // first stack slot belonging to this frame
	openFiles   []int
	invokeSuper bool
}

// VM is the interpreter: operand stack, call frames, globals, the object
// heap, and everything a running script can observe or mutate.
type VM struct {
	stack  []heap.Value
	frames []frame

	globals heap.StringTable
	heap    *heap.Heap

	openUpvalues heap.Handle // head of the descending-address open list, NoHandle if none

	scripts map[string]heap.Handle // absolute path -> cached ObjScript
	current heap.Handle            // ObjScript currently executing

	libraries map[string]*Library

	fallThrough bool
	maxFrames   int

	out     flushio.WriteFlusher
	closers []io.Closer
	logfn   func(mess string, args ...interface{})

	// wellKnown holds interned strings the interpreter itself depends on
	// (method names duck-dispatch checks, etc.) so GC never has to re-intern
	// them mid-collection.
	wellKnown map[string]heap.Handle
}

// New creates a VM ready to Run compiled scripts, applying opts in
// order (functional options, in the style of the teacher's VMOptions).
func New(opts ...Option) *VM {
	vm := &VM{
		heap:      heap.New(),
		scripts:   make(map[string]heap.Handle),
		libraries: make(map[string]*Library),
		out:       flushio.NewWriteFlusher(ioutil.Discard),
		maxFrames: maxFrames,
		current:   heap.NoHandle,
	}
	vm.heap.SetRoots(vm)
	vm.internWellKnown()
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
	return vm
}

func (vm *VM) internWellKnown() {
	vm.wellKnown = make(map[string]heap.Handle)
	for _, s := range []string{"this", "super", "init", "length", "push", "pop", "keys", "values", "contains"} {
		vm.wellKnown[s] = vm.heap.InternString(s)
	}
}

// Close flushes pending output and closes every registered closer.
func (vm *VM) Close() error {
	var firstErr error
	if vm.out != nil {
		if err := vm.out.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, c := range vm.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stringify renders v for display, the same format `println` and string
// concatenation use. Exported for native-extension packages (e.g. a prelude
// library) that need to format values without reaching into VM internals.
func (vm *VM) Stringify(v heap.Value) string { return vm.stringify(v) }

// WriteOut writes s to the VM's configured output sink (see WithOutput) and
// flushes immediately, so output interleaves correctly with any blocking
// native call that follows (e.g. a subsequent read from stdin).
func (vm *VM) WriteOut(s string) {
	_, _ = vm.out.Write([]byte(s))
	_ = vm.out.Flush()
}

// Heap exposes the VM's object heap to native-extension packages that need
// to allocate or inspect values (arrays, strings, maps) outside package vm.
func (vm *VM) Heap() *heap.Heap { return vm.heap }

func (vm *VM) push(v heap.Value) {
	if len(vm.stack) >= maxStack {
		panic(vm.runtimeError("stack overflow"))
	}
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() heap.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) heap.Value { return vm.stack[len(vm.stack)-1-distance] }

func (vm *VM) frame() *frame { return &vm.frames[len(vm.frames)-1] }

func (vm *VM) closure(handle heap.Handle) heap.ObjClosure { return vm.heap.Closure(handle) }

func (vm *VM) function(closureHandle heap.Handle) heap.ObjFunction {
	return vm.heap.Function(vm.closure(closureHandle).Function)
}

// chunkOf returns the bytecode of the function running in frame fr.
func (vm *VM) chunkOf(fr *frame) heap.ObjFunction { return vm.function(fr.closure) }

func (vm *VM) readByte(fr *frame) byte {
	fn := vm.chunkOf(fr)
	b := fn.Code[fr.ip]
	fr.ip++
	return b
}

func (vm *VM) readShort(fr *frame) uint16 {
	fn := vm.chunkOf(fr)
	v := uint16(fn.Code[fr.ip])<<8 | uint16(fn.Code[fr.ip+1])
	fr.ip += 2
	return v
}

func (vm *VM) readConstant(fr *frame, idx uint16) heap.Value {
	return vm.chunkOf(fr).Constants[idx]
}

func (vm *VM) currentLine(fr *frame) int {
	fn := vm.chunkOf(fr)
	if fr.ip-1 < 0 || fr.ip-1 >= len(fn.Lines) {
		return 0
	}
	return int(fn.Lines[fr.ip-1])
}

// MarkRoots implements heap.Roots: every Value reachable from the running
// program without going through another already-marked object.
func (vm *VM) MarkRoots(h *heap.Heap) {
	for _, v := range vm.stack {
		h.MarkValue(v)
	}
	for _, fr := range vm.frames {
		h.Mark(fr.closure)
	}
	for up := vm.openUpvalues; up != heap.NoHandle; {
		h.Mark(up)
		next := h.Upvalue(up).NextOpen
		up = next
	}
	vm.globals.Each(func(_ string, v heap.Value) { h.MarkValue(v) })
	for _, handle := range vm.scripts {
		h.Mark(handle)
	}
	for _, handle := range vm.wellKnown {
		h.Mark(handle)
	}
	if vm.current != heap.NoHandle {
		h.Mark(vm.current)
	}
	for _, lib := range vm.libraries {
		for _, v := range lib.values {
			h.MarkValue(v)
		}
	}
}

// runtimeError formats a VM-level error the way a backtrace-bearing failure
// is reported: [line N] message, plus one frame per active call.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var trace string
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		fn := vm.chunkOf(fr)
		name := fn.Name
		if name == "" {
			name = "<script>"
		}
		trace += fmt.Sprintf("\n  [line %d] in %s", vm.currentLine(fr), name)
	}
	return &RuntimeError{Message: msg, Trace: trace}
}
