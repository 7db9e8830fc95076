package vm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ilex-lang/ilex/internal/compiler"
	"github.com/ilex-lang/ilex/internal/heap"
)

// useOp implements OP_USE / OP_USE_BUILTIN: pop the module name pushed by
// the compiler, then load-or-cache-hit it and push its namespace value.
func (vm *VM) useOp(fr *frame, builtin bool) error {
	nameVal := vm.pop()
	name := vm.heap.String(nameVal.AsHandle()).Chars

	if builtin {
		lib, ok := vm.libraries[name]
		if !ok {
			return vm.runtimeError("unknown library '%s'", name)
		}
		vm.push(vm.namespaceValue(lib))
		return nil
	}

	scriptHandle, err := vm.loadModule(fr, name)
	if err != nil {
		return err
	}
	vm.push(heap.ObjValue(scriptHandle))
	return nil
}

// useVarOp implements OP_USE_VAR / OP_USE_BUILTIN_VAR: peek the namespace
// value OP_USE left on the stack and push the named export on top of it,
// leaving the namespace in place for any further imports in the same
// destructuring list.
func (vm *VM) useVarOp(fr *frame) error {
	idx := vm.readShort(fr)
	name := vm.heap.String(vm.readConstant(fr, idx).AsHandle()).Chars

	ns := vm.peek(0)
	if !ns.IsObj() {
		return vm.runtimeError("'%s' can't be found in module", name)
	}
	switch vm.heap.Kind(ns.AsHandle()) {
	case heap.KindScript:
		script := vm.heap.Script(ns.AsHandle())
		v, ok := script.Exports[name]
		if !ok {
			return vm.runtimeError("'%s' can't be found in module '%s'", name, script.Name)
		}
		vm.push(v)
	case heap.KindMap:
		v, err := vm.heap.MapGet(ns.AsHandle(), vm.internedKey(name))
		if err != nil {
			return vm.runtimeError("%v", err)
		}
		vm.push(v)
	default:
		return vm.runtimeError("'%s' can't be found in module", name)
	}
	return nil
}

// loadModule resolves name to a file relative to the currently running
// script's directory, compiling and running it at most once per absolute
// path. The ObjScript handle is cached before compilation starts so a
// cyclic `use` resolves to the (possibly still-empty) script already in
// flight rather than recursing forever.
func (vm *VM) loadModule(fr *frame, name string) (heap.Handle, error) {
	filename := name
	if !strings.HasSuffix(filename, ".ilex") {
		filename += ".ilex"
	}

	currentScript := vm.heap.Script(vm.chunkOf(fr).Script)
	path := filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(currentScript.Dir, filename)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return heap.NoHandle, vm.runtimeError("could not resolve module path '%s'", name)
	}

	if handle, ok := vm.scripts[absPath]; ok {
		return handle, nil
	}

	src, err := os.ReadFile(absPath)
	if err != nil {
		return heap.NoHandle, vm.runtimeError("could not open module '%s'", name)
	}

	scriptHandle := vm.heap.NewScript(heap.ObjScript{
		Name:    filepath.Base(absPath),
		Dir:     filepath.Dir(absPath),
		AbsPath: absPath,
	})
	vm.scripts[absPath] = scriptHandle
	vm.push(heap.ObjValue(scriptHandle)) // keep it GC-reachable while compiling/running

	fnHandle, err := compiler.Compile(vm.heap, string(src), scriptHandle, filepath.Base(absPath))
	vm.pop()
	if err != nil {
		delete(vm.scripts, absPath)
		return heap.NoHandle, &CompileError{Message: err.Error()}
	}

	closureHandle := vm.heap.NewClosure(heap.ObjClosure{Function: fnHandle})
	depth := len(vm.frames)
	vm.push(heap.ObjValue(closureHandle))
	if err := vm.call(heap.ObjValue(closureHandle), 0); err != nil {
		return heap.NoHandle, err
	}
	if _, err := vm.runUntil(depth); err != nil {
		return heap.NoHandle, err
	}

	return scriptHandle, nil
}
