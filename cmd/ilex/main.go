// Command ilex compiles and runs a single Ilex script file.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilex-lang/ilex/internal/compiler"
	"github.com/ilex-lang/ilex/internal/heap"
	"github.com/ilex-lang/ilex/internal/logio"
	"github.com/ilex-lang/ilex/internal/panicerr"
	"github.com/ilex-lang/ilex/internal/preludelib"
	"github.com/ilex-lang/ilex/internal/vm"
)

func main() {
	var (
		trace    bool
		stressGC bool
	)
	flag.BoolVar(&trace, "trace", false, "pass a TRACE logger to the VM (the VM logs nothing through it)")
	flag.BoolVar(&stressGC, "stress-gc", false, "collect garbage before every allocation")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)

	if flag.NArg() != 1 {
		log.Errorf("usage: ilex [flags] <script.ilex>")
		os.Exit(vm.ExitUsageError)
	}

	os.Exit(run(flag.Arg(0), trace, stressGC, &log))
}

func run(path string, trace, stressGC bool, log *logio.Logger) int {
	src, err := os.ReadFile(path)
	if err != nil {
		log.Errorf("%v", err)
		return vm.ExitIOError
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Errorf("%v", err)
		return vm.ExitIOError
	}

	opts := []vm.Option{vm.WithOutput(os.Stdout)}
	if trace {
		opts = append(opts, vm.WithLogger(log.Leveledf("TRACE")))
	}
	if stressGC {
		opts = append(opts, vm.WithStressGC(true))
	}

	m := vm.New(opts...)
	defer m.Close()
	preludelib.Install(m)

	scriptHandle := m.Heap().NewScript(heap.ObjScript{
		Name:    filepath.Base(absPath),
		Dir:     filepath.Dir(absPath),
		AbsPath: absPath,
	})

	fnHandle, err := compiler.Compile(m.Heap(), string(src), scriptHandle, filepath.Base(absPath))
	if err != nil {
		log.Errorf("%v", err)
		return vm.ExitCompileError
	}

	runErr := panicerr.Recover("ilex", func() error {
		_, err := m.Run(fnHandle)
		return err
	})
	if runErr == nil {
		return vm.ExitSuccess
	}
	if panicerr.IsPanic(runErr) {
		fmt.Fprintf(os.Stderr, "internal error: %+v\n", runErr)
		return 1
	}
	log.Errorf("%v", runErr)
	return vm.ExitCodeFor(runErr)
}
