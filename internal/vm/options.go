package vm

import (
	"io"

	"github.com/ilex-lang/ilex/internal/flushio"
)

// Option configures a VM at construction time, in the functional-options
// style: New(WithOutput(os.Stdout), WithStressGC(true), ...).
type Option interface{ apply(vm *VM) }

// Options collapses a slice of Option values into one, flattening any nested
// Options and dropping nils — the same normalization the teacher's
// VMOptions combinator performs.
func Options(opts ...Option) Option {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(*VM) {}

type options []Option

func (opts options) apply(vm *VM) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
}

type outputOption struct{ io.Writer }
type teeOption struct{ io.Writer }
type logfnOption func(mess string, args ...interface{})
type stressGCOption bool
type maxFramesOption int

// WithOutput directs println/write-family natives at w, replacing any
// previously configured output.
func WithOutput(w io.Writer) Option { return outputOption{w} }

// WithTee additionally mirrors output to w, alongside whatever WithOutput
// already configured (or the default discard sink).
func WithTee(w io.Writer) Option { return teeOption{w} }

// WithLogger stores a trace-logging callback on the VM. No VM code path
// invokes it: nothing is logged through it.
func WithLogger(logfn func(mess string, args ...interface{})) Option {
	return logfnOption(logfn)
}

// WithStressGC forces a collection before every heap allocation, per spec
// §8's GC-soundness testing mode.
func WithStressGC(on bool) Option { return stressGCOption(on) }

// WithMaxFrames overrides the call-depth ceiling before a stack-overflow
// runtime error is raised.
func WithMaxFrames(n int) Option { return maxFramesOption(n) }

func (o outputOption) apply(vm *VM) {
	if vm.out != nil {
		vm.out.Flush()
	}
	vm.out = flushio.NewWriteFlusher(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

func (o teeOption) apply(vm *VM) {
	vm.out = flushio.WriteFlushers(vm.out, flushio.NewWriteFlusher(o.Writer))
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

func (fn logfnOption) apply(vm *VM) { vm.logfn = fn }

func (on stressGCOption) apply(vm *VM) { vm.heap.StressTest = bool(on) }

func (n maxFramesOption) apply(vm *VM) { vm.maxFrames = int(n) }

// WithLibrary pre-registers a native library so `use libname;` resolves it
// without touching the filesystem (spec §5's builtin-library form).
func WithLibrary(name string, lib *Library) Option { return libraryOption{name, lib} }

type libraryOption struct {
	name string
	lib  *Library
}

func (o libraryOption) apply(vm *VM) { vm.libraries[o.name] = o.lib }
