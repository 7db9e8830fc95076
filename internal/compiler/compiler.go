// Package compiler implements Ilex's single-pass Pratt-parsing compiler: it
// walks tokens once, resolving locals/upvalues and emitting bytecode
// directly with no intermediate AST, per spec §4.2.
package compiler

import (
	"fmt"

	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
	"github.com/ilex-lang/ilex/internal/lexer"
)

// CompileError is a synchronous compile-time failure; compile errors are
// never caught by Ilex code (spec §7).
type CompileError struct {
	Line    int
	Message string
}

func (e *CompileError) Error() string { return fmt.Sprintf("[line %d] %s", e.Line, e.Message) }

type localVar struct {
	name       string
	depth      int
	isCaptured bool
	readonly   bool
}

type upvalueDesc struct {
	index   int
	isLocal bool
}

// loopContext tracks the patch points needed for break/continue inside the
// loop currently being compiled.
type loopContext struct {
	continueTarget int
	breakJumps     []int
	enclosing      *loopContext
}

// funcState is one function's compiler frame; funcState values are chained
// through `enclosing` exactly like the teacher's enclosing-compiler chain.
type funcState struct {
	enclosing *funcState

	chunk        chunk.Chunk
	kind         heap.FuncKind
	name         string
	arity        int
	arityDefault int

	locals     []localVar
	upvalues   []upvalueDesc
	scopeDepth int

	loop *loopContext

	scriptHandle heap.Handle
}

type classState struct {
	enclosing *classState
	hasSuper  bool
	kind      heap.ClassKind
}

// switchState tracks the opcode-patch bookkeeping for one switch statement.
// sawFallthrough lives here (not on Parser) so a `fallthrough;` inside a
// nested switch's case can't leak into the enclosing switch's bookkeeping.
type switchState struct {
	enclosing      *switchState
	sawFallthrough bool
}

// Parser is the full single-pass compiler: lexer plus the compiler-frame
// and class-frame chains that serve as GC roots during compilation
// (spec §4.6 "During compilation, the compiler chain itself is a root").
type Parser struct {
	lx *lexer.Lexer
	h  *heap.Heap

	current       *funcState
	currentClass  *classState
	currentSwitch *switchState

	hadError bool
	firstErr *CompileError
}

// Compile compiles source (belonging to scriptHandle) into a top-level
// Function object and returns its handle, or the first CompileError hit.
func Compile(h *heap.Heap, source string, scriptHandle heap.Handle, scriptName string) (heap.Handle, error) {
	p := &Parser{lx: lexer.New(source), h: h}
	p.pushFunc(heap.FuncScript, scriptName, scriptHandle)

	p.advance()
	for !p.check(lexer.TokenEOF) {
		p.declaration()
	}
	p.consume(lexer.TokenEOF, "expected end of expression")

	p.emitReturn()
	fnHandle := p.endFunc()
	if p.hadError {
		return heap.NoHandle, p.firstErr
	}
	return fnHandle, nil
}

// MarkRoots implements heap.Roots for the duration of compilation: every
// function under construction, reachable through the compiler chain, plus
// every constant already emitted into it, must survive a GC triggered by
// string interning or constant allocation mid-compile.
func (p *Parser) MarkRoots(h *heap.Heap) {
	for fs := p.current; fs != nil; fs = fs.enclosing {
		for _, c := range fs.chunk.Constants {
			h.MarkValue(c)
		}
	}
}

func (p *Parser) pushFunc(kind heap.FuncKind, name string, scriptHandle heap.Handle) {
	fs := &funcState{enclosing: p.current, kind: kind, name: name, scriptHandle: scriptHandle}
	// slot 0 is the implicit receiver: `this` for methods, the closure
	// itself for free functions.
	recv := ""
	if kind == heap.FuncMethod || kind == heap.FuncInitializer {
		recv = "this"
	}
	fs.locals = append(fs.locals, localVar{name: recv, depth: 0})
	p.current = fs
}

// endFunc closes out the function currently being compiled and allocates
// its Function object. Callers must emit an explicit return (emitReturn,
// or their own OP_RETURN sequence) before calling this.
func (p *Parser) endFunc() heap.Handle {
	fs := p.current

	fn := heap.ObjFunction{
		Arity:        fs.arity,
		ArityDefault: fs.arityDefault,
		UpvalueCount: len(fs.upvalues),
		Kind:         fs.kind,
		Name:         fs.name,
		Script:       fs.scriptHandle,
		Class:        heap.NoHandle,
		Code:         fs.chunk.Code,
		Lines:        fs.chunk.Lines,
		Constants:    fs.chunk.Constants,
	}
	for _, u := range fs.upvalues {
		fn.UpvalueIsLocal = append(fn.UpvalueIsLocal, u.isLocal)
		fn.UpvalueIndex = append(fn.UpvalueIndex, u.index)
	}
	handle := p.h.NewFunction(fn)

	p.current = fs.enclosing
	return handle
}

func (p *Parser) emitReturn() {
	if p.current.kind == heap.FuncInitializer {
		p.emitByte(byte(chunk.OpGetLocal))
		p.emitByte(0)
	} else {
		p.emitByte(byte(chunk.OpNull))
	}
	p.emitByte(byte(chunk.OpReturn))
}

// --- token stream helpers ---

func (p *Parser) advance() {
	for {
		p.lx.Advance()
		if p.lx.Current.Kind != lexer.TokenError {
			return
		}
		p.errorAtCurrent(p.lx.Current.Lexeme)
	}
}

func (p *Parser) check(k lexer.Kind) bool { return p.lx.Current.Kind == k }

func (p *Parser) match(k lexer.Kind) bool {
	if !p.check(k) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(k lexer.Kind, msg string) {
	if p.lx.Current.Kind == k {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *Parser) errorAtCurrent(msg string) { p.errorAt(p.lx.Current, msg) }
func (p *Parser) error(msg string)          { p.errorAt(p.lx.Previous, msg) }

func (p *Parser) errorAt(tok lexer.Token, msg string) {
	if p.hadError {
		return
	}
	p.hadError = true
	where := msg
	if tok.Kind == lexer.TokenEOF {
		where = "at end: " + msg
	} else if tok.Kind != lexer.TokenError {
		where = fmt.Sprintf("at '%s': %s", tok.Lexeme, msg)
	}
	p.firstErr = &CompileError{Line: tok.Line, Message: where}
}

// --- emission ---

func (p *Parser) line() int { return p.lx.Previous.Line }

func (p *Parser) emitByte(b byte) { p.current.chunk.Write(b, p.line()) }

func (p *Parser) emitOp(op chunk.OpCode) { p.emitByte(byte(op)) }

func (p *Parser) emitShort(v uint16) { p.current.chunk.WriteShort(v, p.line()) }

func (p *Parser) emitConstant(v heap.Value) {
	idx := p.current.chunk.AddConstant(v)
	p.emitOp(chunk.OpConstant)
	p.emitShort(uint16(idx))
}

func (p *Parser) internConstant(s string) uint16 {
	handle := p.h.InternString(s)
	return uint16(p.current.chunk.AddConstant(heap.ObjValue(handle)))
}

// emitJump writes op followed by a 2-byte placeholder, returning the offset
// of the placeholder for a later patchJump.
func (p *Parser) emitJump(op chunk.OpCode) int {
	p.emitOp(op)
	p.emitShort(0xffff)
	return len(p.current.chunk.Code) - 2
}

func (p *Parser) patchJump(offset int) {
	jump := len(p.current.chunk.Code) - offset - 2
	if jump > 0xffff {
		p.error("jump target too large")
	}
	p.current.chunk.PatchShort(offset, uint16(jump))
}

func (p *Parser) emitLoop(loopStart int) {
	p.emitOp(chunk.OpLoop)
	offset := len(p.current.chunk.Code) - loopStart + 2
	if offset > 0xffff {
		p.error("loop body too large")
	}
	p.emitShort(uint16(offset))
}
