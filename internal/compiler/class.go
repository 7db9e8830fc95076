package compiler

import (
	"strconv"
	"strings"

	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
	"github.com/ilex-lang/ilex/internal/lexer"
)

// Member-binding tags carried as OP_METHOD's trailing byte, telling the VM
// which of ObjClass's tables to install the popped closure into.
const (
	memberMethod         = 0
	memberPrivateMethod  = 1
	memberFieldInit      = 2
	memberPrivateFieldInit = 3
	memberAbstractMethod = 4
)

func (p *Parser) classDeclaration(kind heap.ClassKind) {
	p.consume(lexer.TokenIdent, "expected class name")
	className := p.lx.Previous.Lexeme
	nameIdx := p.internConstant(className)

	global := p.current.scopeDepth == 0
	if !global {
		p.declareVariable(className, false)
	}

	cs := &classState{enclosing: p.currentClass, kind: kind}
	p.currentClass = cs

	p.emitOp(chunk.OpClass)
	p.emitShort(nameIdx)
	p.emitByte(byte(kind))

	if global {
		p.defineScopelessVariable(nameIdx, false)
	} else {
		p.markInitialized()
	}

	if p.match(lexer.TokenInherits) {
		p.consume(lexer.TokenIdent, "expected superclass name")
		if p.lx.Previous.Lexeme == className {
			p.error("a class can't inherit from itself")
		}
		p.namedVariable(p.lx.Previous.Lexeme, false)
		p.namedVariable(className, false)
		p.emitOp(chunk.OpInherit)
		cs.hasSuper = true
	}

	p.namedVariable(className, false)
	if cs.hasSuper {
		p.beginScope()
		p.addLocal("super", false)
		p.markInitialized()
	}

	p.consume(lexer.TokenLeftBrace, "expected '{' before class body")
	for !p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		p.classMember(kind)
	}
	p.consume(lexer.TokenRightBrace, "expected '}' after class body")

	if kind == heap.ClassAbstract {
		p.emitOp(chunk.OpCheckAbstract)
	}
	p.emitOp(chunk.OpPop) // pop the class value kept on the stack for member binding

	if cs.hasSuper {
		p.endScope()
	}
	p.currentClass = cs.enclosing
}

func (p *Parser) classMember(classKind heap.ClassKind) {
	static := p.match(lexer.TokenStatic)
	private := p.match(lexer.TokenPrivate)
	if !private {
		p.match(lexer.TokenPublic)
	}

	switch {
	case p.match(lexer.TokenVar):
		p.classField(static, private, false)
	case p.match(lexer.TokenConst):
		p.classField(static, private, true)
	default:
		p.classMethod(classKind, static, private)
	}
}

func (p *Parser) classMethod(classKind heap.ClassKind, static, private bool) {
	p.match(lexer.TokenFn) // a method may be written with or without a leading `fn`
	p.consume(lexer.TokenIdent, "expected method name")
	name := p.lx.Previous.Lexeme
	if strings.HasPrefix(name, "_") {
		private = true
	}
	nameIdx := p.internConstant(name)

	if classKind == heap.ClassAbstract && p.check(lexer.TokenSemicolon) {
		p.advance()
		p.emitOp(chunk.OpMethod)
		p.emitShort(nameIdx)
		p.emitByte(memberAbstractMethod)
		return
	}

	fnKind := heap.FuncMethod
	switch {
	case name == "init":
		fnKind = heap.FuncInitializer
	case static:
		fnKind = heap.FuncStaticMethod
	}

	p.functionBody(fnKind, name)
	p.emitOp(chunk.OpMethod)
	p.emitShort(nameIdx)
	if private {
		p.emitByte(memberPrivateMethod)
	} else {
		p.emitByte(memberMethod)
	}
}

// classField compiles an instance field's initializer as a zero-argument
// thunk closure, evaluated freshly per instance at construction time so
// mutable defaults (arrays, maps) are never shared across instances.
func (p *Parser) classField(static, private, readonly bool) {
	p.consume(lexer.TokenIdent, "expected field name")
	name := p.lx.Previous.Lexeme
	if strings.HasPrefix(name, "_") {
		private = true
	}
	nameIdx := p.internConstant(name)

	if static {
		if p.match(lexer.TokenEq) {
			p.expression()
		} else {
			p.emitOp(chunk.OpNull)
		}
		p.consume(lexer.TokenSemicolon, "expected ';' after static field")
		p.emitOp(chunk.OpSetClassStaticVar)
		p.emitShort(nameIdx)
		flags := byte(0)
		if readonly {
			flags |= 1
		}
		if private {
			flags |= 2
		}
		p.emitByte(flags)
		return
	}

	p.pushFunc(heap.FuncFunction, name+".<init>", p.current.scriptHandle)
	p.beginScope()
	if p.match(lexer.TokenEq) {
		p.expression()
	} else {
		p.emitOp(chunk.OpNull)
	}
	p.emitOp(chunk.OpReturn)
	p.consume(lexer.TokenSemicolon, "expected ';' after field declaration")

	fs := p.current
	fnHandle := p.endFunc()
	p.emitOp(chunk.OpClosure)
	idx := p.current.chunk.AddConstant(heap.ObjValue(fnHandle))
	p.emitShort(uint16(idx))
	for _, u := range fs.upvalues {
		if u.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(byte(u.index))
	}

	p.emitOp(chunk.OpMethod)
	p.emitShort(nameIdx)
	if private {
		p.emitByte(memberPrivateFieldInit)
	} else {
		p.emitByte(memberFieldInit)
	}
}

// enumDeclaration compiles `enum Name { A, B, C = 5, D }`: values
// auto-increment from 0, continuing from the last explicit value after a
// `= N` override, matching the original's enum desugaring.
func (p *Parser) enumDeclaration() {
	p.consume(lexer.TokenIdent, "expected enum name")
	name := p.lx.Previous.Lexeme
	nameIdx := p.internConstant(name)

	global := p.current.scopeDepth == 0
	if !global {
		p.declareVariable(name, true)
	}

	p.emitOp(chunk.OpEnum)
	p.emitShort(nameIdx)

	if global {
		p.defineScopelessVariable(nameIdx, true)
	} else {
		p.markInitialized()
	}

	p.namedVariable(name, false)
	p.consume(lexer.TokenLeftBrace, "expected '{' before enum body")

	next := 0.0
	for !p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		p.consume(lexer.TokenIdent, "expected enum value name")
		valueName := p.lx.Previous.Lexeme
		valueIdx := p.internConstant(valueName)

		if p.match(lexer.TokenEq) {
			p.consume(lexer.TokenNumber, "expected numeric literal as enum value override")
			lit, err := strconv.ParseFloat(strings.ReplaceAll(p.lx.Previous.Lexeme, "_", ""), 64)
			if err != nil {
				p.error("invalid enum value override")
			}
			p.emitConstant(heap.Number(lit))
			next = lit + 1
		} else {
			p.emitConstant(heap.Number(next))
			next++
		}

		p.emitOp(chunk.OpEnumSetValue)
		p.emitShort(valueIdx)

		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRightBrace, "expected '}' after enum body")
	p.emitOp(chunk.OpPop) // pop the enum value kept for ENUM_SET_VALUE
}
