package compiler

import (
	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
	"github.com/ilex-lang/ilex/internal/lexer"
)

// useStatement compiles the module-import forms:
//
//	use "path/to/script";            // binds the module's export namespace
//	use "path/to/script" as alias;
//	use { a, b as c } from "path";    // binds individual exports
//	use math;                         // same forms, but for a native library
//	use { sqrt } from math;
//
// OP_USE/OP_USE_BUILTIN load-or-cache-hit the named module and leave its
// namespace value on the stack; OP_USE_VAR/OP_USE_BUILTIN_VAR peek that
// value and push one more named export on top of it (without popping the
// namespace, so several can be read in sequence); OP_USE_END pops the
// namespace once every name has been bound.
func (p *Parser) useStatement() {
	if p.match(lexer.TokenLeftBrace) {
		p.useDestructure()
		return
	}

	builtin := p.check(lexer.TokenIdent)
	moduleName := p.consumeModuleName(builtin)

	alias := defaultModuleAlias(moduleName)
	if p.match(lexer.TokenAs) {
		p.consume(lexer.TokenIdent, "expected alias name after 'as'")
		alias = p.lx.Previous.Lexeme
	}
	p.consume(lexer.TokenSemicolon, "expected ';' after use statement")

	p.emitModuleLoad(moduleName, builtin)
	p.bindValueOnStack(alias)
}

type importName struct{ export, alias string }

func (p *Parser) useDestructure() {
	var names []importName
	for {
		p.consume(lexer.TokenIdent, "expected import name")
		n := importName{export: p.lx.Previous.Lexeme, alias: p.lx.Previous.Lexeme}
		if p.match(lexer.TokenAs) {
			p.consume(lexer.TokenIdent, "expected alias name after 'as'")
			n.alias = p.lx.Previous.Lexeme
		}
		names = append(names, n)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRightBrace, "expected '}' after import list")
	p.consume(lexer.TokenFrom, "expected 'from' after import list")

	builtin := p.check(lexer.TokenIdent)
	moduleName := p.consumeModuleName(builtin)
	p.consume(lexer.TokenSemicolon, "expected ';' after use statement")

	p.emitModuleLoad(moduleName, builtin)
	for _, n := range names {
		exportIdx := p.internConstant(n.export)
		if builtin {
			p.emitOp(chunk.OpUseBuiltinVar)
		} else {
			p.emitOp(chunk.OpUseVar)
		}
		p.emitShort(exportIdx)
		p.bindValueOnStack(n.alias)
	}
	p.emitOp(chunk.OpUseEnd)
}

func (p *Parser) consumeModuleName(builtin bool) string {
	if builtin {
		p.consume(lexer.TokenIdent, "expected module name")
		return p.lx.Previous.Lexeme
	}
	p.consume(lexer.TokenString, "expected module path string")
	return lexer.StringValue(p.lx.Previous)
}

func (p *Parser) emitModuleLoad(moduleName string, builtin bool) {
	handle := p.h.InternString(moduleName)
	p.emitConstant(heap.ObjValue(handle))
	if builtin {
		p.emitOp(chunk.OpUseBuiltin)
	} else {
		p.emitOp(chunk.OpUse)
	}
}

// bindValueOnStack consumes the value currently on top of the stack into a
// new binding named name, exactly as a `var` initializer would: a script-
// scope export, a VM-wide global, or a plain local depending on context.
func (p *Parser) bindValueOnStack(name string) {
	if p.current.scopeDepth == 0 {
		nameIdx := p.internConstant(name)
		p.defineScopelessVariable(nameIdx, false)
		return
	}
	p.declareVariable(name, false)
	p.markInitialized()
}

// defaultModuleAlias derives a binding name from a module path or builtin
// name when no explicit `as alias` is given: the final path segment, minus
// any file extension.
func defaultModuleAlias(moduleName string) string {
	name := moduleName
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' || name[i] == '\\' {
			name = name[i+1:]
			break
		}
	}
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}
