package compiler

import (
	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
	"github.com/ilex-lang/ilex/internal/lexer"
)

func (p *Parser) declaration() {
	switch {
	case p.match(lexer.TokenVar):
		p.varDeclaration(false)
	case p.match(lexer.TokenConst):
		p.varDeclaration(true)
	case p.match(lexer.TokenFn):
		p.fnDeclaration()
	case p.match(lexer.TokenAbstract):
		p.consume(lexer.TokenClass, "expected 'class' after 'abstract'")
		p.classDeclaration(heap.ClassAbstract)
	case p.match(lexer.TokenStatic):
		p.consume(lexer.TokenClass, "expected 'class' after 'static'")
		p.classDeclaration(heap.ClassStatic)
	case p.match(lexer.TokenClass):
		p.classDeclaration(heap.ClassDefault)
	case p.match(lexer.TokenEnum):
		p.enumDeclaration()
	case p.match(lexer.TokenUse):
		p.useStatement()
	default:
		p.statement()
	}
	p.syncIfErrored()
}

// syncIfErrored skips tokens to the next likely statement boundary after a
// compile error, so one mistake doesn't cascade into a wall of noise.
func (p *Parser) syncIfErrored() {
	if !p.hadError {
		return
	}
	for !p.check(lexer.TokenEOF) {
		if p.lx.Previous.Kind == lexer.TokenSemicolon {
			return
		}
		switch p.lx.Current.Kind {
		case lexer.TokenClass, lexer.TokenFn, lexer.TokenVar, lexer.TokenConst,
			lexer.TokenFor, lexer.TokenIf, lexer.TokenWhile, lexer.TokenReturn, lexer.TokenUse:
			return
		}
		p.advance()
	}
}

func (p *Parser) varDeclaration(readonly bool) {
	p.consume(lexer.TokenIdent, "expected variable name")
	name := p.lx.Previous.Lexeme

	global := p.current.scopeDepth == 0
	var nameIdx uint16
	if global {
		nameIdx = p.internConstant(name)
	} else {
		p.declareVariable(name, readonly)
	}

	if p.match(lexer.TokenEq) {
		p.expression()
	} else {
		if readonly {
			p.error("const declaration requires an initializer")
		}
		p.emitOp(chunk.OpNull)
	}
	p.consume(lexer.TokenSemicolon, "expected ';' after variable declaration")

	if global {
		p.defineScopelessVariable(nameIdx, readonly)
		return
	}
	p.markInitialized()
}

// defineScopelessVariable emits the definition opcode for a depth-0 binding:
// script scope inside the top-level script function, or a VM-wide global
// everywhere else. The trailing byte tells the VM whether to mark the
// StringTable slot readonly (for `const`).
func (p *Parser) defineScopelessVariable(nameIdx uint16, readonly bool) {
	if p.isScriptFunc() {
		p.emitOp(chunk.OpDefineScript)
	} else {
		p.emitOp(chunk.OpDefineGlobal)
	}
	p.emitShort(nameIdx)
	if readonly {
		p.emitByte(1)
	} else {
		p.emitByte(0)
	}
}

func (p *Parser) fnDeclaration() {
	p.consume(lexer.TokenIdent, "expected function name")
	name := p.lx.Previous.Lexeme
	global := p.current.scopeDepth == 0
	var nameIdx uint16
	if global {
		nameIdx = p.internConstant(name)
	} else {
		p.declareVariable(name, false)
		p.markInitialized()
	}

	p.functionBody(heap.FuncFunction, name)

	if global {
		p.defineScopelessVariable(nameIdx, false)
	}
}

// functionBody compiles a parameter list and block body into a nested
// funcState, then emits OP_CLOSURE capturing its upvalues.
func (p *Parser) functionBody(kind heap.FuncKind, name string) {
	p.pushFunc(kind, name, p.current.scriptHandle)
	p.beginScope()

	p.consume(lexer.TokenLeftParen, "expected '(' after function name")
	if !p.check(lexer.TokenRightParen) {
		for {
			p.current.arity++
			if p.current.arity > 255 {
				p.error("can't have more than 255 parameters")
			}
			p.consume(lexer.TokenIdent, "expected parameter name")
			p.declareVariable(p.lx.Previous.Lexeme, false)
			p.markInitialized()
			if p.match(lexer.TokenEq) {
				p.current.arityDefault++
				p.expression()
				p.emitOp(chunk.OpDefineDefault)
				p.emitByte(byte(len(p.current.locals) - 1))
			}
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRightParen, "expected ')' after parameters")
	p.consume(lexer.TokenLeftBrace, "expected '{' before function body")
	p.block()

	p.emitReturn()
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
}

func (p *Parser) block() {
	for !p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		p.declaration()
	}
	p.consume(lexer.TokenRightBrace, "expected '}' after block")
}

func (p *Parser) statement() {
	switch {
	case p.match(lexer.TokenLeftBrace):
		p.beginScope()
		p.block()
		p.endScope()
	case p.match(lexer.TokenIf):
		p.ifStatement()
	case p.match(lexer.TokenWhile):
		p.whileStatement()
	case p.match(lexer.TokenDo):
		p.doWhileStatement()
	case p.match(lexer.TokenFor):
		p.forStatement()
	case p.match(lexer.TokenSwitch):
		p.switchStatement()
	case p.match(lexer.TokenReturn):
		p.returnStatement()
	case p.match(lexer.TokenBreak):
		p.breakStatement()
	case p.match(lexer.TokenContinue):
		p.continueStatement()
	case p.match(lexer.TokenAssert):
		p.assertStatement()
	case p.match(lexer.TokenPanic):
		p.panicStatement()
	case p.match(lexer.TokenWithFile):
		p.withFileStatement()
	case p.match(lexer.TokenFallthrough):
		p.fallthroughStatement()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "expected ';' after expression")
	p.emitOp(chunk.OpPop)
}

func (p *Parser) ifStatement() {
	p.consume(lexer.TokenLeftParen, "expected '(' after 'if'")
	p.expression()
	p.consume(lexer.TokenRightParen, "expected ')' after condition")

	thenJump := p.emitJump(chunk.OpJumpIfFalse)
	p.emitOp(chunk.OpPop)
	p.statement()

	var elseJumps []int
	elseJumps = append(elseJumps, p.emitJump(chunk.OpJump))
	p.patchJump(thenJump)
	p.emitOp(chunk.OpPop)

	for p.match(lexer.TokenElif) {
		p.consume(lexer.TokenLeftParen, "expected '(' after 'elif'")
		p.expression()
		p.consume(lexer.TokenRightParen, "expected ')' after condition")
		next := p.emitJump(chunk.OpJumpIfFalse)
		p.emitOp(chunk.OpPop)
		p.statement()
		elseJumps = append(elseJumps, p.emitJump(chunk.OpJump))
		p.patchJump(next)
		p.emitOp(chunk.OpPop)
	}

	if p.match(lexer.TokenElse) {
		p.statement()
	}
	for _, j := range elseJumps {
		p.patchJump(j)
	}
}

func (p *Parser) pushLoop() *loopContext {
	lc := &loopContext{enclosing: p.current.loop}
	p.current.loop = lc
	return lc
}

func (p *Parser) popLoop() {
	lc := p.current.loop
	for _, b := range lc.breakJumps {
		p.patchJump(b)
	}
	p.current.loop = lc.enclosing
}

func (p *Parser) whileStatement() {
	lc := p.pushLoop()
	loopStart := len(p.current.chunk.Code)
	lc.continueTarget = loopStart

	p.consume(lexer.TokenLeftParen, "expected '(' after 'while'")
	p.expression()
	p.consume(lexer.TokenRightParen, "expected ')' after condition")

	exitJump := p.emitJump(chunk.OpJumpIfFalse)
	p.emitOp(chunk.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(chunk.OpPop)
	p.popLoop()
}

func (p *Parser) doWhileStatement() {
	lc := p.pushLoop()
	loopStart := len(p.current.chunk.Code)

	p.consume(lexer.TokenLeftBrace, "expected '{' after 'do'")
	p.beginScope()
	p.block()
	p.endScope()

	p.consume(lexer.TokenWhile, "expected 'while' after 'do' block")
	p.consume(lexer.TokenLeftParen, "expected '(' after 'while'")
	lc.continueTarget = len(p.current.chunk.Code)
	p.expression()
	p.consume(lexer.TokenRightParen, "expected ')' after condition")
	p.consume(lexer.TokenSemicolon, "expected ';' after do-while")

	p.emitOp(chunk.OpJumpDoWhile)
	offset := len(p.current.chunk.Code) - loopStart + 2
	p.emitShort(uint16(offset))
	p.popLoop()
}

func (p *Parser) forStatement() {
	p.beginScope()
	p.consume(lexer.TokenLeftParen, "expected '(' after 'for'")

	if p.match(lexer.TokenSemicolon) {
		// no initializer
	} else if p.match(lexer.TokenVar) {
		p.varDeclaration(false)
	} else {
		p.expressionStatement()
	}

	lc := p.pushLoop()
	loopStart := len(p.current.chunk.Code)
	lc.continueTarget = loopStart
	exitJump := -1
	if !p.match(lexer.TokenSemicolon) {
		p.expression()
		p.consume(lexer.TokenSemicolon, "expected ';' after loop condition")
		exitJump = p.emitJump(chunk.OpJumpIfFalse)
		p.emitOp(chunk.OpPop)
	}

	if !p.check(lexer.TokenRightParen) {
		bodyJump := p.emitJump(chunk.OpJump)
		incrementStart := len(p.current.chunk.Code)
		p.expression()
		p.emitOp(chunk.OpPop)
		p.consume(lexer.TokenRightParen, "expected ')' after for clauses")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		lc.continueTarget = incrementStart
		p.patchJump(bodyJump)
	} else {
		p.consume(lexer.TokenRightParen, "expected ')' after for clauses")
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(chunk.OpPop)
	}
	p.popLoop()
	p.endScope()
}

func (p *Parser) breakStatement() {
	if p.current.loop == nil {
		p.error("can't use 'break' outside of a loop")
	}
	p.consume(lexer.TokenSemicolon, "expected ';' after 'break'")
	j := p.emitJump(chunk.OpJump)
	p.current.loop.breakJumps = append(p.current.loop.breakJumps, j)
}

func (p *Parser) continueStatement() {
	if p.current.loop == nil {
		p.error("can't use 'continue' outside of a loop")
	}
	p.consume(lexer.TokenSemicolon, "expected ';' after 'continue'")
	p.emitLoop(p.current.loop.continueTarget)
}

func (p *Parser) returnStatement() {
	if p.current.kind == heap.FuncScript {
		p.error("can't return from top-level script code")
	}
	if p.match(lexer.TokenSemicolon) {
		p.emitReturn()
		return
	}
	if p.current.kind == heap.FuncInitializer {
		p.error("can't return a value from an initializer")
	}
	p.expression()
	p.consume(lexer.TokenSemicolon, "expected ';' after return value")
	p.emitOp(chunk.OpReturn)
}

func (p *Parser) assertStatement() {
	p.consume(lexer.TokenLeftParen, "expected '(' after 'assert'")
	p.expression()
	hasMsg := p.match(lexer.TokenComma)
	if hasMsg {
		p.expression()
	} else {
		p.emitOp(chunk.OpNull)
	}
	p.consume(lexer.TokenRightParen, "expected ')' after assert arguments")
	p.consume(lexer.TokenSemicolon, "expected ';' after assert statement")
	p.emitOp(chunk.OpAssert)
}

func (p *Parser) panicStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "expected ';' after panic statement")
	p.emitOp(chunk.OpPanic)
}

// withFileStatement compiles `withFile (path, mode) as name { ... }`. The
// OP_CLOSE_FILE emitted here closes the file when the block runs to its
// end. The bound file's local slot is also recorded on the enclosing call
// frame at OP_OPEN_FILE time, and OP_RETURN closes any file still open in
// that frame, so a `return` out of the block closes it too. A `break` or
// `continue` out of the block leaves the file open until the frame returns;
// a runtime error or panic does not close it.
func (p *Parser) withFileStatement() {
	p.consume(lexer.TokenLeftParen, "expected '(' after 'withFile'")
	p.expression()
	p.consume(lexer.TokenComma, "expected ',' after file path")
	p.expression()
	p.consume(lexer.TokenRightParen, "expected ')' after withFile arguments")

	p.consume(lexer.TokenAs, "expected 'as' after withFile(...)")
	p.consume(lexer.TokenIdent, "expected binding name after 'as'")
	p.beginScope()
	p.declareVariable(p.lx.Previous.Lexeme, false)
	p.markInitialized()
	slot := len(p.current.locals) - 1

	p.emitOp(chunk.OpOpenFile)
	p.emitByte(byte(slot))

	p.consume(lexer.TokenLeftBrace, "expected '{' after withFile binding")
	p.block()

	p.emitOp(chunk.OpCloseFile)
	p.emitByte(byte(slot))
	p.endScope()
}
