package compiler

import (
	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/lexer"
)

// switchStatement compiles:
//
//	switch (expr) {
//	case a, b: ...
//	case c: ... fallthrough;
//	default: ...
//	}
//
// Each case test pops its own value(s) and compares against the switch
// value left on the stack by the OP_CMP_JMP / OP_MULTI_CASE runtime
// handlers, which leave the switch value on the stack on a mismatch (for
// the next case's test) and pop it on a match (falling into the body).
// This mirrors the original interpreter's switch dispatch: see vm.c's
// handling of OP_CMP_JMP, OP_CMP_JMP_FALL and OP_MULTI_CASE.
func (p *Parser) switchStatement() {
	p.consume(lexer.TokenLeftParen, "expected '(' after 'switch'")
	p.expression()
	p.consume(lexer.TokenRightParen, "expected ')' after switch value")
	p.consume(lexer.TokenLeftBrace, "expected '{' before switch body")

	sw := &switchState{enclosing: p.currentSwitch}
	p.currentSwitch = sw

	var exitJumps []int
	nextTestJump := -1
	precededByFallthrough := false

	for p.match(lexer.TokenCase) {
		if nextTestJump != -1 {
			p.patchJump(nextTestJump)
		}

		values := 0
		for {
			p.expression()
			values++
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.consume(lexer.TokenColon, "expected ':' after case value(s)")

		// A case after an explicit `fallthrough;` in the previous case's
		// body is tested with CMP_JMP_FALL: when the VM-wide fallThrough flag
		// shows the previous body ran into it, the case counts as matched
		// without a comparison; reached through the previous case's mismatch
		// jump instead, it compares normally.
		testOp := chunk.OpCmpJmp
		if precededByFallthrough {
			testOp = chunk.OpCmpJmpFall
		}

		if values == 1 {
			nextTestJump = p.emitJump(testOp)
		} else {
			p.emitOp(chunk.OpMultiCase)
			p.emitByte(byte(values))
			p.emitShort(0xffff)
			nextTestJump = len(p.current.chunk.Code) - 2
		}

		sw.sawFallthrough = false
		p.caseBody()
		precededByFallthrough = sw.sawFallthrough

		if !sw.sawFallthrough {
			exitJumps = append(exitJumps, p.emitJump(chunk.OpJump))
		}
	}

	if nextTestJump != -1 {
		p.patchJump(nextTestJump)
	}

	if p.match(lexer.TokenDefault) {
		p.consume(lexer.TokenColon, "expected ':' after 'default'")
		p.emitOp(chunk.OpPop)
		p.caseBody()
	} else {
		p.emitOp(chunk.OpPop)
	}

	for _, j := range exitJumps {
		p.patchJump(j)
	}
	p.consume(lexer.TokenRightBrace, "expected '}' after switch body")
	p.currentSwitch = sw.enclosing
}

// caseBody compiles statements until the next case/default/closing brace.
func (p *Parser) caseBody() {
	for !p.check(lexer.TokenCase) && !p.check(lexer.TokenDefault) &&
		!p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		p.declaration()
	}
}

func (p *Parser) fallthroughStatement() {
	if p.currentSwitch == nil {
		p.error("can't use 'fallthrough' outside of a switch case")
	}
	p.consume(lexer.TokenSemicolon, "expected ';' after 'fallthrough'")
	p.currentSwitch.sawFallthrough = true
}
