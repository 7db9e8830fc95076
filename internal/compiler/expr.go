package compiler

import (
	"strconv"
	"strings"

	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
	"github.com/ilex-lang/ilex/internal/lexer"
)

// Precedence climbs from loosest to tightest binding. The original source's
// table only went PREC_NONE..PREC_PRIMARY; this adds the extra tiers needed
// for the bitwise, shift, null-coalescing, and power operators this surface
// exposes that the original folded into fewer levels.
type precedence int

const (
	precNone precedence = iota
	precAssign
	precNullCoalesce
	precOr
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precComparison
	precShift
	precTerm
	precFactor
	precUnary
	precPow
	precCall
	precPrimary
)

type parseFn func(p *Parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[lexer.Kind]parseRule

func init() {
	rules = map[lexer.Kind]parseRule{
		lexer.TokenLeftParen:          {prefix: (*Parser).grouping, infix: (*Parser).call, precedence: precCall},
		lexer.TokenLeftBracket:        {prefix: (*Parser).arrayLiteral, infix: (*Parser).index, precedence: precCall},
		lexer.TokenLeftBrace:          {prefix: (*Parser).mapOrSetLiteral},
		lexer.TokenDot:                {infix: (*Parser).dot, precedence: precCall},
		lexer.TokenQuestionDot:        {infix: (*Parser).dot, precedence: precCall},
		lexer.TokenMinus:              {prefix: (*Parser).unary, infix: (*Parser).binary, precedence: precTerm},
		lexer.TokenPlus:               {infix: (*Parser).binary, precedence: precTerm},
		lexer.TokenSlash:              {infix: (*Parser).binary, precedence: precFactor},
		lexer.TokenStar:               {infix: (*Parser).binary, precedence: precFactor},
		lexer.TokenPercent:            {infix: (*Parser).binary, precedence: precFactor},
		lexer.TokenStarStar:           {infix: (*Parser).binary, precedence: precPow},
		lexer.TokenTilde:              {prefix: (*Parser).unary},
		lexer.TokenBang:               {prefix: (*Parser).unary},
		lexer.TokenBangEq:             {infix: (*Parser).binary, precedence: precEquality},
		lexer.TokenEqEq:               {infix: (*Parser).binary, precedence: precEquality},
		lexer.TokenGr:                 {infix: (*Parser).binary, precedence: precComparison},
		lexer.TokenGrEq:               {infix: (*Parser).binary, precedence: precComparison},
		lexer.TokenLt:                 {infix: (*Parser).binary, precedence: precComparison},
		lexer.TokenLtEq:               {infix: (*Parser).binary, precedence: precComparison},
		lexer.TokenLtLt:               {infix: (*Parser).binary, precedence: precShift},
		lexer.TokenGrGr:               {infix: (*Parser).binary, precedence: precShift},
		lexer.TokenAmp:                {infix: (*Parser).binary, precedence: precBitAnd},
		lexer.TokenPipe:               {infix: (*Parser).binary, precedence: precBitOr},
		lexer.TokenCaret:              {infix: (*Parser).binary, precedence: precBitXor},
		lexer.TokenAmpAmp:             {infix: (*Parser).and, precedence: precAnd},
		lexer.TokenAnd:                {infix: (*Parser).and, precedence: precAnd},
		lexer.TokenPipePipe:           {infix: (*Parser).or, precedence: precOr},
		lexer.TokenOr:                 {infix: (*Parser).or, precedence: precOr},
		lexer.TokenQuestionQuestion:   {infix: (*Parser).nullCoalesce, precedence: precNullCoalesce},
		lexer.TokenQuestion:           {infix: (*Parser).ternary, precedence: precAssign},
		lexer.TokenIdent:              {prefix: (*Parser).variable},
		lexer.TokenString:             {prefix: (*Parser).stringLit},
		lexer.TokenNumber:             {prefix: (*Parser).number},
		lexer.TokenFalse:              {prefix: (*Parser).literal},
		lexer.TokenTrue:               {prefix: (*Parser).literal},
		lexer.TokenNull:               {prefix: (*Parser).literal},
		lexer.TokenThis:               {prefix: (*Parser).this},
		lexer.TokenSuper:              {prefix: (*Parser).super},
		lexer.TokenFn:                 {prefix: (*Parser).lambda},
		lexer.TokenPlusPlus:           {prefix: (*Parser).prefixIncDec},
		lexer.TokenMinusMinus:         {prefix: (*Parser).prefixIncDec},
	}
}

func (p *Parser) getRule(k lexer.Kind) parseRule { return rules[k] }

func (p *Parser) expression() { p.parsePrecedence(precAssign) }

func (p *Parser) parsePrecedence(prec precedence) {
	p.advance()
	rule := p.getRule(p.lx.Previous.Kind)
	if rule.prefix == nil {
		p.error("expected expression")
		return
	}
	canAssign := prec <= precAssign
	rule.prefix(p, canAssign)

	for prec <= p.getRule(p.lx.Current.Kind).precedence {
		p.advance()
		infix := p.getRule(p.lx.Previous.Kind).infix
		if infix == nil {
			p.error("expected expression")
			return
		}
		infix(p, canAssign)
	}

	if canAssign && (p.match(lexer.TokenEq) || p.matchCompoundAssign()) {
		p.error("invalid assignment target")
	}
}

func (p *Parser) matchCompoundAssign() bool {
	switch p.lx.Current.Kind {
	case lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenStarEq, lexer.TokenSlashEq,
		lexer.TokenStarStarEq, lexer.TokenQuestionQuestionEq:
		p.advance()
		return true
	}
	return false
}

func (p *Parser) number(canAssign bool) {
	text := strings.ReplaceAll(p.lx.Previous.Lexeme, "_", "")
	var f float64
	switch {
	case strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X"):
		n, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			p.error("invalid hex literal")
		}
		f = float64(n)
	case strings.HasPrefix(text, "0o") || strings.HasPrefix(text, "0O"):
		n, err := strconv.ParseUint(text[2:], 8, 64)
		if err != nil {
			p.error("invalid octal literal")
		}
		f = float64(n)
	default:
		var err error
		f, err = strconv.ParseFloat(text, 64)
		if err != nil {
			p.error("invalid number literal")
		}
	}
	p.emitConstant(heap.Number(f))
}

func (p *Parser) stringLit(canAssign bool) {
	s := lexer.StringValue(p.lx.Previous)
	handle := p.h.InternString(s)
	p.emitConstant(heap.ObjValue(handle))
}

func (p *Parser) literal(canAssign bool) {
	switch p.lx.Previous.Kind {
	case lexer.TokenFalse:
		p.emitOp(chunk.OpFalse)
	case lexer.TokenTrue:
		p.emitOp(chunk.OpTrue)
	case lexer.TokenNull:
		p.emitOp(chunk.OpNull)
	}
}

func (p *Parser) grouping(canAssign bool) {
	p.expression()
	p.consume(lexer.TokenRightParen, "expected ')' after expression")
}

func (p *Parser) unary(canAssign bool) {
	opKind := p.lx.Previous.Kind
	p.parsePrecedence(precUnary)
	switch opKind {
	case lexer.TokenMinus:
		p.emitOp(chunk.OpNeg)
	case lexer.TokenBang:
		p.emitOp(chunk.OpNot)
	case lexer.TokenTilde:
		p.emitOp(chunk.OpBitNot)
	}
}

func (p *Parser) prefixIncDec(canAssign bool) {
	op := p.lx.Previous.Kind
	p.parsePrecedence(precUnary)
	if op == lexer.TokenPlusPlus {
		p.emitOp(chunk.OpInc)
	} else {
		p.emitOp(chunk.OpDec)
	}
}

func (p *Parser) binary(canAssign bool) {
	opKind := p.lx.Previous.Kind
	rule := p.getRule(opKind)
	p.parsePrecedence(rule.precedence + 1)
	switch opKind {
	case lexer.TokenPlus:
		p.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		p.emitOp(chunk.OpSub)
	case lexer.TokenStar:
		p.emitOp(chunk.OpMul)
	case lexer.TokenSlash:
		p.emitOp(chunk.OpDiv)
	case lexer.TokenPercent:
		p.emitOp(chunk.OpMod)
	case lexer.TokenStarStar:
		p.emitOp(chunk.OpPow)
	case lexer.TokenBangEq:
		p.emitOp(chunk.OpNotEq)
	case lexer.TokenEqEq:
		p.emitOp(chunk.OpEq)
	case lexer.TokenGr:
		p.emitOp(chunk.OpGr)
	case lexer.TokenGrEq:
		p.emitOp(chunk.OpGrEq)
	case lexer.TokenLt:
		p.emitOp(chunk.OpLt)
	case lexer.TokenLtEq:
		p.emitOp(chunk.OpLtEq)
	case lexer.TokenAmp:
		p.emitOp(chunk.OpBitAnd)
	case lexer.TokenPipe:
		p.emitOp(chunk.OpBitOr)
	case lexer.TokenCaret:
		p.emitOp(chunk.OpBitXor)
	case lexer.TokenLtLt:
		p.emitOp(chunk.OpBitLs)
	case lexer.TokenGrGr:
		p.emitOp(chunk.OpBitRs)
	}
}

// and implements short-circuit `and`/`&&`: if the left operand is falsy,
// skip the right operand and leave the left value as the result.
func (p *Parser) and(canAssign bool) {
	endJump := p.emitJump(chunk.OpJumpIfFalse)
	p.emitOp(chunk.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

// or implements short-circuit `or`/`||`: if the left operand is truthy,
// skip the right operand and leave the left value as the result.
func (p *Parser) or(canAssign bool) {
	endJump := p.emitJump(chunk.OpJumpIfTrue)
	p.emitOp(chunk.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

// nullCoalesce implements `a ?? b`: both operands are always evaluated (no
// short-circuit, matching the original's eager OP_NULL_COALESCE), and
// OP_NULL_COALESCE itself picks a unless a is exactly null - false and every
// other falsy-but-non-null value pass through unchanged.
func (p *Parser) nullCoalesce(canAssign bool) {
	p.parsePrecedence(precNullCoalesce)
	p.emitOp(chunk.OpNullCoalesce)
}

func (p *Parser) ternary(canAssign bool) {
	thenJump := p.emitJump(chunk.OpJumpIfFalse)
	p.emitOp(chunk.OpPop)
	p.parsePrecedence(precAssign)
	elseJump := p.emitJump(chunk.OpJump)
	p.consume(lexer.TokenColon, "expected ':' in ternary expression")
	p.patchJump(thenJump)
	p.emitOp(chunk.OpPop)
	p.parsePrecedence(precAssign)
	p.patchJump(elseJump)
}

func (p *Parser) call(canAssign bool) {
	argCount := p.argumentList()
	p.emitOp(chunk.OpCall)
	p.emitByte(byte(argCount))
}

func (p *Parser) argumentList() int {
	count := 0
	if !p.check(lexer.TokenRightParen) {
		for {
			p.expression()
			count++
			if count > 255 {
				p.error("can't have more than 255 arguments")
			}
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRightParen, "expected ')' after arguments")
	return count
}

func (p *Parser) index(canAssign bool) {
	hasFrom := !p.check(lexer.TokenColon)
	if hasFrom {
		p.expression()
	} else {
		p.emitOp(chunk.OpNull)
	}
	if p.match(lexer.TokenColon) {
		if !p.check(lexer.TokenRightBracket) {
			p.expression()
		} else {
			p.emitOp(chunk.OpNull)
		}
		p.consume(lexer.TokenRightBracket, "expected ']' after slice")
		p.emitOp(chunk.OpSlice)
		return
	}
	p.consume(lexer.TokenRightBracket, "expected ']' after index")
	if canAssign && p.matchAssignOp() {
		p.finishIndexAssign()
		return
	}
	p.emitOp(chunk.OpIndex)
}

func (p *Parser) matchAssignOp() bool {
	return p.match(lexer.TokenEq)
}

func (p *Parser) finishIndexAssign() {
	p.expression()
	p.emitOp(chunk.OpIndexAssign)
}

func (p *Parser) dot(canAssign bool) {
	p.consume(lexer.TokenIdent, "expected property name after '.'")
	name := p.lx.Previous.Lexeme
	private := false
	if strings.HasPrefix(name, "_") {
		private = true
	}
	nameIdx := p.internConstant(name)

	if canAssign && p.match(lexer.TokenEq) {
		p.expression()
		if private {
			p.emitOp(chunk.OpSetPrivateProperty)
		} else {
			p.emitOp(chunk.OpSetProperty)
		}
		p.emitShort(nameIdx)
		return
	}

	if p.match(lexer.TokenLeftParen) {
		argCount := p.argumentList()
		p.emitOp(chunk.OpInvoke)
		p.emitShort(nameIdx)
		p.emitByte(byte(argCount))
		return
	}

	if private {
		p.emitOp(chunk.OpGetPrivateProperty)
	} else {
		p.emitOp(chunk.OpGetProperty)
	}
	p.emitShort(nameIdx)
}

func (p *Parser) arrayLiteral(canAssign bool) {
	count := 0
	if !p.check(lexer.TokenRightBracket) {
		for {
			if p.check(lexer.TokenRightBracket) {
				break
			}
			p.expression()
			count++
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRightBracket, "expected ']' after array literal")
	p.emitOp(chunk.OpNewArray)
	p.emitShort(uint16(count))
}

// mapOrSetLiteral disambiguates `{1, 2}` (set) from `{a: 1, b: 2}` (map) by
// checking whether a colon follows the first element; an empty `{}` is a map.
func (p *Parser) mapOrSetLiteral(canAssign bool) {
	if p.match(lexer.TokenRightBrace) {
		p.emitOp(chunk.OpNewMap)
		p.emitShort(0)
		return
	}

	p.expression()
	isMap := p.match(lexer.TokenColon)
	count := 0
	if isMap {
		p.expression()
		count = 1
		for p.match(lexer.TokenComma) {
			if p.check(lexer.TokenRightBrace) {
				break
			}
			p.expression()
			p.consume(lexer.TokenColon, "expected ':' in map literal")
			p.expression()
			count++
		}
		p.consume(lexer.TokenRightBrace, "expected '}' after map literal")
		p.emitOp(chunk.OpNewMap)
		p.emitShort(uint16(count))
		return
	}

	count = 1
	for p.match(lexer.TokenComma) {
		if p.check(lexer.TokenRightBrace) {
			break
		}
		p.expression()
		count++
	}
	p.consume(lexer.TokenRightBrace, "expected '}' after set literal")
	p.emitOp(chunk.OpNewSet)
	p.emitShort(uint16(count))
}

func (p *Parser) this(canAssign bool) {
	if p.currentClass == nil {
		p.error("can't use 'this' outside of a class method")
	}
	p.namedVariable("this", false)
}

func (p *Parser) super(canAssign bool) {
	if p.currentClass == nil {
		p.error("can't use 'super' outside of a class")
	} else if !p.currentClass.hasSuper {
		p.error("can't use 'super' in a class with no superclass")
	}
	p.consume(lexer.TokenDot, "expected '.' after 'super'")
	p.consume(lexer.TokenIdent, "expected superclass method name")
	nameIdx := p.internConstant(p.lx.Previous.Lexeme)

	p.namedVariable("this", false)
	if p.match(lexer.TokenLeftParen) {
		argCount := p.argumentList()
		p.namedVariable("super", false)
		p.emitOp(chunk.OpInvokeSuper)
		p.emitShort(nameIdx)
		p.emitByte(byte(argCount))
		return
	}
	p.namedVariable("super", false)
	p.emitOp(chunk.OpGetSuper)
	p.emitShort(nameIdx)
}

func (p *Parser) variable(canAssign bool) {
	p.namedVariable(p.lx.Previous.Lexeme, canAssign)
}

func (p *Parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp chunk.OpCode
	var arg int
	readonlyLocal := false

	if local := p.resolveLocal(p.current, name); local != -1 {
		getOp, setOp, arg = chunk.OpGetLocal, chunk.OpSetLocal, local
		readonlyLocal = p.current.locals[local].readonly
	} else if up := p.resolveUpvalue(p.current, name); up != -1 {
		getOp, setOp, arg = chunk.OpGetUpvalue, chunk.OpSetUpvalue, up
	} else if p.isScriptFunc() && p.current.scopeDepth == 0 {
		idx := p.internConstant(name)
		p.compileScriptAccess(idx, canAssign)
		return
	} else {
		idx := int(p.internConstant(name))
		if canAssign && p.match(lexer.TokenEq) {
			p.expression()
			p.emitOp(chunk.OpSetGlobal)
			p.emitShort(uint16(idx))
			return
		}
		if canAssign && p.compoundAssignInline(chunk.OpGetGlobal, chunk.OpSetGlobal, uint16(idx)) {
			return
		}
		p.emitOp(chunk.OpGetGlobal)
		p.emitShort(uint16(idx))
		return
	}

	if canAssign && p.check(lexer.TokenEq) {
		if readonlyLocal {
			p.error("can't assign to a const variable")
		}
		p.advance()
		p.expression()
		p.emitOp(setOp)
		p.emitByte(byte(arg))
		return
	}
	if canAssign && !readonlyLocal && p.compoundAssignInlineLocal(getOp, setOp, arg) {
		return
	}
	p.emitOp(getOp)
	p.emitByte(byte(arg))
}

// compileScriptAccess handles a bare identifier resolved as a script-scope
// (top-level of the current script) binding.
func (p *Parser) compileScriptAccess(nameIdx uint16, canAssign bool) {
	if canAssign && p.match(lexer.TokenEq) {
		p.expression()
		p.emitOp(chunk.OpSetScript)
		p.emitShort(nameIdx)
		return
	}
	if canAssign && p.compoundAssignInline(chunk.OpGetScript, chunk.OpSetScript, nameIdx) {
		return
	}
	p.emitOp(chunk.OpGetScript)
	p.emitShort(nameIdx)
}

// compoundAssignInline desugars `name += expr` etc. for a global binding by
// re-emitting GET, pushing the rhs, doing the arithmetic op, then SET.
func (p *Parser) compoundAssignInline(getOp, setOp chunk.OpCode, idx uint16) bool {
	arith, ok := p.peekCompoundOp()
	if !ok {
		return false
	}
	p.advance()
	p.emitOp(getOp)
	p.emitShort(idx)
	p.expression()
	p.emitOp(arith)
	p.emitOp(setOp)
	p.emitShort(idx)
	return true
}

func (p *Parser) compoundAssignInlineLocal(getOp, setOp chunk.OpCode, arg int) bool {
	arith, ok := p.peekCompoundOp()
	if !ok {
		return false
	}
	p.advance()
	p.emitOp(getOp)
	p.emitByte(byte(arg))
	p.expression()
	p.emitOp(arith)
	p.emitOp(setOp)
	p.emitByte(byte(arg))
	return true
}

// peekCompoundOp maps a compound-assignment token to the arithmetic opcode
// it desugars to, without consuming it.
func (p *Parser) peekCompoundOp() (chunk.OpCode, bool) {
	switch p.lx.Current.Kind {
	case lexer.TokenPlusEq:
		return chunk.OpAdd, true
	case lexer.TokenMinusEq:
		return chunk.OpSub, true
	case lexer.TokenStarEq:
		return chunk.OpMul, true
	case lexer.TokenSlashEq:
		return chunk.OpDiv, true
	case lexer.TokenStarStarEq:
		return chunk.OpPow, true
	case lexer.TokenQuestionQuestionEq:
		return chunk.OpNullCoalesce, true
	}
	return 0, false
}

func (p *Parser) lambda(canAssign bool) {
	p.functionBody(heap.FuncFunction, "")
}
