package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ilex-lang/ilex/internal/lexer"
)

func kinds(src string) []lexer.Kind {
	l := lexer.New(src)
	var out []lexer.Kind
	for {
		tok := l.Advance()
		out = append(out, tok.Kind)
		if tok.Kind == lexer.TokenEOF {
			return out
		}
	}
}

func TestLexesNumbersAndOperators(t *testing.T) {
	got := kinds("1 + 2 * 3")
	assert.Equal(t, []lexer.Kind{
		lexer.TokenNumber, lexer.TokenPlus, lexer.TokenNumber,
		lexer.TokenStar, lexer.TokenNumber, lexer.TokenEOF,
	}, got)
}

func TestLexesFnKeyword(t *testing.T) {
	got := kinds("fn greet")
	assert.Equal(t, []lexer.Kind{lexer.TokenFn, lexer.TokenIdent, lexer.TokenEOF}, got)
}

func TestLexesStringLiteral(t *testing.T) {
	l := lexer.New(`"hello world"`)
	tok := l.Advance()
	assert.Equal(t, lexer.TokenString, tok.Kind)
	assert.Equal(t, "hello world", lexer.StringValue(tok))
}

func TestSkipsLineAndBlockComments(t *testing.T) {
	got := kinds("1 // a comment\n+ /* nested /* block */ comment */ 2")
	assert.Equal(t, []lexer.Kind{
		lexer.TokenNumber, lexer.TokenPlus, lexer.TokenNumber, lexer.TokenEOF,
	}, got)
}

func TestCompoundAssignmentOperators(t *testing.T) {
	got := kinds("+= -= ==")
	assert.Equal(t, []lexer.Kind{
		lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenEqEq, lexer.TokenEOF,
	}, got)
}
