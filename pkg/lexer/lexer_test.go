package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTokenBasicTokens(t *testing.T) {
	input := `(){},.-+;/* ! != = == > >= < <=`

	tests := []struct {
		typ    TokenType
		lexeme string
	}{
		{TokenLeftParen, "("},
		{TokenRightParen, ")"},
		{TokenLeftBrace, "{"},
		{TokenRightBrace, "}"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenMinus, "-"},
		{TokenPlus, "+"},
		{TokenSemicolon, ";"},
		{TokenSlash, "/"},
		{TokenStar, "*"},
		{TokenBang, "!"},
		{TokenBangEqual, "!="},
		{TokenEqual, "="},
		{TokenEqualEqual, "=="},
		{TokenGreater, ">"},
		{TokenGreaterEqual, ">="},
		{TokenLess, "<"},
		{TokenLessEqual, "<="},
		{TokenEOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		assert.Equalf(t, tt.typ, tok.Type, "tests[%d]", i)
		assert.Equalf(t, tt.lexeme, tok.Lexeme, "tests[%d]", i)
	}
}

func TestNextTokenKeywordsAndIdentifiers(t *testing.T) {
	input := `and class else extends false for fun if nil or print return super this true var while foo_bar _x2`

	l := New(input)
	want := []TokenType{
		TokenAnd, TokenClass, TokenElse, TokenExtends, TokenFalse, TokenFor,
		TokenFun, TokenIf, TokenNil, TokenOr, TokenPrint, TokenReturn,
		TokenSuper, TokenThis, TokenTrue, TokenVar, TokenWhile,
		TokenIdentifier, TokenIdentifier, TokenEOF,
	}
	for i, typ := range want {
		tok := l.NextToken()
		assert.Equalf(t, typ, tok.Type, "tests[%d]: %q", i, tok.Lexeme)
	}
}

func TestNextTokenNumbers(t *testing.T) {
	l := New(`123 3.14 0`)
	for _, want := range []string{"123", "3.14", "0"} {
		tok := l.NextToken()
		require.Equal(t, TokenNumber, tok.Type)
		assert.Equal(t, want, tok.Lexeme)
	}
}

func TestNextTokenString(t *testing.T) {
	l := New(`"hello, world"`)
	tok := l.NextToken()
	require.Equal(t, TokenString, tok.Type)
	assert.Equal(t, "hello, world", tok.Lexeme)
}

func TestNextTokenUnterminatedString(t *testing.T) {
	l := New(`"oops`)
	tok := l.NextToken()
	assert.Equal(t, TokenError, tok.Type)
	assert.Equal(t, "Unterminated string.", tok.Lexeme)
}

func TestNextTokenLineComment(t *testing.T) {
	l := New("1 // a comment\n2")
	first := l.NextToken()
	require.Equal(t, TokenNumber, first.Type)
	assert.Equal(t, 1, first.Line)

	second := l.NextToken()
	require.Equal(t, TokenNumber, second.Type)
	assert.Equal(t, 2, second.Line)
	assert.Equal(t, "2", second.Lexeme)
}

func TestNextTokenMultilineStringAdvancesLine(t *testing.T) {
	l := New("\"line one\nline two\" 1")
	str := l.NextToken()
	require.Equal(t, TokenString, str.Type)

	num := l.NextToken()
	require.Equal(t, TokenNumber, num.Type)
	assert.Equal(t, 2, num.Line)
}
