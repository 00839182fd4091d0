package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTypes(toks []Token) []TokenType {
	types := make([]TokenType, len(toks))
	for i, t := range toks {
		types[i] = t.Type
	}
	return types
}

func TestNextTokenBasics(t *testing.T) {
	toks := All(`if a >= 1 then b + c else d * 2`)
	expected := []TokenType{IF, IDENT, GTE, NUMBER, THEN, IDENT, PLUS, IDENT, ELSE, IDENT, STAR, NUMBER}
	assert.Equal(t, expected, tokenTypes(toks))
}

func TestComparisonNormalization(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
		literal  string
	}{
		{"a >= b", GTE, "≥"},
		{"a <= b", LTE, "≤"},
		{"a <> b", NEQ, "≠"},
		{"a != b", NEQ, "≠"},
		{"a ≥ b", GTE, "≥"},
		{"a = b", EQ, "="},
		{"a == b", EQEQ, "=="},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			toks := All(tt.input)
			require.Len(t, toks, 3)
			assert.Equal(t, tt.expected, toks[1].Type)
			assert.Equal(t, tt.literal, toks[1].Literal)
		})
	}
}

func TestWordOperators(t *testing.T) {
	toks := All(`a AND not b or c MOD 2`)
	expected := []TokenType{IDENT, AND, NOT, IDENT, OR, IDENT, MOD, NUMBER}
	assert.Equal(t, expected, tokenTypes(toks))
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		input    string
		literals []string
	}{
		{"3", []string{"3"}},
		{"3.14", []string{"3.14"}},
		{".5", []string{".5"}},
		{"5.", []string{"5."}},
		{"1e5", []string{"1e5"}},
		{"1E-5", []string{"1E-5"}},
		{"2.5e+3", []string{"2.5e+3"}},
		// unary minus is a separate token, never folded into the number
		{"-3", []string{"-", "3"}},
		{"1-2", []string{"1", "-", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			toks := All(tt.input)
			lits := make([]string, len(toks))
			for i, tok := range toks {
				lits[i] = tok.Literal
			}
			assert.Equal(t, tt.literals, lits)
		})
	}
}

func TestNumberLongestValidPrefix(t *testing.T) {
	// `.1e.1e1` is not a single number: the lexer emits the longest valid
	// prefix and restarts after it.
	toks := All(".1e.1e1")
	require.NotEmpty(t, toks)
	assert.Equal(t, NUMBER, toks[0].Type)
	assert.Equal(t, ".1", toks[0].Literal)
}

func TestQuotedIdentifiers(t *testing.T) {
	toks := All(`"birth rate" * 2`)
	require.Len(t, toks, 3)
	assert.Equal(t, IDENT, toks[0].Type)
	assert.Equal(t, `"birth rate"`, toks[0].Literal)

	toks = All(`"unterminated`)
	require.Len(t, toks, 1)
	assert.Equal(t, ILLEGAL, toks[0].Type)
}

func TestBraceComments(t *testing.T) {
	toks := All("a {this is a comment} + b")
	assert.Equal(t, []TokenType{IDENT, PLUS, IDENT}, tokenTypes(toks))

	l := New("a + {unclosed to the end")
	var got []Token
	for {
		tok, ok := l.Next()
		if !ok {
			break
		}
		got = append(got, tok)
	}
	assert.Equal(t, []TokenType{IDENT, PLUS}, tokenTypes(got))
	assert.True(t, l.UnclosedComment)
}

func TestSubscriptTokens(t *testing.T) {
	toks := All(`a[1:3, *, *:sub, @2]'`)
	expected := []TokenType{
		IDENT, LBRACKET, NUMBER, COLON, NUMBER, COMMA, STAR, COMMA,
		STAR, COLON, IDENT, COMMA, AT, NUMBER, RBRACKET, APOSTROPHE,
	}
	assert.Equal(t, expected, tokenTypes(toks))
}

func TestSpans(t *testing.T) {
	toks := All("ab + cd")
	require.Len(t, toks, 3)
	assert.Equal(t, 0, toks[0].Start)
	assert.Equal(t, 2, toks[0].End)
	assert.Equal(t, 3, toks[1].Start)
	assert.Equal(t, 5, toks[2].Start)
	assert.Equal(t, 7, toks[2].End)
}

func TestUnicodeIdentifiers(t *testing.T) {
	toks := All("größe + 温度")
	require.Len(t, toks, 3)
	assert.Equal(t, "größe", toks[0].Literal)
	assert.Equal(t, "温度", toks[2].Literal)
}

func TestIllegalCharacter(t *testing.T) {
	toks := All("a # b")
	assert.Equal(t, []TokenType{IDENT, ILLEGAL, IDENT}, tokenTypes(toks))
}

// Lexer totality: no input panics the lexer.
func FuzzLexer(f *testing.F) {
	for _, seed := range []string{"a + b", `"x y"`, ".1e.1e1", "{", "≥≤≠", "\x00\xff"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, input string) {
		l := New(input)
		for i := 0; i < len(input)+16; i++ {
			if _, ok := l.Next(); !ok {
				break
			}
		}
	})
}
