package lexer_test

import (
	"testing"

	"github.com/mna/miniscript/lang/lexer"
	"github.com/mna/miniscript/lang/token"
	"github.com/stretchr/testify/require"
)

func kinds(src string) []token.Kind {
	l := lexer.New(src)
	var out []token.Kind
	for {
		t := l.Dequeue()
		out = append(out, t.Kind)
		if t.Kind == token.EOF {
			break
		}
	}
	return out
}

func TestLexerBasic(t *testing.T) {
	got := kinds(`x = 1 + 2`)
	require.Equal(t, []token.Kind{
		token.Identifier, token.OpAssign, token.Number, token.OpPlus, token.Number, token.EOF,
	}, got)
}

func TestLexerString(t *testing.T) {
	l := lexer.New(`"he said ""hi"""`)
	tok := l.Dequeue()
	require.Equal(t, token.String, tok.Kind)
	require.Equal(t, `he said "hi"`, tok.Text)
}

func TestLexerComment(t *testing.T) {
	got := kinds("x = 1 // a comment\ny = 2")
	require.Equal(t, []token.Kind{
		token.Identifier, token.OpAssign, token.Number,
		token.EOL,
		token.Identifier, token.OpAssign, token.Number,
		token.EOF,
	}, got)
}

func TestLexerKeywords(t *testing.T) {
	got := kinds("if x then y end if")
	require.Equal(t, []token.Kind{
		token.Keyword, token.Identifier, token.Keyword, token.Identifier,
		token.Keyword, token.Keyword, token.EOF,
	}, got)
}

func TestLexerOperators(t *testing.T) {
	got := kinds("a == b != c >= d <= e")
	require.Equal(t, []token.Kind{
		token.Identifier, token.OpEqual, token.Identifier, token.OpNotEqual,
		token.Identifier, token.OpGreatEqual, token.Identifier, token.OpLessEqual,
		token.Identifier, token.EOF,
	}, got)
}

func TestLexerBlankLinesCollapse(t *testing.T) {
	got := kinds("x = 1\n\n\ny = 2")
	require.Equal(t, []token.Kind{
		token.Identifier, token.OpAssign, token.Number,
		token.EOL,
		token.Identifier, token.OpAssign, token.Number,
		token.EOF,
	}, got)
}

func TestLastToken(t *testing.T) {
	tok := lexer.LastToken("x = 1 + ")
	require.Equal(t, token.OpPlus, tok.Kind)
}

func TestTrimComment(t *testing.T) {
	require.Equal(t, `x = "a // b"`, lexer.TrimComment(`x = "a // b"`))
	require.Equal(t, "x = 1 ", lexer.TrimComment("x = 1 // comment"))
}

func TestPeekDoesNotConsume(t *testing.T) {
	l := lexer.New("abc")
	p1 := l.Peek()
	p2 := l.Peek()
	require.Equal(t, p1, p2)
	d := l.Dequeue()
	require.Equal(t, p1, d)
	require.True(t, l.AtEnd())
}
