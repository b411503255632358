package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsKeyword(t *testing.T) {
	require.True(t, IsKeyword("if"))
	require.True(t, IsKeyword("end"))
	require.True(t, IsKeyword("isa"))
	require.False(t, IsKeyword("foo"))
	require.False(t, IsKeyword(""))
}

func TestTokenIsComplete(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{EOL, true},
		{Identifier, true},
		{Keyword, true},
		{Number, true},
		{RParen, true},
		{RSquare, true},
		{RCurly, true},
		{String, true},
		{Unknown, true},
		{OpPlus, false},
		{LParen, false},
		{Comma, false},
		{EOF, false},
	}
	for _, c := range cases {
		got := Token{Kind: c.kind}.IsComplete()
		require.Equalf(t, c.want, got, "kind %s", c.kind)
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "+", OpPlus.String())
	require.Equal(t, "identifier", Identifier.String())
	require.Equal(t, "invalid", Kind(250).String())
}
