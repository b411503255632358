package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakePos(t *testing.T) {
	p := MakePos(12, 34)
	line, col := p.LineCol()
	require.Equal(t, 12, line)
	require.Equal(t, 34, col)
	require.False(t, p.Unknown())
}

func TestPosUnknown(t *testing.T) {
	require.True(t, Pos(0).Unknown())
	require.True(t, MakePos(0, 5).Unknown())
	require.True(t, MakePos(5, 0).Unknown())
	require.False(t, MakePos(1, 1).Unknown())
}
