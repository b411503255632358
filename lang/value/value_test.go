package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{5, "5"},
		{-3, "-3"},
		{3.5, "3.5"},
		{3.14159265, "3.141593"},
		{1.5e11, "1.5E+11"},
		{1e-8, "1E-8"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatNumber(c.in), "input %v", c.in)
	}
}

func TestEqualityReflexive(t *testing.T) {
	vals := []Value{
		Nil,
		Number(42),
		String("hello"),
		NewList([]Value{Number(1), String("a")}),
	}
	for _, v := range vals {
		eq, err := Equal(v, v, DefaultRecursionLimit)
		require.NoError(t, err)
		assert.Equal(t, 1.0, eq)
	}
}

func TestEqualityStructuralLists(t *testing.T) {
	a := NewList([]Value{Number(1), Number(2)})
	b := NewList([]Value{Number(1), Number(2)})
	c := NewList([]Value{Number(1), Number(3)})

	eq, err := Equal(a, b, DefaultRecursionLimit)
	require.NoError(t, err)
	assert.Equal(t, 1.0, eq)

	eq, err = Equal(a, c, DefaultRecursionLimit)
	require.NoError(t, err)
	assert.Equal(t, 0.0, eq)
}

func TestEqualityInconclusiveAtDepthLimit(t *testing.T) {
	a := NewList([]Value{NewList([]Value{Number(1)})})
	b := NewList([]Value{NewList([]Value{Number(1)})})
	eq, err := Equal(a, b, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.5, eq)
}

func TestHashDeterministic(t *testing.T) {
	v := NewList([]Value{Number(1), String("x")})
	h1 := Hash(v, DefaultRecursionLimit)
	h2 := Hash(v, DefaultRecursionLimit)
	assert.Equal(t, h1, h2)
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := NewMap(0)
	require.NoError(t, m.Set(String("b"), Number(2)))
	require.NoError(t, m.Set(String("a"), Number(1)))
	require.NoError(t, m.Set(String("b"), Number(22)))

	keys := m.Keys()
	assert.Equal(t, []Value{String("b"), String("a")}, keys)
	v, ok := m.Get(String("b"))
	require.True(t, ok)
	assert.Equal(t, Number(22), v)
}

func TestMapDeleteThenReinsert(t *testing.T) {
	m := NewMap(0)
	require.NoError(t, m.Set(String("a"), Number(1)))
	_, ok := m.Delete(String("a"))
	require.True(t, ok)
	assert.Equal(t, 0, m.Len())
	_, ok = m.Get(String("a"))
	assert.False(t, ok)

	require.NoError(t, m.Set(String("a"), Number(2)))
	v, ok := m.Get(String("a"))
	require.True(t, ok)
	assert.Equal(t, Number(2), v)
	assert.Equal(t, 1, m.Len())
}

func TestStringifyBreaksCycles(t *testing.T) {
	l := NewList(nil)
	l2 := NewList([]Value{l})
	// l references itself through l2; Stringify must not recurse forever.
	require.NoError(t, l.Append(l2))
	assert.NotPanics(t, func() { Stringify(l) })
}

func TestStringifyQuotesNestedStrings(t *testing.T) {
	l := NewList([]Value{String(`quo"te`)})
	assert.Equal(t, `["quo""te"]`, Stringify(l))
}
