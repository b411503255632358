package vm

import (
	"context"
	"testing"

	"github.com/mna/miniscript/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, code []Line) *Machine {
	t.Helper()
	m := NewMachine(context.Background(), code, NewRegistry())
	for !m.Done() {
		require.NoError(t, m.Step())
	}
	return m
}

func TestEvaluatorArithmetic(t *testing.T) {
	// x = 1 + 2 * 3
	code := []Line{
		{Lhs: TempRef{1}, Op: AssignA, RhsA: value.Number(2)},
		{Lhs: TempRef{2}, Op: AssignA, RhsA: value.Number(3)},
		{Lhs: TempRef{1}, Op: ATimesB, RhsA: TempRef{1}, RhsB: TempRef{2}},
		{Lhs: TempRef{0}, Op: AssignA, RhsA: value.Number(1)},
		{Lhs: TempRef{0}, Op: APlusB, RhsA: TempRef{0}, RhsB: TempRef{1}},
		{Lhs: VarRef{Name: "x"}, Op: AssignA, RhsA: TempRef{0}},
	}
	m := run(t, code)
	v, err := m.Stack[0].GetVar("x")
	require.NoError(t, err)
	assert.Equal(t, value.Number(7), v)
}

func TestEvaluatorStringConcatAndCoercion(t *testing.T) {
	code := []Line{
		{Lhs: TempRef{0}, Op: AssignA, RhsA: value.String("n=")},
		{Lhs: TempRef{1}, Op: AssignA, RhsA: value.Number(3)},
		{Lhs: VarRef{Name: "s"}, Op: APlusB, RhsA: TempRef{0}, RhsB: TempRef{1}},
	}
	m := run(t, code)
	v, err := m.Stack[0].GetVar("s")
	require.NoError(t, err)
	assert.Equal(t, value.String("n=3"), v)
}

func TestEvaluatorNullIdentityOnStringPlus(t *testing.T) {
	code := []Line{
		{Lhs: VarRef{Name: "s"}, Op: APlusB, RhsA: value.Nil, RhsB: value.String("ok")},
	}
	m := run(t, code)
	v, err := m.Stack[0].GetVar("s")
	require.NoError(t, err)
	assert.Equal(t, value.String("ok"), v)
}

func TestEvaluatorChainedComparisonMultiplication(t *testing.T) {
	// (1 < 2) * (2 < 3) == 1
	code := []Line{
		{Lhs: TempRef{0}, Op: ALessThanB, RhsA: value.Number(1), RhsB: value.Number(2)},
		{Lhs: TempRef{1}, Op: ALessThanB, RhsA: value.Number(2), RhsB: value.Number(3)},
		{Lhs: VarRef{Name: "r"}, Op: ATimesB, RhsA: TempRef{0}, RhsB: TempRef{1}},
	}
	m := run(t, code)
	v, err := m.Stack[0].GetVar("r")
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)
}

func TestEvaluatorGotoSkipsLine(t *testing.T) {
	code := []Line{
		{Op: GotoA, RhsA: value.Number(2)},
		{Lhs: VarRef{Name: "x"}, Op: AssignA, RhsA: value.Number(1)},
		{Lhs: VarRef{Name: "x"}, Op: AssignA, RhsA: value.Number(2)},
	}
	m := run(t, code)
	v, err := m.Stack[0].GetVar("x")
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), v)
}

func TestEvaluatorFuzzyAndOr(t *testing.T) {
	code := []Line{
		{Lhs: VarRef{Name: "a"}, Op: AAndB, RhsA: value.Number(0.5), RhsB: value.Number(0.5)},
		{Lhs: VarRef{Name: "o"}, Op: AOrB, RhsA: value.Number(0.5), RhsB: value.Number(0.5)},
	}
	m := run(t, code)
	a, err := m.Stack[0].GetVar("a")
	require.NoError(t, err)
	o, err := m.Stack[0].GetVar("o")
	require.NoError(t, err)
	assert.Equal(t, value.Number(0.25), a)
	assert.Equal(t, value.Number(0.75), o)
}

func TestEvaluatorListAndMapLiteralCopy(t *testing.T) {
	lit := value.NewList([]value.Value{value.Number(1), value.Number(2)})
	code := []Line{
		{Lhs: VarRef{Name: "a"}, Op: CopyA, RhsA: lit},
		{Lhs: VarRef{Name: "b"}, Op: CopyA, RhsA: lit},
	}
	m := run(t, code)
	a, err := m.Stack[0].GetVar("a")
	require.NoError(t, err)
	b, err := m.Stack[0].GetVar("b")
	require.NoError(t, err)
	assert.NotSame(t, a.(*value.List), b.(*value.List))
	eq, err := value.Equal(a, b, value.DefaultRecursionLimit)
	require.NoError(t, err)
	assert.Equal(t, 1.0, eq)
}

func TestEvaluatorElemBofAIndexing(t *testing.T) {
	code := []Line{
		{Lhs: TempRef{0}, Op: AssignA, RhsA: value.NewList([]value.Value{value.String("a"), value.String("b")})},
		{Lhs: VarRef{Name: "x"}, Op: ElemBofA, RhsA: TempRef{0}, RhsB: value.Number(-1)},
	}
	m := run(t, code)
	v, err := m.Stack[0].GetVar("x")
	require.NoError(t, err)
	assert.Equal(t, value.String("b"), v)
}

func TestEvaluatorBindAssignSharesOuterVars(t *testing.T) {
	fn := &Function{Name: "f", Code: []Line{
		{Op: ReturnA, RhsA: VarRef{Name: "n"}},
	}}
	code := []Line{
		{Lhs: VarRef{Name: "n"}, Op: AssignA, RhsA: value.Number(41)},
		{Lhs: TempRef{0}, Op: BindAssignA, RhsA: fn},
		{Lhs: VarRef{Name: "n"}, Op: AssignA, RhsA: value.Number(42)},
		{Lhs: TempRef{1}, Op: CallFunctionA, RhsA: TempRef{0}, RhsB: value.Number(0)},
	}
	m := run(t, code)
	v := m.Stack[0].GetTemp(1)
	assert.Equal(t, value.Number(42), v)
}
