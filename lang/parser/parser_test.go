package parser_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/mna/miniscript/lang/intrinsic"
	"github.com/mna/miniscript/lang/parser"
	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
	"github.com/stretchr/testify/require"
)

// run compiles src with a fresh parser.Parser and runs it to completion on
// a fresh vm.Machine, returning the machine for inspection and the stdout
// it produced.
func run(t *testing.T, src string) (*vm.Machine, string) {
	t.Helper()
	p := parser.New()
	err := p.Parse(src)
	require.NoError(t, err)
	require.NoError(t, p.FinalizeProgram())

	reg := intrinsic.Install(vm.NewRegistry())
	m := vm.NewMachine(context.Background(), p.Program(), reg)
	intrinsic.BindPrototypes(reg, m)
	var out bytes.Buffer
	m.Stdout = &out

	for !m.Done() {
		require.NoError(t, m.Step())
	}
	return m, out.String()
}

func global(m *vm.Machine) *vm.Context {
	return m.Stack[0]
}

func TestArithmeticAndAssignment(t *testing.T) {
	m, _ := run(t, "x = 1 + 2 * 3\n")
	v, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(7), v)
}

func TestUnaryMinusOnLiteralFoldsIntoConstant(t *testing.T) {
	m, _ := run(t, "x = -5\n")
	v, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(-5), v)
}

func TestChainedComparison(t *testing.T) {
	m, _ := run(t, "x = 1 < 2 < 3\ny = 3 < 2 < 1\n")
	x, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(1), x)
	y, err := global(m).GetVar("y")
	require.NoError(t, err)
	require.Equal(t, value.Number(0), y)
}

func TestShortCircuitOr(t *testing.T) {
	m, _ := run(t, "x = 0 or 1\ny = 0 or 0\n")
	x, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(1), x)
	y, err := global(m).GetVar("y")
	require.NoError(t, err)
	require.Equal(t, value.Number(0), y)
}

func TestShortCircuitAnd(t *testing.T) {
	m, _ := run(t, "x = 1 and 1\ny = 1 and 0\n")
	x, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(1), x)
	y, err := global(m).GetVar("y")
	require.NoError(t, err)
	require.Equal(t, value.Number(0), y)
}

func TestIfElseIfElse(t *testing.T) {
	src := `
n = 2
if n == 1 then
	r = "one"
else if n == 2 then
	r = "two"
else
	r = "other"
end if
`
	m, _ := run(t, src)
	v, err := global(m).GetVar("r")
	require.NoError(t, err)
	require.Equal(t, value.String("two"), v)
}

func TestSingleLineIf(t *testing.T) {
	m, _ := run(t, "x = 0\nif 1 == 1 then x = 1 else x = 2\n")
	v, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(1), v)
}

func TestWhileLoopWithBreakAndContinue(t *testing.T) {
	src := `
sum = 0
i = 0
while i < 10
	i = i + 1
	if i == 3 then continue
	if i > 5 then break
	sum = sum + i
end while
`
	m, _ := run(t, src)
	sum, err := global(m).GetVar("sum")
	require.NoError(t, err)
	require.Equal(t, value.Number(1+2+4+5), sum)
	i, err := global(m).GetVar("i")
	require.NoError(t, err)
	require.Equal(t, value.Number(6), i)
}

func TestForInList(t *testing.T) {
	src := `
total = 0
for x in [1, 2, 3, 4]
	total = total + x
end for
`
	m, _ := run(t, src)
	v, err := global(m).GetVar("total")
	require.NoError(t, err)
	require.Equal(t, value.Number(10), v)
}

func TestForInWithBreakContinue(t *testing.T) {
	src := `
seen = []
for x in [1, 2, 3, 4, 5]
	if x == 2 then continue
	if x == 4 then break
	seen.push(x)
end for
`
	m, _ := run(t, src)
	v, err := global(m).GetVar("seen")
	require.NoError(t, err)
	l, ok := v.(*value.List)
	require.True(t, ok)
	require.Equal(t, []value.Value{value.Number(1), value.Number(3)}, l.Elems())
}

func TestListLiteralFreshOnEachLoopIteration(t *testing.T) {
	src := `
lists = []
for i in [1, 2]
	lists.push([i])
end for
`
	m, _ := run(t, src)
	v, err := global(m).GetVar("lists")
	require.NoError(t, err)
	outer := v.(*value.List)
	require.Equal(t, 2, outer.Len())
	require.NotSame(t, outer.At(0), outer.At(1))
}

func TestFunctionLiteralCallAndReturn(t *testing.T) {
	src := `
add = function(a, b = 10)
	return a + b
end function
x = add(1, 2)
y = add(1)
`
	m, _ := run(t, src)
	x, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(3), x)
	y, err := global(m).GetVar("y")
	require.NoError(t, err)
	require.Equal(t, value.Number(11), y)
}

func TestIndexedAssignment(t *testing.T) {
	src := `
l = [1, 2, 3]
l[1] = 99
m = {"a": 1}
m["a"] = 2
`
	m, _ := run(t, src)
	lv, err := global(m).GetVar("l")
	require.NoError(t, err)
	require.Equal(t, value.Number(99), lv.(*value.List).At(1))
	mv, err := global(m).GetVar("m")
	require.NoError(t, err)
	got, ok := mv.(*value.Map).Get(value.String("a"))
	require.True(t, ok)
	require.Equal(t, value.Number(2), got)
}

func TestAddressOfSuppressesAutoInvoke(t *testing.T) {
	src := `
f = function
	return 42
end function
bound = @f
x = f
`
	m, _ := run(t, src)
	bound, err := global(m).GetVar("bound")
	require.NoError(t, err)
	require.Equal(t, value.KindFunction, bound.Kind())
	x, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(42), x)
}

func TestPrintIntrinsic(t *testing.T) {
	_, out := run(t, `print "hello"`)
	require.Contains(t, out, "hello")
}

func TestParenFreeCallWithIdentifierArg(t *testing.T) {
	_, out := run(t, "x = 15\nprint x\n")
	require.Contains(t, out, "15")
}

func TestParenFreeCallArgIsFullExpression(t *testing.T) {
	_, out := run(t, `print "ab" * 3 + "c"`)
	require.Contains(t, out, "abababc")
}

func TestParenFreeCallWithSuffixChainArg(t *testing.T) {
	src := `
Dog = {}
Dog.bark = function
	return "woof"
end function
d = new Dog
print d.bark
`
	_, out := run(t, src)
	require.Contains(t, out, "woof")
}

func TestBareExpressionStatementContinuesPastSuffixChain(t *testing.T) {
	m, _ := run(t, "x = 41\nx + 1\n")
	v, err := global(m).GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(41), v)
}

func TestNewCreatesIsaLink(t *testing.T) {
	src := `
Base = {"greet": "hi"}
child = new Base
`
	m, _ := run(t, src)
	v, err := global(m).GetVar("child")
	require.NoError(t, err)
	cm := v.(*value.Map)
	isa, ok := cm.Get(value.IsaKey)
	require.True(t, ok)
	require.Same(t, isa.(*value.Map), mustMap(t, global(m), "Base"))
}

func mustMap(t *testing.T, c *vm.Context, name string) *value.Map {
	t.Helper()
	v, err := c.GetVar(name)
	require.NoError(t, err)
	return v.(*value.Map)
}

func TestCompileErrorRecoversAndCollectsMultiple(t *testing.T) {
	p := parser.New()
	err := p.Parse("x = )\ny = 1\n")
	require.Error(t, err)
	require.NotEmpty(t, p.Errs())
}

func TestUnmatchedBlockDetection(t *testing.T) {
	p := parser.New()
	require.NoError(t, p.Parse("if 1 == 1 then\nx = 1\n"))
	err := p.FinalizeProgram()
	require.Error(t, err)
}

func TestIncompleteAcrossParseCalls(t *testing.T) {
	p := parser.New()
	require.NoError(t, p.Parse("if 1 == 1 then\n"))
	require.True(t, p.Incomplete())
	require.NoError(t, p.Parse("x = 1\nend if\n"))
	require.False(t, p.Incomplete())
	require.NoError(t, p.FinalizeProgram())
}
