package intrinsic

import (
	"context"
	"testing"

	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callByName(t *testing.T, reg *vm.Registry, name string, args ...value.Value) value.Value {
	t.Helper()
	in, ok := reg.ByName(name)
	require.True(t, ok, "no intrinsic named %q", name)
	m := vm.NewMachine(context.Background(), nil, reg)
	res, err := in.Fn(m, m.Stack[0], args, nil)
	require.NoError(t, err)
	require.True(t, res.Done)
	return res.Value
}

func TestMathIntrinsics(t *testing.T) {
	reg := Install(vm.NewRegistry())
	assert.Equal(t, value.Number(3), callByName(t, reg, "abs", value.Number(-3)))
	assert.Equal(t, value.Number(2), callByName(t, reg, "floor", value.Number(2.9)))
	assert.Equal(t, value.Number(3), callByName(t, reg, "ceil", value.Number(2.1)))
	assert.Equal(t, value.Number(1), callByName(t, reg, "sign", value.Number(5)))
}

func TestBitwiseIntrinsics(t *testing.T) {
	reg := Install(vm.NewRegistry())
	assert.Equal(t, value.Number(0b0110), callByName(t, reg, "bitAnd", value.Number(0b0111), value.Number(0b1110)))
	assert.Equal(t, value.Number(0b1111), callByName(t, reg, "bitOr", value.Number(0b0111), value.Number(0b1110)))
	assert.Equal(t, value.Number(0b1001), callByName(t, reg, "bitXor", value.Number(0b0111), value.Number(0b1110)))
}

func TestStringIntrinsics(t *testing.T) {
	reg := Install(vm.NewRegistry())
	assert.Equal(t, value.String("HELLO"), callByName(t, reg, "upper", value.String("hello")))
	assert.Equal(t, value.String("hello"), callByName(t, reg, "lower", value.String("HELLO")))
	assert.Equal(t, value.Number(5), callByName(t, reg, "len", value.String("hello")))
	assert.Equal(t, value.Number(104), callByName(t, reg, "code", value.String("hello")))
	assert.Equal(t, value.String("h"), callByName(t, reg, "char", value.Number(104)))
}

func TestSplitAndJoin(t *testing.T) {
	reg := Install(vm.NewRegistry())
	parts := callByName(t, reg, "split", value.String("a,b,c"), value.String(","))
	l, ok := parts.(*value.List)
	require.True(t, ok)
	assert.Equal(t, 3, l.Len())
	joined := callByName(t, reg, "join", l, value.String("-"))
	assert.Equal(t, value.String("a-b-c"), joined)
}

func TestListIntrinsics(t *testing.T) {
	reg := Install(vm.NewRegistry())
	l := value.NewList([]value.Value{value.Number(1), value.Number(2)})
	pushed := callByName(t, reg, "push", l, value.Number(3))
	assert.Same(t, l, pushed.(*value.List))
	assert.Equal(t, 3, l.Len())

	popped := callByName(t, reg, "pop", l)
	assert.Equal(t, value.Number(3), popped)
	assert.Equal(t, 2, l.Len())

	idx := callByName(t, reg, "indexOf", l, value.Number(2))
	assert.Equal(t, value.Number(1), idx)
}

func TestSortIntrinsic(t *testing.T) {
	reg := Install(vm.NewRegistry())
	l := value.NewList([]value.Value{value.Number(3), value.Number(1), value.Number(2)})
	sorted := callByName(t, reg, "sort", l)
	sl := sorted.(*value.List)
	assert.Equal(t, []value.Value{value.Number(1), value.Number(2), value.Number(3)}, sl.Elems())
}

func TestRangeIntrinsic(t *testing.T) {
	reg := Install(vm.NewRegistry())
	r := callByName(t, reg, "range", value.Number(1), value.Number(3))
	l := r.(*value.List)
	assert.Equal(t, []value.Value{value.Number(1), value.Number(2), value.Number(3)}, l.Elems())
}

func TestValAndStr(t *testing.T) {
	reg := Install(vm.NewRegistry())
	assert.Equal(t, value.Number(42), callByName(t, reg, "val", value.String("42abc")))
	assert.Equal(t, value.Number(0), callByName(t, reg, "val", value.String("xyz")))
	assert.Equal(t, value.String("42"), callByName(t, reg, "str", value.Number(42)))
}

func TestSliceIntrinsic(t *testing.T) {
	reg := Install(vm.NewRegistry())
	l := value.NewList([]value.Value{value.Number(0), value.Number(1), value.Number(2), value.Number(3)})
	sliced := callByName(t, reg, "slice", l, value.Number(1), value.Number(3))
	assert.Equal(t, []value.Value{value.Number(1), value.Number(2)}, sliced.(*value.List).Elems())

	s := callByName(t, reg, "slice", value.String("hello"), value.Number(-3), value.Nil)
	assert.Equal(t, value.String("llo"), s)
}

func TestProtoAccessorsCacheOnMachine(t *testing.T) {
	reg := Install(vm.NewRegistry())
	m := vm.NewMachine(context.Background(), nil, reg)
	in, ok := reg.ByName("list")
	require.True(t, ok)
	first, err := in.Fn(m, m.Stack[0], nil, nil)
	require.NoError(t, err)
	second, err := in.Fn(m, m.Stack[0], nil, nil)
	require.NoError(t, err)
	assert.Same(t, first.Value.(*value.Map), second.Value.(*value.Map))
}

func TestBindPrototypesWiresMethods(t *testing.T) {
	reg := Install(vm.NewRegistry())
	m := vm.NewMachine(context.Background(), nil, reg)
	BindPrototypes(reg, m)
	require.NotNil(t, m.StringProto)
	fn, ok := m.StringProto.Get(value.String("upper"))
	require.True(t, ok)
	assert.Equal(t, value.KindFunction, fn.Kind())
}
