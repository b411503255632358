package replio_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/mna/miniscript/internal/replio"
	"github.com/mna/miniscript/lang/intrinsic"
	"github.com/mna/miniscript/lang/parser"
	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
	"github.com/stretchr/testify/require"
)

func newDriver(t *testing.T) (*replio.Driver, *bytes.Buffer) {
	t.Helper()
	p := parser.New()
	reg := intrinsic.Install(vm.NewRegistry())
	m := vm.NewMachine(context.Background(), nil, reg)
	intrinsic.BindPrototypes(reg, m)
	var out bytes.Buffer
	m.Stdout = &out
	return replio.New(p, m, &out), &out
}

func TestFeedRunsCompleteLine(t *testing.T) {
	d, _ := newDriver(t)
	ran, err := d.Feed("x = 1 + 2")
	require.NoError(t, err)
	require.True(t, ran)

	v, err := d.M.Stack[0].GetVar("x")
	require.NoError(t, err)
	require.Equal(t, value.Number(3), v)
}

func TestFeedBuffersIncompleteLine(t *testing.T) {
	d, _ := newDriver(t)
	ran, err := d.Feed("x = 1 +")
	require.NoError(t, err)
	require.False(t, ran)
	require.True(t, d.Continuation())

	ran, err = d.Feed("2")
	require.NoError(t, err)
	require.True(t, ran)
}

func TestFeedBuffersOpenBlock(t *testing.T) {
	d, _ := newDriver(t)
	ran, err := d.Feed("if 1 == 1 then")
	require.NoError(t, err)
	require.False(t, ran)
	require.True(t, d.Continuation())

	ran, err = d.Feed("x = 5")
	require.NoError(t, err)
	require.False(t, ran)

	ran, err = d.Feed("end if")
	require.NoError(t, err)
	require.True(t, ran)
}

func TestFeedEchoesBareExpression(t *testing.T) {
	d, out := newDriver(t)
	_, err := d.Feed("x = 41")
	require.NoError(t, err)
	ran, err := d.Feed("x + 1")
	require.NoError(t, err)
	require.True(t, ran)
	require.Contains(t, out.String(), "42")
}
