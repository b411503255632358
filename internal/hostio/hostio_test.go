package hostio_test

import (
	"bytes"
	"testing"

	"github.com/mna/miniscript/internal/hostio"
	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
	"github.com/stretchr/testify/require"
)

func TestEcho(t *testing.T) {
	var buf bytes.Buffer
	hostio.Echo(&buf, "hello")
	require.Equal(t, "hello\n", buf.String())
}

func TestRegisterCoercesDeclaredTypes(t *testing.T) {
	reg := vm.NewRegistry()
	hostio.Register(reg, "double", []hostio.ParamSpec{
		{Name: "n", Type: hostio.Integer},
	}, func(args []value.Value) (value.Value, error) {
		n := args[0].(value.Number)
		return n * 2, nil
	})

	in, ok := reg.ByName("double")
	require.True(t, ok)
	res, err := in.Fn(nil, nil, []value.Value{value.Number(3.7)}, nil)
	require.NoError(t, err)
	require.True(t, res.Done)
	require.Equal(t, value.Number(6), res.Value)
}

func TestRegisterRejectsWrongType(t *testing.T) {
	reg := vm.NewRegistry()
	hostio.Register(reg, "shout", []hostio.ParamSpec{
		{Name: "s", Type: hostio.String},
	}, func(args []value.Value) (value.Value, error) {
		return args[0], nil
	})

	in, _ := reg.ByName("shout")
	_, err := in.Fn(nil, nil, []value.Value{value.Number(1)}, nil)
	require.Error(t, err)
}

func TestRegisterWithDefault(t *testing.T) {
	reg := vm.NewRegistry()
	in := hostio.Register(reg, "greet", []hostio.ParamSpec{
		{Name: "who", Type: hostio.String, Default: value.String("world")},
	}, func(args []value.Value) (value.Value, error) {
		return value.String("hi " + string(args[0].(value.String))), nil
	})
	require.Equal(t, value.String("world"), in.Params[0].Default)
}
