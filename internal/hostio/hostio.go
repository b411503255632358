// Package hostio implements the two host-facing surfaces of spec.md §6 that
// do not belong to the language core itself: the output sink a Machine
// writes to (also used for REPL echo) and the typed registration helper a
// host uses to inject its own intrinsics by name.
//
// Grounded on the teacher's own CLI/host-boundary style (lang/machine.
// Thread.Stdout is a plain io.Writer field; host-registered builtins in the
// teacher are plain Go closures over lang/types.Value) generalized to
// MiniScript's Param/Body intrinsic shape (lang/vm/registry.go) with a
// declarative parameter-type list, since spec.md §6 calls for the host to
// "declare parameter types (integer, real, boolean, string, generic value,
// with optional defaults)" rather than hand-check argument kinds itself.
package hostio

import (
	"fmt"
	"io"

	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
)

// Sink is the host output surface of spec.md §6 ("a single sink that
// accepts a string per print invocation; also used for implicit REPL
// echo"). Any io.Writer satisfies it; Write never returns a partial-write
// error to script code, matching Machine.Stdout's existing contract.
type Sink interface {
	io.Writer
}

// Echo writes s followed by a newline to sink, the shape the REPL and the
// `print` intrinsic both need (internal/replio uses this directly for its
// result echo, print itself goes through Machine.Stdout).
func Echo(sink Sink, s string) {
	fmt.Fprintln(sink, s)
}

// ParamType names the coercion a host-declared parameter argument must
// satisfy (spec.md §6 "declaring parameter types (integer, real, boolean,
// string, generic value, with optional defaults)").
type ParamType int

const (
	// Any accepts whatever Value was passed, unchecked (the "generic value"
	// case).
	Any ParamType = iota
	Integer
	Real
	Boolean
	String
)

// ParamSpec is one entry of a host function's declared parameter list.
type ParamSpec struct {
	Name    string
	Type    ParamType
	Default value.Value // nil means required (no default)
}

// HostFunc is the body a host registers: it receives already
// type-coerced arguments in declaration order and returns a single result,
// or an error. Host functions are not resumable (spec.md's resumable Body
// signature is for intrinsics needing multi-tick suspension like `wait`;
// host injection in spec §6 has no such requirement), so Register adapts
// HostFunc into a non-suspending vm.Body that always returns Done.
type HostFunc func(args []value.Value) (value.Value, error)

// Register declares a host function as a callable top-level identifier
// (spec.md §6 "Registered functions become callable as top-level
// identifiers"): it builds the vm.Param list from specs (carrying each
// declared Default through to intrinsic default-filling) and wraps fn with
// the declared-type coercion checks, so the Body itself only ever sees
// already-validated arguments.
func Register(reg *vm.Registry, name string, specs []ParamSpec, fn HostFunc) *vm.Intrinsic {
	params := make([]vm.Param, len(specs))
	for i, s := range specs {
		params[i] = vm.Param{Name: s.Name, Default: s.Default}
	}
	body := func(_ *vm.Machine, _ *vm.Context, args []value.Value, _ *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		coerced := make([]value.Value, len(args))
		for i, a := range args {
			if i >= len(specs) {
				coerced[i] = a
				continue
			}
			cv, err := coerce(specs[i], a)
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			coerced[i] = cv
		}
		v, err := fn(coerced)
		if err != nil {
			return vm.IntrinsicResult{}, err
		}
		return vm.Done(v), nil
	}
	return reg.Register(name, params, body)
}

func coerce(spec ParamSpec, v value.Value) (value.Value, error) {
	switch spec.Type {
	case Integer:
		n, ok := v.(value.Number)
		if !ok {
			return nil, value.NewError(value.TypeError, "%s: expected an integer, got %s", spec.Name, v.Kind())
		}
		return value.Number(float64(int64(n))), nil
	case Real:
		if _, ok := v.(value.Number); !ok {
			return nil, value.NewError(value.TypeError, "%s: expected a number, got %s", spec.Name, v.Kind())
		}
		return v, nil
	case Boolean:
		n, ok := v.(value.Number)
		if !ok {
			return nil, value.NewError(value.TypeError, "%s: expected a boolean, got %s", spec.Name, v.Kind())
		}
		return value.Number(boolNumber(n.Truth())), nil
	case String:
		if _, ok := v.(value.String); !ok {
			return nil, value.NewError(value.TypeError, "%s: expected a string, got %s", spec.Name, v.Kind())
		}
		return v, nil
	default:
		return v, nil
	}
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
