// Package intrinsic implements MiniScript's standard library of built-in
// functions (spec.md §4.7, component C7): a registry of resumable,
// numerically-IDed bodies installed into a vm.Registry, with selected
// entries additionally bound into the per-type prototype maps so that
// dot-syntax (`"hello".len`) resolves through the normal __isa walk.
//
// Grounded on the teacher's lang/machine.Universe (a flat predeclared-name
// registry), generalized into vm.Registry's ID-addressed, resumable-body
// shape since the teacher's Universe has no call/resume protocol of its
// own — every intrinsic here is a plain (context, partial) -> Result
// function, most of them completing in a single call.
package intrinsic

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
)

// Install registers every standard intrinsic into reg and returns it for
// convenience. It does not touch any Machine's prototype maps itself;
// call BindPrototypes once a Machine exists to wire the subset of
// intrinsics that double as methods into its per-type prototype maps.
func Install(reg *vm.Registry) *vm.Registry {
	reg.Register("abs", params1("x"), simple1(func(a value.Value) (value.Value, error) {
		n, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		return value.Number(math.Abs(float64(n))), nil
	}))
	reg.Register("acos", params1("x"), math1(math.Acos))
	reg.Register("asin", params1("x"), math1(math.Asin))
	reg.Register("atan", paramsDefault(arg{"y", value.Number(0)}, arg{"x", value.Number(1)}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			y, err := toNumber(argAt(args, 0))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			x, err := toNumber(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			return vm.Done(value.Number(math.Atan2(float64(y), float64(x)))), nil
		})

	reg.Register("bitAnd", params2("a", "b"), simple2(func(a, b value.Value) (value.Value, error) {
		return bitwise(a, b, func(x, y int64) int64 { return x & y })
	}))
	reg.Register("bitOr", params2("a", "b"), simple2(func(a, b value.Value) (value.Value, error) {
		return bitwise(a, b, func(x, y int64) int64 { return x | y })
	}))
	reg.Register("bitXor", params2("a", "b"), simple2(func(a, b value.Value) (value.Value, error) {
		return bitwise(a, b, func(x, y int64) int64 { return x ^ y })
	}))

	reg.Register("ceil", params1("x"), math1(math.Ceil))
	reg.Register("floor", params1("x"), math1(math.Floor))
	reg.Register("cos", params1("x"), math1(math.Cos))
	reg.Register("sin", params1("x"), math1(math.Sin))
	reg.Register("tan", params1("x"), math1(math.Tan))
	reg.Register("sqrt", params1("x"), math1(math.Sqrt))

	reg.Register("log", paramsDefault(arg{"x", nil}, arg{"base", value.Number(math.E)}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			x, err := toNumber(argAt(args, 0))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			base, err := toNumber(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			if float64(base) == math.E {
				return vm.Done(value.Number(math.Log(float64(x)))), nil
			}
			return vm.Done(value.Number(math.Log(float64(x)) / math.Log(float64(base)))), nil
		})

	reg.Register("pi", nil, func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		return vm.Done(value.Number(math.Pi)), nil
	})
	reg.Register("sign", params1("x"), simple1(func(a value.Value) (value.Value, error) {
		n, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		switch {
		case n > 0:
			return value.Number(1), nil
		case n < 0:
			return value.Number(-1), nil
		default:
			return value.Number(0), nil
		}
	}))
	reg.Register("round", paramsDefault(arg{"x", nil}, arg{"decimalPlaces", value.Number(0)}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			x, err := toNumber(argAt(args, 0))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			places, err := toNumber(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			scale := math.Pow(10, float64(places))
			return vm.Done(value.Number(math.Round(float64(x)*scale) / scale)), nil
		})
	reg.Register("rnd", params0(), func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		return vm.Done(value.Number(pseudoRandom())), nil
	})

	reg.Register("char", params1("codePoint"), simple1(func(a value.Value) (value.Value, error) {
		n, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		return value.String(string(rune(int(n)))), nil
	}))
	reg.Register("code", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		s, ok := a.(value.String)
		if !ok || s.Len() == 0 {
			return value.Number(0), nil
		}
		return value.Number(s.Runes()[0]), nil
	}))
	reg.Register("lower", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		s, err := toString(a)
		if err != nil {
			return nil, err
		}
		return value.String(strings.ToLower(string(s))), nil
	}))
	reg.Register("upper", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		s, err := toString(a)
		if err != nil {
			return nil, err
		}
		return value.String(strings.ToUpper(string(s))), nil
	}))

	reg.Register("split", paramsDefault(arg{"self", nil}, arg{"delimiter", value.String(" ")}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			s, err := toString(argAt(args, 0))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			delim, err := toString(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			var parts []string
			if delim == "" {
				for _, r := range string(s) {
					parts = append(parts, string(r))
				}
			} else {
				parts = strings.Split(string(s), string(delim))
			}
			out := make([]value.Value, len(parts))
			for i, p := range parts {
				out[i] = value.String(p)
			}
			return vm.Done(value.NewList(out)), nil
		})
	reg.Register("join", paramsDefault(arg{"self", nil}, arg{"delimiter", value.String(" ")}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			l, ok := argAt(args, 0).(*value.List)
			if !ok {
				return vm.IntrinsicResult{}, value.NewError(value.TypeError, "join expects a list")
			}
			delim, err := toString(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			parts := make([]string, l.Len())
			for i, e := range l.Elems() {
				if s, ok := e.(value.String); ok {
					parts[i] = string(s)
				} else {
					parts[i] = value.Stringify(e)
				}
			}
			return vm.Done(value.String(strings.Join(parts, string(delim)))), nil
		})
	reg.Register("replace", paramsDefault(arg{"self", nil}, arg{"oldStr", nil}, arg{"newStr", nil}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			s, err := toString(argAt(args, 0))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			oldS, err := toString(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			newS, err := toString(argAt(args, 2))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			return vm.Done(value.String(strings.ReplaceAll(string(s), string(oldS), string(newS)))), nil
		})

	reg.Register("len", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		n, err := lengthOf(a)
		if err != nil {
			return nil, err
		}
		return value.Number(n), nil
	}))
	reg.Register("hasIndex", params2("self", "index"), simple2(func(a, b value.Value) (value.Value, error) {
		return hasIndex(a, b), nil
	}))
	reg.Register("indexes", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		switch x := a.(type) {
		case *value.List:
			out := make([]value.Value, x.Len())
			for i := range out {
				out[i] = value.Number(i)
			}
			return value.NewList(out), nil
		case *value.Map:
			return value.NewList(x.Keys()), nil
		case value.String:
			out := make([]value.Value, x.Len())
			for i := range out {
				out[i] = value.Number(i)
			}
			return value.NewList(out), nil
		default:
			return nil, value.NewError(value.TypeError, "%s has no indexes", a.Kind())
		}
	}))
	reg.Register("indexOf", paramsDefault(arg{"self", nil}, arg{"value", nil}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			target := argAt(args, 1)
			switch x := argAt(args, 0).(type) {
			case *value.List:
				for i, e := range x.Elems() {
					if eq, _ := value.Equal(e, target, value.DefaultRecursionLimit); eq == 1 {
						return vm.Done(value.Number(i)), nil
					}
				}
			case value.String:
				sub, err := toString(target)
				if err != nil {
					return vm.IntrinsicResult{}, err
				}
				if i := strings.Index(string(x), string(sub)); i >= 0 {
					return vm.Done(value.Number(i)), nil
				}
			}
			return vm.Done(value.Nil), nil
		})

	reg.Register("push", params2("self", "value"),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			l, ok := argAt(args, 0).(*value.List)
			if !ok {
				return vm.IntrinsicResult{}, value.NewError(value.TypeError, "push expects a list")
			}
			if err := l.Append(argAt(args, 1)); err != nil {
				return vm.IntrinsicResult{}, err
			}
			return vm.Done(l), nil
		})
	reg.Register("insert", paramsDefault(arg{"self", nil}, arg{"index", nil}, arg{"value", nil}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			l, ok := argAt(args, 0).(*value.List)
			if !ok {
				return vm.IntrinsicResult{}, value.NewError(value.TypeError, "insert expects a list")
			}
			n, err := toNumber(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			i, err := value.ResolveIndex(l.Len()+1, float64(n))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			if err := l.InsertAt(i, argAt(args, 2)); err != nil {
				return vm.IntrinsicResult{}, err
			}
			return vm.Done(l), nil
		})
	reg.Register("remove", params2("self", "keyOrIndex"),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			switch x := argAt(args, 0).(type) {
			case *value.List:
				n, err := toNumber(argAt(args, 1))
				if err != nil {
					return vm.IntrinsicResult{}, err
				}
				i, err := value.ResolveIndex(x.Len(), float64(n))
				if err != nil {
					return vm.IntrinsicResult{}, err
				}
				return vm.Done(x.RemoveAt(i)), nil
			case *value.Map:
				v, ok := x.Delete(argAt(args, 1))
				if !ok {
					return vm.Done(value.Nil), nil
				}
				return vm.Done(v), nil
			case value.String:
				sub, err := toString(argAt(args, 1))
				if err != nil {
					return vm.IntrinsicResult{}, err
				}
				return vm.Done(value.String(strings.ReplaceAll(string(x), string(sub), ""))), nil
			default:
				return vm.IntrinsicResult{}, value.NewError(value.TypeError, "%s does not support remove", argAt(args, 0).Kind())
			}
		})
	reg.Register("pop", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		switch x := a.(type) {
		case *value.List:
			if x.Len() == 0 {
				return value.Nil, nil
			}
			return x.RemoveAt(x.Len() - 1), nil
		case *value.Map:
			k, _, ok := x.First()
			if !ok {
				return value.Nil, nil
			}
			v, _ := x.Delete(k)
			return v, nil
		default:
			return value.Nil, nil
		}
	}))
	reg.Register("pull", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		l, ok := a.(*value.List)
		if !ok || l.Len() == 0 {
			return value.Nil, nil
		}
		return l.RemoveAt(0), nil
	}))
	reg.Register("slice", paramsDefault(arg{"self", nil}, arg{"from", value.Number(0)}, arg{"to", value.Nil}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			v, err := sliceValue(argAt(args, 0), argAt(args, 1), argAt(args, 2))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			return vm.Done(v), nil
		})
	reg.Register("sum", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		switch x := a.(type) {
		case *value.List:
			total := 0.0
			for _, e := range x.Elems() {
				n, err := toNumber(e)
				if err != nil {
					return nil, err
				}
				total += float64(n)
			}
			return value.Number(total), nil
		case *value.Map:
			total := 0.0
			for _, kv := range x.Items() {
				n, err := toNumber(kv[1])
				if err != nil {
					return nil, err
				}
				total += float64(n)
			}
			return value.Number(total), nil
		default:
			return nil, value.NewError(value.TypeError, "sum expects a list or map")
		}
	}))
	reg.Register("sort", paramsDefault(arg{"self", nil}, arg{"byKey", value.Nil}, arg{"ascending", value.Number(1)}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			l, ok := argAt(args, 0).(*value.List)
			if !ok {
				return vm.IntrinsicResult{}, value.NewError(value.TypeError, "sort expects a list")
			}
			asc := true
			if n, ok := argAt(args, 2).(value.Number); ok {
				asc = n != 0
			}
			elems := append([]value.Value(nil), l.Elems()...)
			sort.SliceStable(elems, func(i, j int) bool {
				if asc {
					return totalOrderLess(elems[i], elems[j])
				}
				return totalOrderLess(elems[j], elems[i])
			})
			return vm.Done(value.NewList(elems)), nil
		})
	reg.Register("shuffle", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		l, ok := a.(*value.List)
		if !ok {
			return nil, value.NewError(value.TypeError, "shuffle expects a list")
		}
		elems := l.Elems()
		for i := len(elems) - 1; i > 0; i-- {
			j := int(pseudoRandom() * float64(i+1))
			elems[i], elems[j] = elems[j], elems[i]
		}
		return l, nil
	}))
	reg.Register("values", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		mp, ok := a.(*value.Map)
		if !ok {
			return nil, value.NewError(value.TypeError, "values expects a map")
		}
		items := mp.Items()
		out := make([]value.Value, len(items))
		for i, kv := range items {
			out[i] = kv[1]
		}
		return value.NewList(out), nil
	}))

	reg.Register("range", paramsDefault(arg{"from", nil}, arg{"to", nil}, arg{"step", value.Number(1)}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			from, err := toNumber(argAt(args, 0))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			to, err := toNumber(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			step := 1.0
			if len(args) > 2 && args[2] != nil && args[2].Kind() != value.KindNull {
				n, err := toNumber(args[2])
				if err != nil {
					return vm.IntrinsicResult{}, err
				}
				step = float64(n)
			} else if to < from {
				step = -1
			}
			if step == 0 {
				return vm.IntrinsicResult{}, value.NewError(value.RuntimeError, "range step must not be zero")
			}
			var out []value.Value
			if step > 0 {
				for v := float64(from); v <= float64(to); v += step {
					out = append(out, value.Number(v))
				}
			} else {
				for v := float64(from); v >= float64(to); v += step {
					out = append(out, value.Number(v))
				}
			}
			return vm.Done(value.NewList(out)), nil
		})

	reg.Register("hash", paramsDefault(arg{"self", nil}, arg{"recursionLimit", value.Number(value.DefaultRecursionLimit)}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			limit, err := toNumber(argAt(args, 1))
			if err != nil {
				return vm.IntrinsicResult{}, err
			}
			h := value.Hash(argAt(args, 0), int(limit))
			return vm.Done(value.Number(int32(h))), nil
		})
	reg.Register("str", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		return value.String(value.Stringify(a)), nil
	}))
	reg.Register("val", params1("self"), simple1(func(a value.Value) (value.Value, error) {
		s, err := toString(a)
		if err != nil {
			return nil, err
		}
		return parseNumber(string(s)), nil
	}))

	reg.Register("print", paramsDefault(arg{"value", value.String("")}, arg{"appendNewline", value.Number(1)}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			s := value.Stringify(argAt(args, 0))
			if s2, ok := argAt(args, 0).(value.String); ok {
				s = string(s2)
			}
			nl := "\n"
			if n, ok := argAt(args, 1).(value.Number); ok && n == 0 {
				nl = ""
			}
			m.Stdout.Write([]byte(s + nl))
			return vm.Done(value.Nil), nil
		})

	reg.Register("version", params0(), func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		return vm.Done(value.String("miniscript-go 1.0")), nil
	})
	reg.Register("time", params0(), func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		return vm.Done(value.Number(time.Since(m.Started).Seconds())), nil
	})
	reg.Register("yield", params0(), func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		m.Yielded = true
		return vm.Done(value.Nil), nil
	})
	reg.Register("wait", paramsDefault(arg{"seconds", value.Number(1)}),
		func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
			var deadline time.Time
			if partial != nil {
				if n, ok := partial.Value.(value.Number); ok {
					deadline = time.Unix(0, int64(n))
				}
			}
			if deadline.IsZero() {
				secs, err := toNumber(argAt(args, 0))
				if err != nil {
					return vm.IntrinsicResult{}, err
				}
				deadline = time.Now().Add(time.Duration(float64(secs) * float64(time.Second)))
			}
			if time.Now().After(deadline) {
				return vm.Done(value.Nil), nil
			}
			return vm.Pending(value.Number(deadline.UnixNano())), nil
		})

	reg.Register("funcRef", params0(), protoAccessor(func(m *vm.Machine) **value.Map { return &m.FunctionProto }))
	reg.Register("number", params0(), protoAccessor(func(m *vm.Machine) **value.Map { return &m.NumberProto }))
	reg.Register("string", params0(), protoAccessor(func(m *vm.Machine) **value.Map { return &m.StringProto }))
	reg.Register("list", params0(), protoAccessor(func(m *vm.Machine) **value.Map { return &m.ListProto }))
	reg.Register("map", params0(), protoAccessor(func(m *vm.Machine) **value.Map { return &m.MapProto }))

	return reg
}

// protoAccessor implements the list/string/map/number/funcRef intrinsics:
// lazily materialize the Machine's per-type prototype map on first access
// and return the cached one thereafter (spec.md §4.7/§5).
func protoAccessor(field func(m *vm.Machine) **value.Map) vm.Body {
	return func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		p := field(m)
		if *p == nil {
			*p = value.NewMap(0)
		}
		return vm.Done(*p), nil
	}
}

func hasIndex(a, b value.Value) value.Value {
	switch x := a.(type) {
	case *value.List:
		n, ok := b.(value.Number)
		if !ok {
			return value.Number(0)
		}
		i := int(n)
		if i < 0 {
			i += x.Len()
		}
		return boolNumber(i >= 0 && i < x.Len())
	case *value.Map:
		_, ok := x.Get(b)
		return boolNumber(ok)
	case value.String:
		n, ok := b.(value.Number)
		if !ok {
			return value.Number(0)
		}
		i := int(n)
		if i < 0 {
			i += x.Len()
		}
		return boolNumber(i >= 0 && i < x.Len())
	default:
		return value.Number(0)
	}
}

func lengthOf(a value.Value) (int, error) {
	switch x := a.(type) {
	case value.String:
		return x.Len(), nil
	case *value.List:
		return x.Len(), nil
	case *value.Map:
		return x.Len(), nil
	default:
		return 0, value.NewError(value.TypeError, "%s has no length", a.Kind())
	}
}
