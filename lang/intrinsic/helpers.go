package intrinsic

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
)

// arg names one entry of an intrinsic's default-valued parameter list, fed
// to paramsDefault; kept distinct from argAt (the positional-argument
// accessor) so the two don't collide on a single identifier.
type arg struct {
	name string
	def  value.Value
}

func params0() []vm.Param { return nil }

func params1(name string) []vm.Param {
	return []vm.Param{{Name: name}}
}

func params2(a, b string) []vm.Param {
	return []vm.Param{{Name: a}, {Name: b}}
}

func paramsDefault(args ...arg) []vm.Param {
	out := make([]vm.Param, len(args))
	for i, a := range args {
		out[i] = vm.Param{Name: a.name, Default: a.def}
	}
	return out
}

// argAt returns args[i], or null if fewer arguments were supplied than the
// intrinsic declares (callers fill missing trailing parameters from
// defaults before invoking the Body, but a Body built from simple1/simple2
// may still be called with fewer args than it expects during partial
// resolution).
func argAt(args []value.Value, i int) value.Value {
	if i < 0 || i >= len(args) || args[i] == nil {
		return value.Nil
	}
	return args[i]
}

// simple1 wraps a single-argument, non-resumable function into a full
// vm.Body, the common case for the math and string intrinsics.
func simple1(fn func(value.Value) (value.Value, error)) vm.Body {
	return func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		v, err := fn(argAt(args, 0))
		if err != nil {
			return vm.IntrinsicResult{}, err
		}
		return vm.Done(v), nil
	}
}

// simple2 is simple1's two-argument counterpart.
func simple2(fn func(a, b value.Value) (value.Value, error)) vm.Body {
	return func(m *vm.Machine, c *vm.Context, args []value.Value, partial *vm.IntrinsicResult) (vm.IntrinsicResult, error) {
		v, err := fn(argAt(args, 0), argAt(args, 1))
		if err != nil {
			return vm.IntrinsicResult{}, err
		}
		return vm.Done(v), nil
	}
}

// math1 adapts a pure float64 -> float64 function (most of math.*) into a
// single-argument intrinsic, coercing its operand to a Number first.
func math1(fn func(float64) float64) vm.Body {
	return simple1(func(a value.Value) (value.Value, error) {
		n, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		return value.Number(fn(float64(n))), nil
	})
}

func toNumber(v value.Value) (value.Number, error) {
	n, ok := v.(value.Number)
	if !ok {
		return 0, value.NewError(value.TypeError, "expected a number, got %s", v.Kind())
	}
	return n, nil
}

// toString returns v's string form: the String itself if v already is one,
// otherwise its default stringified representation (spec.md §4.1's
// coercion rule used throughout the string intrinsics).
func toString(v value.Value) (value.String, error) {
	if s, ok := v.(value.String); ok {
		return s, nil
	}
	return value.String(value.Stringify(v)), nil
}

// bitwise implements bitAnd/bitOr/bitXor by truncating both operands to
// int64 (spec.md §4.7's "integer view" of the Number type for bitwise ops)
// and applying op.
func bitwise(a, b value.Value, op func(x, y int64) int64) (value.Value, error) {
	an, err := toNumber(a)
	if err != nil {
		return nil, err
	}
	bn, err := toNumber(b)
	if err != nil {
		return nil, err
	}
	return value.Number(op(int64(an), int64(bn))), nil
}

func boolNumber(b bool) value.Number {
	if b {
		return 1
	}
	return 0
}

// typeRank fixes sort's total order across heterogeneous element types:
// null, then number, then string, then everything else compared by its
// default string form.
func typeRank(v value.Value) int {
	switch v.Kind() {
	case value.KindNull:
		return 0
	case value.KindNumber:
		return 1
	case value.KindString:
		return 2
	default:
		return 3
	}
}

// totalOrderLess orders a before b for the `sort` intrinsic: by type tag
// first (null < number < string < everything else), then by value within a
// shared type.
func totalOrderLess(a, b value.Value) bool {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case 0:
		return false
	case 1:
		return float64(a.(value.Number)) < float64(b.(value.Number))
	case 2:
		return string(a.(value.String)) < string(b.(value.String))
	default:
		return value.Stringify(a) < value.Stringify(b)
	}
}

// pseudoRandom returns a float64 in [0, 1) from the package-level source,
// backing `rnd` and `shuffle`. math/rand is used directly rather than a
// pack dependency: none of the example repos import a third-party RNG, and
// MiniScript's `rnd`/`shuffle` have no cryptographic requirement.
func pseudoRandom() float64 {
	return rand.Float64()
}

// parseNumber implements `val`: it parses the longest numeric prefix of s
// (sign, digits, optional fraction and exponent) and returns it as a
// Number, or 0 if s has no such prefix (spec.md §4.7).
func parseNumber(s string) value.Value {
	s = strings.TrimSpace(s)
	i, n := 0, len(s)
	if i < n && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digitsStart := i
	for i < n && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i < n && s[i] == '.' {
		i++
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	}
	if i == digitsStart {
		return value.Number(0)
	}
	if i < n && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < n && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expStart := j
		for j < n && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j > expStart {
			i = j
		}
	}
	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return value.Number(0)
	}
	return value.Number(f)
}

// sliceValue implements `slice` for lists and strings, resolving from/to
// the way MiniScript's `[from:to]` syntax does: negative indices count
// from the end, omitted (null) bounds default to the full range, and the
// result is always empty rather than an error when from >= to.
func sliceValue(target, from, to value.Value) (value.Value, error) {
	switch x := target.(type) {
	case *value.List:
		fi, ti := resolveSliceBounds(x.Len(), from, to)
		return value.NewList(append([]value.Value(nil), x.Elems()[fi:ti]...)), nil
	case value.String:
		runes := x.Runes()
		fi, ti := resolveSliceBounds(len(runes), from, to)
		return value.String(string(runes[fi:ti])), nil
	default:
		return nil, value.NewError(value.TypeError, "slice expects a list or string, got %s", target.Kind())
	}
}

func resolveSliceBounds(n int, from, to value.Value) (int, int) {
	fi := 0
	if fn, ok := from.(value.Number); ok {
		fi = int(fn)
		if fi < 0 {
			fi += n
		}
	}
	if fi < 0 {
		fi = 0
	}
	if fi > n {
		fi = n
	}

	ti := n
	if tn, ok := to.(value.Number); ok {
		ti = int(tn)
		if ti < 0 {
			ti += n
		}
	}
	if ti > n {
		ti = n
	}
	if ti < fi {
		ti = fi
	}
	return fi, ti
}
