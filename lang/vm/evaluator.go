package vm

import (
	"math"
	"strings"

	"github.com/mna/miniscript/lang/value"
)

// Evaluate interprets one Line against c (component C4, spec.md §4.4),
// returning jumped=true when it already set c.PC itself (control flow,
// CallIntrinsicA's resume-same-line case) so Machine's step loop knows not
// to additionally advance the program counter. CallFunctionA and ReturnA
// are handled by the Machine directly, since they push/pop the call
// stack rather than evaluate within a single Context.
func Evaluate(m *Machine, c *Context, ln *Line) (jumped bool, err error) {
	switch ln.Op {
	case Noop:
		return false, nil

	case AssignA, AssignImplicit:
		v, err := resolveFullLiteral(m, c, ln.RhsA, value.DefaultRecursionLimit)
		if err != nil {
			return false, err
		}
		return false, c.StoreValue(m, ln.Lhs, v)

	case CopyA:
		v, err := resolveFullLiteral(m, c, deepCopy(ln.RhsA), value.DefaultRecursionLimit)
		if err != nil {
			return false, err
		}
		return false, c.StoreValue(m, ln.Lhs, v)

	case NotA:
		a, err := resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return false, err
		}
		return false, c.StoreValue(m, ln.Lhs, boolNumber(!truthOf(a)))

	case APlusB, AMinusB, ATimesB, ADividedByB, AModB, APowB:
		return false, evalArithmetic(m, c, ln)

	case AEqualB, ANotEqualB:
		a, b, err := resolveAB(m, c, ln)
		if err != nil {
			return false, err
		}
		eq, err := value.Equal(a, b, value.DefaultRecursionLimit)
		if err != nil {
			return false, err
		}
		if ln.Op == ANotEqualB {
			eq = 1 - eq
		}
		return false, c.StoreValue(m, ln.Lhs, value.Number(eq))

	case AGreaterThanB, AGreatOrEqualB, ALessThanB, ALessOrEqualB:
		return false, evalOrdering(m, c, ln)

	case AAndB, AOrB:
		a, b, err := resolveAB(m, c, ln)
		if err != nil {
			return false, err
		}
		fa, fb := fuzzyOf(a), fuzzyOf(b)
		var r float64
		if ln.Op == AAndB {
			r = fa * fb
		} else {
			r = fa + fb - fa*fb
		}
		return false, c.StoreValue(m, ln.Lhs, value.Number(clamp01(r)))

	case AisaB:
		a, b, err := resolveAB(m, c, ln)
		if err != nil {
			return false, err
		}
		ok, err := m.IsA(a, b)
		if err != nil {
			return false, err
		}
		return false, c.StoreValue(m, ln.Lhs, boolNumber(ok))

	case BindAssignA:
		a, err := resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return false, err
		}
		fn, ok := a.(*Function)
		if !ok {
			return false, value.NewError(value.RuntimeError, "BindAssignA operand is not a function template")
		}
		return false, c.StoreValue(m, ln.Lhs, fn.Bind(c.Locals))

	case GotoA:
		target, err := resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return false, err
		}
		return jumpTo(c, target)

	case GotoAifB, GotoAifNotB:
		b, err := resolveOperand(m, c, ln.RhsB)
		if err != nil {
			return false, err
		}
		cond := fuzzyOf(b) != 0
		if ln.Op == GotoAifNotB {
			cond = !cond
		}
		if !cond {
			return false, nil
		}
		target, err := resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return false, err
		}
		return jumpTo(c, target)

	case GotoAifTrulyB:
		b, err := resolveOperand(m, c, ln.RhsB)
		if err != nil {
			return false, err
		}
		if int(fuzzyOf(b)) == 0 {
			return false, nil
		}
		target, err := resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return false, err
		}
		return jumpTo(c, target)

	case PushParam:
		v, err := resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return false, err
		}
		return false, c.PushParamArgument(v)

	case CallIntrinsicA:
		idVal, err := resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return false, err
		}
		id, ok := idVal.(value.Number)
		if !ok {
			return false, value.NewError(value.RuntimeError, "CallIntrinsicA operand is not a numeric id")
		}
		in, ok := m.Registry.ByID(int(id))
		if !ok {
			return false, value.NewError(value.RuntimeError, "no intrinsic registered with id %d", int(id))
		}
		countVal, err := resolveOperand(m, c, ln.RhsB)
		if err != nil {
			return false, err
		}
		count, _ := countVal.(value.Number)
		settled, err := m.callIntrinsic(c, in, int(count), ln.Lhs)
		return !settled, err

	case ElemBofA:
		a, b, err := resolveAB(m, c, ln)
		if err != nil {
			return false, err
		}
		v, err := elemOf(m, a, b)
		if err != nil {
			return false, err
		}
		return false, c.StoreValue(m, ln.Lhs, v)

	case ElemBofIterA:
		a, b, err := resolveAB(m, c, ln)
		if err != nil {
			return false, err
		}
		v, err := elemOfIter(a, b)
		if err != nil {
			return false, err
		}
		return false, c.StoreValue(m, ln.Lhs, v)

	case LengthOfA:
		a, err := resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return false, err
		}
		n, err := lengthOf(a)
		if err != nil {
			return false, err
		}
		return false, c.StoreValue(m, ln.Lhs, value.Number(n))

	default:
		return false, value.NewError(value.RuntimeError, "unhandled opcode %s", ln.Op)
	}
}

// jumpTo sets c.PC to target's line index and reports jumped=true so the
// caller does not also advance the program counter.
func jumpTo(c *Context, target value.Value) (bool, error) {
	n, ok := target.(value.Number)
	if !ok {
		return false, value.NewError(value.RuntimeError, "jump target is not a line index")
	}
	c.PC = int(n)
	return true, nil
}

func resolveAB(m *Machine, c *Context, ln *Line) (value.Value, value.Value, error) {
	a, err := resolveOperand(m, c, ln.RhsA)
	if err != nil {
		return nil, nil, err
	}
	b, err := resolveOperand(m, c, ln.RhsB)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// resolveOperand loads the value referred to by a Line operand: a TempRef
// reads a temp slot, a VarRef reads a named variable, a SeqElem indexes
// into its (recursively resolved) target. Any other Value is already a
// concrete literal and is returned unchanged (contrast resolveFullLiteral,
// used where compound literals need their nested refs resolved too).
func resolveOperand(m *Machine, c *Context, v value.Value) (value.Value, error) {
	switch x := v.(type) {
	case nil:
		return value.Nil, nil
	case TempRef:
		return c.GetTemp(x.Index), nil
	case VarRef:
		return c.GetVar(x.Name)
	case SeqElem:
		target, err := resolveOperand(m, c, x.Target)
		if err != nil {
			return nil, err
		}
		index, err := resolveOperand(m, c, x.Index)
		if err != nil {
			return nil, err
		}
		return elemOf(m, target, index)
	default:
		return v, nil
	}
}

// resolveFullLiteral resolves v the way AssignA/AssignImplicit/ReturnA do
// (spec.md §4.4): if v is a list or map literal, every contained element
// is itself resolved (recursively, since nested literals may contain
// TempRef/VarRef/SeqElem placeholders left by the parser); anything else
// is resolved the plain way.
func resolveFullLiteral(m *Machine, c *Context, v value.Value, limit int) (value.Value, error) {
	if limit <= 0 {
		return resolveOperand(m, c, v)
	}
	switch x := v.(type) {
	case *value.List:
		out := make([]value.Value, len(x.Elems()))
		for i, e := range x.Elems() {
			rv, err := resolveFullLiteral(m, c, e, limit-1)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return value.NewList(out), nil
	case *value.Map:
		out := value.NewMap(x.Len())
		for _, kv := range x.Items() {
			key, err := resolveFullLiteral(m, c, kv[0], limit-1)
			if err != nil {
				return nil, err
			}
			val, err := resolveFullLiteral(m, c, kv[1], limit-1)
			if err != nil {
				return nil, err
			}
			if err := out.Set(key, val); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return resolveOperand(m, c, x)
	}
}

// deepCopy implements CopyA: list/map literals get a fresh copy so that
// repeated execution (e.g. inside a loop body) produces distinct objects
// (spec.md §4.4, §8 invariant). Non-collection operands pass through.
func deepCopy(v value.Value) value.Value {
	switch x := v.(type) {
	case *value.List:
		cp := x.Clone()
		for i, e := range cp.Elems() {
			cp.Set(i, deepCopy(e))
		}
		return cp
	case *value.Map:
		cp := value.NewMap(x.Len())
		for _, kv := range x.Items() {
			cp.Set(kv[0], deepCopy(kv[1]))
		}
		return cp
	default:
		return v
	}
}

func truthOf(v value.Value) bool {
	if v == nil {
		return false
	}
	return v.Truth()
}

func boolNumber(b bool) value.Number {
	if b {
		return 1
	}
	return 0
}

func fuzzyOf(v value.Value) float64 {
	if n, ok := v.(value.Number); ok {
		return float64(n)
	}
	return boolToFuzzy01(truthOf(v))
}

func boolToFuzzy01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func evalOrdering(m *Machine, c *Context, ln *Line) error {
	a, b, err := resolveAB(m, c, ln)
	if err != nil {
		return err
	}
	// Spec.md §4.4: all operators other than ==/!= treat null as an operand
	// by returning a deterministic 0/1 rather than raising, so ordering
	// comparisons involving null are simply false.
	if a.Kind() == value.KindNull || b.Kind() == value.KindNull {
		return c.StoreValue(m, ln.Lhs, value.Number(0))
	}
	cmp, ok := value.Compare(a, b)
	if !ok {
		return value.NewError(value.TypeError, "cannot compare %s and %s", a.Kind(), b.Kind())
	}
	var r bool
	switch ln.Op {
	case AGreaterThanB:
		r = cmp > 0
	case AGreatOrEqualB:
		r = cmp >= 0
	case ALessThanB:
		r = cmp < 0
	case ALessOrEqualB:
		r = cmp <= 0
	}
	return c.StoreValue(m, ln.Lhs, boolNumber(r))
}

func evalArithmetic(m *Machine, c *Context, ln *Line) error {
	a, b, err := resolveAB(m, c, ln)
	if err != nil {
		return err
	}

	if ln.Op == APlusB {
		if v, ok, err := tryStringPlus(a, b); ok || err != nil {
			if err != nil {
				return err
			}
			return c.StoreValue(m, ln.Lhs, v)
		}
	}

	switch av := a.(type) {
	case value.String:
		v, err := stringArith(ln.Op, av, b)
		if err != nil {
			return err
		}
		return c.StoreValue(m, ln.Lhs, v)
	case *value.List:
		v, err := listArith(ln.Op, av, b)
		if err != nil {
			return err
		}
		return c.StoreValue(m, ln.Lhs, v)
	}

	an, aok := a.(value.Number)
	bn, bok := b.(value.Number)
	if !aok || !bok {
		return value.NewError(value.TypeError, "cannot apply %s to %s and %s", ln.Op, a.Kind(), b.Kind())
	}
	var r float64
	x, y := float64(an), float64(bn)
	switch ln.Op {
	case APlusB:
		r = x + y
	case AMinusB:
		r = x - y
	case ATimesB:
		r = x * y
	case ADividedByB:
		if y == 0 {
			return value.NewError(value.RuntimeError, "division by zero")
		}
		r = x / y
	case AModB:
		r = math.Mod(x, y)
	case APowB:
		r = math.Pow(x, y)
	}
	return c.StoreValue(m, ln.Lhs, value.Number(r))
}

// tryStringPlus implements `+`'s string-concatenation and null-identity
// rules (spec.md §4.1/§4.4): a String on either side coerces the other
// operand to its string form; a Null operand acts as the identity element
// when the other side is a String.
func tryStringPlus(a, b value.Value) (value.Value, bool, error) {
	as, aIsStr := a.(value.String)
	bs, bIsStr := b.(value.String)
	if aIsStr && b.Kind() == value.KindNull {
		return as, true, nil
	}
	if bIsStr && a.Kind() == value.KindNull {
		return bs, true, nil
	}
	if !aIsStr && !bIsStr {
		return nil, false, nil
	}
	left := stringFormOf(a)
	right := stringFormOf(b)
	if err := value.CheckLen(len(left) + len(right)); err != nil {
		return nil, true, err
	}
	return value.String(left + right), true, nil
}

func stringFormOf(v value.Value) string {
	if s, ok := v.(value.String); ok {
		return string(s)
	}
	return v.String()
}

func stringArith(op Opcode, a value.String, b value.Value) (value.Value, error) {
	switch op {
	case AMinusB:
		bs, ok := b.(value.String)
		if !ok {
			return nil, value.NewError(value.TypeError, "cannot subtract %s from a string", b.Kind())
		}
		return value.String(strings.TrimSuffix(string(a), string(bs))), nil
	case ATimesB:
		n, ok := b.(value.Number)
		if !ok {
			return nil, value.NewError(value.TypeError, "cannot multiply a string by %s", b.Kind())
		}
		return value.String(replicateString(string(a), float64(n))), nil
	case ADividedByB:
		n, ok := b.(value.Number)
		if !ok || n == 0 {
			return nil, value.NewError(value.TypeError, "cannot divide a string by %s", b.Kind())
		}
		return value.String(replicateString(string(a), 1/float64(n))), nil
	default:
		return nil, value.NewError(value.TypeError, "operator %s not defined for strings", op)
	}
}

// replicateString repeats s floor(factor) times and appends a prefix of
// the remaining fractional length (spec.md §4.1).
func replicateString(s string, factor float64) string {
	if factor <= 0 || s == "" {
		return ""
	}
	runes := []rune(s)
	whole := int(math.Floor(factor))
	frac := factor - math.Floor(factor)
	var b strings.Builder
	for i := 0; i < whole; i++ {
		b.WriteString(s)
	}
	prefixLen := int(math.Round(frac * float64(len(runes))))
	if prefixLen > len(runes) {
		prefixLen = len(runes)
	}
	b.WriteString(string(runes[:prefixLen]))
	return b.String()
}

func listArith(op Opcode, a *value.List, b value.Value) (value.Value, error) {
	switch op {
	case APlusB:
		bl, ok := b.(*value.List)
		if !ok {
			return nil, value.NewError(value.TypeError, "cannot add %s to a list", b.Kind())
		}
		out := make([]value.Value, 0, a.Len()+bl.Len())
		out = append(out, a.Elems()...)
		out = append(out, bl.Elems()...)
		return value.NewList(out), nil
	case ATimesB:
		n, ok := b.(value.Number)
		if !ok {
			return nil, value.NewError(value.TypeError, "cannot multiply a list by %s", b.Kind())
		}
		return value.NewList(replicateList(a.Elems(), float64(n))), nil
	case ADividedByB:
		n, ok := b.(value.Number)
		if !ok || n == 0 {
			return nil, value.NewError(value.TypeError, "cannot divide a list by %s", b.Kind())
		}
		return value.NewList(replicateList(a.Elems(), 1/float64(n))), nil
	default:
		return nil, value.NewError(value.TypeError, "operator %s not defined for lists", op)
	}
}

func replicateList(elems []value.Value, factor float64) []value.Value {
	if factor <= 0 || len(elems) == 0 {
		return nil
	}
	whole := int(math.Floor(factor))
	frac := factor - math.Floor(factor)
	out := make([]value.Value, 0, int(float64(len(elems))*factor)+1)
	for i := 0; i < whole; i++ {
		out = append(out, elems...)
	}
	prefixLen := int(math.Round(frac * float64(len(elems))))
	if prefixLen > len(elems) {
		prefixLen = len(elems)
	}
	out = append(out, elems[:prefixLen]...)
	return out
}

func lengthOf(v value.Value) (int, error) {
	switch x := v.(type) {
	case value.String:
		return x.Len(), nil
	case *value.List:
		return x.Len(), nil
	case *value.Map:
		return x.Len(), nil
	default:
		return 0, value.NewError(value.TypeError, "%s has no length", v.Kind())
	}
}

func elemOfIter(target, index value.Value) (value.Value, error) {
	switch t := target.(type) {
	case *value.Map:
		items := t.Items()
		i, ok := index.(value.Number)
		if !ok || int(i) < 0 || int(i) >= len(items) {
			return nil, value.NewError(value.IndexError, "iteration index out of range")
		}
		kv := items[int(i)]
		out := value.NewMap(2)
		out.Set(value.String("key"), kv[0])
		out.Set(value.String("value"), kv[1])
		return out, nil
	default:
		return elemOf(nil, target, index)
	}
}
