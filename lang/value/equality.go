package value

import "math"

// Equal computes MiniScript's fuzzy structural equality (spec.md §4.1):
// 1 when values are equal, 0 when they are not, and 0.5 ("inconclusive")
// when a compound comparison hits the recursion limit before it can decide.
func Equal(a, b Value, limit int) (float64, error) {
	if limit <= 0 {
		return 0.5, nil
	}

	switch x := a.(type) {
	case Null:
		_, ok := b.(Null)
		return boolToFuzzy(ok), nil
	case Number:
		y, ok := b.(Number)
		if !ok {
			return 0, nil
		}
		return boolToFuzzy(float64(x) == float64(y)), nil
	case String:
		y, ok := b.(String)
		if !ok {
			return 0, nil
		}
		return boolToFuzzy(x == y), nil
	case *List:
		y, ok := b.(*List)
		if !ok {
			return 0, nil
		}
		if x == y {
			return 1, nil
		}
		if len(x.elems) != len(y.elems) {
			return 0, nil
		}
		best := 1.0
		for i := range x.elems {
			eq, err := Equal(x.elems[i], y.elems[i], limit-1)
			if err != nil {
				return 0, err
			}
			if eq == 0 {
				return 0, nil
			}
			if eq < best {
				best = eq
			}
		}
		return best, nil
	case *Map:
		y, ok := b.(*Map)
		if !ok {
			return 0, nil
		}
		if x == y {
			return 1, nil
		}
		if x.live != y.live {
			return 0, nil
		}
		best := 1.0
		for _, e := range x.entries {
			if e.removed {
				continue
			}
			yv, found := y.Get(e.key)
			if !found {
				return 0, nil
			}
			eq, err := Equal(e.val, yv, limit-1)
			if err != nil {
				return 0, err
			}
			if eq == 0 {
				return 0, nil
			}
			if eq < best {
				best = eq
			}
		}
		return best, nil
	default:
		// VM-level operand kinds (Function, TempRef, VarRef, SeqElem) and any
		// host extension type: compare by identity only.
		if a == b {
			return 1, nil
		}
		return 0, nil
	}
}

func boolToFuzzy(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Compare implements the ordering used by `<`, `<=`, `>`, `>=` on Numbers
// and lexicographic ordering on Strings; other type combinations are a
// TypeError, reported by the caller (lang/vm's Evaluator), not here.
func Compare(a, b Value) (int, bool) {
	switch x := a.(type) {
	case Number:
		y, ok := b.(Number)
		if !ok {
			return 0, false
		}
		if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	case String:
		y, ok := b.(String)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}
