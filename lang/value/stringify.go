package value

import "strings"

// Stringify renders v the way MiniScript's `print` and string concatenation
// do: scalars render as their own String(), while List and Map elements are
// rendered in "code form" (strings quoted and escaped) so that nesting is
// unambiguous. Reference cycles are broken with "...", matching the
// reference implementation's print behavior rather than stack-overflowing.
func Stringify(v Value) string {
	var b strings.Builder
	writeValue(&b, v, nil, true)
	return b.String()
}

// writeValue appends v's textual form to b. top is true only for the
// outermost call, where String/Number/Null print bare; nested elements
// always use code form (quoted strings) regardless of top.
func writeValue(b *strings.Builder, v Value, seen []Value, top bool) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case Null:
		b.WriteString("null")
	case Number:
		b.WriteString(FormatNumber(float64(x)))
	case String:
		if top {
			b.WriteString(string(x))
		} else {
			writeQuotedString(b, string(x))
		}
	case *List:
		if onPath(seen, x) {
			b.WriteString("...")
			return
		}
		seen = append(seen, x)
		b.WriteByte('[')
		for i, e := range x.elems {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, e, seen, false)
		}
		b.WriteByte(']')
	case *Map:
		if onPath(seen, x) {
			b.WriteString("...")
			return
		}
		seen = append(seen, x)
		b.WriteByte('{')
		first := true
		for _, e := range x.entries {
			if e.removed {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			writeValue(b, e.key, seen, false)
			b.WriteString(": ")
			writeValue(b, e.val, seen, false)
		}
		b.WriteByte('}')
	default:
		b.WriteString(x.String())
	}
}

func onPath(seen []Value, v Value) bool {
	for _, s := range seen {
		if s == v {
			return true
		}
	}
	return false
}

func writeQuotedString(b *strings.Builder, s string) {
	b.WriteByte('"')
	// MiniScript string literals escape an embedded quote by doubling it,
	// matching the lexer's decoding of "" inside a quoted literal.
	b.WriteString(strings.ReplaceAll(s, `"`, `""`))
	b.WriteByte('"')
}
