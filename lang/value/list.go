package value

// MaxListLen is the maximum number of elements a List may hold (spec.md
// §3). A package variable, overridable at startup (internal/maincmd.Config)
// the same way MaxStringLen is.
var MaxListLen = 16 * 1024 * 1024

// List is MiniScript's mutable, ordered, reference-typed sequence.
type List struct {
	elems []Value
}

func NewList(elems []Value) *List { return &List{elems: elems} }

func (*List) Kind() Kind       { return KindList }
func (l *List) Truth() bool    { return len(l.elems) > 0 }
func (l *List) Len() int       { return len(l.elems) }
func (l *List) Elems() []Value { return l.elems }

func (l *List) String() string { return Stringify(l) }

// At returns the element at a 0-based index already resolved from a
// (possibly negative) MiniScript index by ResolveIndex.
func (l *List) At(i int) Value { return l.elems[i] }

// Set assigns the element at a 0-based resolved index.
func (l *List) Set(i int, v Value) { l.elems[i] = v }

// Append adds v to the end of the list, enforcing MaxListLen.
func (l *List) Append(v Value) error {
	if len(l.elems) >= MaxListLen {
		return NewError(LimitExceededError, "list exceeds maximum length of %d", MaxListLen)
	}
	l.elems = append(l.elems, v)
	return nil
}

// InsertAt inserts v at a 0-based resolved index, shifting later elements.
func (l *List) InsertAt(i int, v Value) error {
	if len(l.elems) >= MaxListLen {
		return NewError(LimitExceededError, "list exceeds maximum length of %d", MaxListLen)
	}
	l.elems = append(l.elems, nil)
	copy(l.elems[i+1:], l.elems[i:])
	l.elems[i] = v
	return nil
}

// RemoveAt removes and returns the element at a 0-based resolved index.
func (l *List) RemoveAt(i int) Value {
	v := l.elems[i]
	l.elems = append(l.elems[:i], l.elems[i+1:]...)
	return v
}

// Clone makes a shallow copy of the list, used by CopyA to re-materialize
// list literals on every execution (spec.md §3/§9).
func (l *List) Clone() *List {
	cp := make([]Value, len(l.elems))
	copy(cp, l.elems)
	return &List{elems: cp}
}

// ResolveIndex converts a MiniScript index (which may be negative, counting
// from the end) into a 0-based Go slice index, returning an IndexError if it
// is out of range [-n, n-1].
func ResolveIndex(n int, idx float64) (int, error) {
	i := int(idx)
	if float64(i) != idx {
		// truncate toward zero like the reference implementation does for
		// fractional indices
		i = int(idx)
	}
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, NewError(IndexError, "index %v out of range", idx)
	}
	return i, nil
}
