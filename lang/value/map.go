package value

import "github.com/dolthub/swiss"

// MaxMapLen is the maximum number of entries a Map may hold (spec.md §3).
// A package variable, overridable at startup (internal/maincmd.Config) the
// same way MaxStringLen is.
var MaxMapLen = 16 * 1024 * 1024

// IsaKey is the reserved map key that designates a prototype parent
// (spec.md §3).
const IsaKey = String("__isa")

type mapEntry struct {
	key, val Value
	removed  bool
}

// Map is MiniScript's insertion-ordered mapping from arbitrary Values
// (compared structurally) to Values. Lookup is adapted from the teacher's
// lang/machine/map.go, which backs *Map with a github.com/dolthub/swiss
// hash map; here the swiss map cannot be keyed directly by Value, because
// two structurally-equal Values (e.g. two distinct list objects with equal
// contents, or a fresh Number computed at runtime) need not be `==` as Go
// interface values, and a bare swiss.Map would also scramble insertion
// order. Instead, swiss indexes from the Value's structural hash to the
// slice position(s) of matching entries, and an ordered slice of entries
// carries insertion order and tombstones removed slots.
type Map struct {
	entries []mapEntry
	index   *swiss.Map[uint64, []int]
	live    int
}

// NewMap returns an empty map with initial capacity for at least size
// entries.
func NewMap(size int) *Map {
	if size < 0 {
		size = 0
	}
	return &Map{index: swiss.NewMap[uint64, []int](uint32(size))}
}

func (*Map) Kind() Kind    { return KindMap }
func (m *Map) Truth() bool { return m.live > 0 }
func (m *Map) Len() int    { return m.live }
func (m *Map) String() string { return Stringify(m) }

func (m *Map) bucket(h uint64, key Value, limit int) (int, bool) {
	idxs, ok := m.index.Get(h)
	if !ok {
		return -1, false
	}
	for _, i := range idxs {
		e := m.entries[i]
		if e.removed {
			continue
		}
		if eq, _ := Equal(e.key, key, limit); eq == 1 {
			return i, true
		}
	}
	return -1, false
}

// Get looks up key using structural equality, returning found=false if no
// entry (including along any __isa chain — that walk is the evaluator's
// responsibility, not the raw map's) matches.
func (m *Map) Get(key Value) (Value, bool) {
	h := Hash(key, DefaultRecursionLimit)
	i, ok := m.bucket(h, key, DefaultRecursionLimit)
	if !ok {
		return nil, false
	}
	return m.entries[i].val, true
}

// Set inserts or updates key -> val, preserving the original insertion
// position on update (spec.md §4.1 map iteration order invariant).
func (m *Map) Set(key, val Value) error {
	h := Hash(key, DefaultRecursionLimit)
	if i, ok := m.bucket(h, key, DefaultRecursionLimit); ok {
		m.entries[i].val = val
		return nil
	}
	if m.live >= MaxMapLen {
		return NewError(LimitExceededError, "map exceeds maximum size of %d", MaxMapLen)
	}
	idx := len(m.entries)
	m.entries = append(m.entries, mapEntry{key: key, val: val})
	m.live++
	bucket, _ := m.index.Get(h)
	m.index.Put(h, append(bucket, idx))
	return nil
}

// Delete removes key if present, returning the removed value and true, or
// (nil, false) if key was not present.
func (m *Map) Delete(key Value) (Value, bool) {
	h := Hash(key, DefaultRecursionLimit)
	i, ok := m.bucket(h, key, DefaultRecursionLimit)
	if !ok {
		return nil, false
	}
	v := m.entries[i].val
	m.entries[i].removed = true
	m.live--
	return v, true
}

// Keys returns the map's keys in insertion order.
func (m *Map) Keys() []Value {
	out := make([]Value, 0, m.live)
	for _, e := range m.entries {
		if !e.removed {
			out = append(out, e.key)
		}
	}
	return out
}

// Items returns the map's key/value pairs in insertion order.
func (m *Map) Items() [][2]Value {
	out := make([][2]Value, 0, m.live)
	for _, e := range m.entries {
		if !e.removed {
			out = append(out, [2]Value{e.key, e.val})
		}
	}
	return out
}

// First returns the first live entry in insertion order, used by `pop` on a
// map (spec.md §8: removes "an arbitrary but deterministic-within-
// iteration-order key").
func (m *Map) First() (Value, Value, bool) {
	for _, e := range m.entries {
		if !e.removed {
			return e.key, e.val, true
		}
	}
	return nil, nil, false
}

// Clone makes a shallow copy of the map, used by CopyA to re-materialize
// map literals on every execution.
func (m *Map) Clone() *Map {
	cp := NewMap(m.live)
	for _, e := range m.entries {
		if !e.removed {
			_ = cp.Set(e.key, e.val)
		}
	}
	return cp
}

// Isa returns the map's __isa prototype parent, if any.
func (m *Map) Isa() (*Map, bool) {
	v, ok := m.Get(IsaKey)
	if !ok {
		return nil, false
	}
	parent, ok := v.(*Map)
	return parent, ok
}

// Merge adds all entries of other into a copy of m, with other's values
// winning on key conflicts (spec.md §4.1 "+ merges (right-hand wins)").
func (m *Map) Merge(other *Map) (*Map, error) {
	out := m.Clone()
	for _, e := range other.entries {
		if e.removed {
			continue
		}
		if err := out.Set(e.key, e.val); err != nil {
			return nil, err
		}
	}
	return out, nil
}
